package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/roslink/internal/node"
	"github.com/danmuck/roslink/internal/observability"
	"github.com/danmuck/roslink/internal/sub"
)

func main() {
	observability.InitLogger("subctl")
	configPath := "cmd/subctl/config.toml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := loadNodeConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load node config")
	}
	log.Info().Str("path", configPath).Msg("loaded node config")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := node.New(cfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build node")
	}

	for _, entry := range cfg.Topics {
		topicCfg := sub.TopicConfig{
			Name:     entry.Name,
			Type:     sub.RawType{TypeName: entry.Type, Digest: entry.MD5Sum},
			Latching: entry.Latching,
			Link:     sub.DefaultLinkConfig(),
		}
		topic, err := n.Subscribe(ctx, topicCfg)
		if err != nil {
			log.Fatal().Err(err).Str("topic", entry.Name).Msg("subscribe failed")
		}
		name := entry.Name
		if err := topic.AddListener(sub.ListenerFunc(func(msg sub.Message) {
			payload, _ := msg.([]byte)
			log.Info().Str("topic", name).Int("bytes", len(payload)).Msg("message")
		})); err != nil {
			log.Fatal().Err(err).Str("topic", entry.Name).Msg("listener registration failed")
		}
	}

	log.Info().Str("node", n.Name()).Str("addr", cfg.Addr).Msg("node started")
	if err := n.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("node stopped")
	}
}
