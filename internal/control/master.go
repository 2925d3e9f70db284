package control

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// RegisterSubscriberArgs announces a subscription to the master; the
// reply value is the current list of publisher control URIs.
type RegisterSubscriberArgs struct {
	CallerID  string `json:"callerid"`
	Topic     string `json:"topic"`
	Type      string `json:"type"`
	CallerAPI string `json:"caller_api"`
}

// UnregisterSubscriberArgs withdraws a subscription.
type UnregisterSubscriberArgs struct {
	CallerID  string `json:"callerid"`
	Topic     string `json:"topic"`
	CallerAPI string `json:"caller_api"`
}

// GetPublishedTopicsArgs lists known (topic, type) pairs, optionally
// restricted to a namespace subgraph.
type GetPublishedTopicsArgs struct {
	CallerID string `json:"callerid"`
	Subgraph string `json:"subgraph"`
}

// LookupNodeArgs resolves a node name to its control URI.
type LookupNodeArgs struct {
	CallerID string `json:"callerid"`
	NodeName string `json:"node_name"`
}

// MasterProxy is the registry collaborator: it supplies, per topic, the
// current publisher list, initially through registerSubscriber and
// afterwards through publisherUpdate pushes to the node API.
type MasterProxy struct {
	callerID string
	caller   Caller
	log      zerolog.Logger
}

func NewMasterProxy(caller Caller, callerID string, logger zerolog.Logger) *MasterProxy {
	return &MasterProxy{
		callerID: callerID,
		caller:   caller,
		log:      logger.With().Str("component", "master").Logger(),
	}
}

// RegisterSubscriber registers interest in topic and returns the
// publisher URIs known at registration time.
func (m *MasterProxy) RegisterSubscriber(ctx context.Context, topic, msgType, callerAPI string) ([]string, error) {
	env, err := callEnvelope(ctx, m.caller, "registerSubscriber", RegisterSubscriberArgs{
		CallerID:  m.callerID,
		Topic:     topic,
		Type:      msgType,
		CallerAPI: callerAPI,
	})
	if err != nil {
		return nil, err
	}
	var uris []string
	if err := env.Decode(&uris); err != nil {
		return nil, err
	}
	m.log.Debug().Str("topic", topic).Int("publishers", len(uris)).Msg("subscriber registered")
	return uris, nil
}

func (m *MasterProxy) UnregisterSubscriber(ctx context.Context, topic, callerAPI string) error {
	_, err := callEnvelope(ctx, m.caller, "unregisterSubscriber", UnregisterSubscriberArgs{
		CallerID:  m.callerID,
		Topic:     topic,
		CallerAPI: callerAPI,
	})
	return err
}

func (m *MasterProxy) GetPublishedTopics(ctx context.Context, subgraph string) ([]TopicInfo, error) {
	env, err := callEnvelope(ctx, m.caller, "getPublishedTopics", GetPublishedTopicsArgs{
		CallerID: m.callerID,
		Subgraph: subgraph,
	})
	if err != nil {
		return nil, err
	}
	var pairs [][]string
	if err := env.Decode(&pairs); err != nil {
		return nil, err
	}
	out := make([]TopicInfo, 0, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("%w: topic entry %d has %d elements", ErrEnvelopeShape, i, len(pair))
		}
		out = append(out, TopicInfo{Name: pair[0], Type: pair[1]})
	}
	return out, nil
}

func (m *MasterProxy) LookupNode(ctx context.Context, nodeName string) (string, error) {
	env, err := callEnvelope(ctx, m.caller, "lookupNode", LookupNodeArgs{
		CallerID: m.callerID,
		NodeName: nodeName,
	})
	if err != nil {
		return "", err
	}
	var uri string
	if err := env.Decode(&uri); err != nil {
		return "", err
	}
	return uri, nil
}
