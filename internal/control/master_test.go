package control

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/danmuck/roslink/internal/testutil/testlog"
)

func TestMasterProxyRegisterSubscriber(t *testing.T) {
	testlog.Start(t)
	caller := &fakeCaller{
		respond: func(method string, args any) (Envelope, error) {
			if method != "registerSubscriber" {
				t.Errorf("method got=%q", method)
			}
			req := args.(RegisterSubscriberArgs)
			if req.CallerID != "/listener" || req.Topic != "/chatter" ||
				req.Type != "std_msgs/String" || req.CallerAPI != "http://10.0.0.9:9600" {
				t.Errorf("args got=%+v", req)
			}
			return okEnv("registered", []string{"http://pub-a:9601", "http://pub-b:9601"}), nil
		},
	}
	m := NewMasterProxy(caller, "/listener", zerolog.Nop())
	uris, err := m.RegisterSubscriber(context.Background(), "/chatter", "std_msgs/String", "http://10.0.0.9:9600")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(uris) != 2 || uris[0] != "http://pub-a:9601" {
		t.Fatalf("uris got=%v", uris)
	}
}

func TestMasterProxyUnregisterFailure(t *testing.T) {
	testlog.Start(t)
	caller := &fakeCaller{
		respond: func(method string, args any) (Envelope, error) {
			return Envelope{Code: StatusError, Status: "internal error"}, nil
		},
	}
	m := NewMasterProxy(caller, "/listener", zerolog.Nop())
	err := m.UnregisterSubscriber(context.Background(), "/chatter", "http://10.0.0.9:9600")
	if !errors.Is(err, ErrRemoteCallFailed) {
		t.Fatalf("got %v", err)
	}
}

func TestMasterProxyGetPublishedTopics(t *testing.T) {
	testlog.Start(t)
	caller := &fakeCaller{
		respond: func(method string, args any) (Envelope, error) {
			return okEnv("topics", [][]string{
				{"/chatter", "std_msgs/String"},
				{"/odom", "nav_msgs/Odometry"},
			}), nil
		},
	}
	m := NewMasterProxy(caller, "/listener", zerolog.Nop())
	topics, err := m.GetPublishedTopics(context.Background(), "")
	if err != nil {
		t.Fatalf("get published topics: %v", err)
	}
	if len(topics) != 2 || topics[1].Name != "/odom" || topics[1].Type != "nav_msgs/Odometry" {
		t.Fatalf("topics got=%v", topics)
	}
}

func TestMasterProxyRejectsMalformedListing(t *testing.T) {
	testlog.Start(t)
	caller := &fakeCaller{
		respond: func(method string, args any) (Envelope, error) {
			return okEnv("topics", [][]string{{"/chatter"}}), nil
		},
	}
	m := NewMasterProxy(caller, "/listener", zerolog.Nop())
	if _, err := m.GetPublishedTopics(context.Background(), ""); !errors.Is(err, ErrEnvelopeShape) {
		t.Fatalf("got %v", err)
	}
}

func TestMasterProxyLookupNode(t *testing.T) {
	testlog.Start(t)
	caller := &fakeCaller{
		respond: func(method string, args any) (Envelope, error) {
			return okEnv("found", "http://10.0.0.7:9600"), nil
		},
	}
	m := NewMasterProxy(caller, "/listener", zerolog.Nop())
	uri, err := m.LookupNode(context.Background(), "/talker")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if uri != "http://10.0.0.7:9600" {
		t.Fatalf("uri got=%q", uri)
	}
}
