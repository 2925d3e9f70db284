package control

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// MethodRequestTopic is the transport-negotiation call name.
const MethodRequestTopic = "requestTopic"

// CallerArgs is the common single-argument shape: every control call
// carries the local node identity as the caller.
type CallerArgs struct {
	CallerID string `json:"callerid"`
}

// ShutdownArgs asks a remote node to exit, with a reason.
type ShutdownArgs struct {
	CallerID string `json:"callerid"`
	Message  string `json:"message"`
}

// RequestTopicArgs negotiates a data transport for one topic. Protocols
// lists offered transports, most preferred first; each entry is the
// transport name followed by transport-specific parameters.
type RequestTopicArgs struct {
	CallerID  string     `json:"callerid"`
	Topic     string     `json:"topic"`
	Protocols [][]string `json:"protocols"`
}

// TransportParams is the negotiated transport: name plus the endpoint
// the publisher is listening on.
type TransportParams struct {
	Name string
	Host string
	Port int
}

// TopicInfo names one (topic, type) pair from a subscription or
// publication listing.
type TopicInfo struct {
	Name string
	Type string
}

// PeerProxy is a typed facade over one remote node's control API. Every
// call carries the local node identity; the non-blocking requestTopic
// negotiation runs through a single AsyncCall slot, so concurrent
// negotiations through the same proxy are rejected rather than queued.
type PeerProxy struct {
	uri       string
	callerID  string
	caller    Caller
	topicCall *AsyncCall
	log       zerolog.Logger
}

func NewPeerProxy(uri, callerID string, caller Caller, logger zerolog.Logger) *PeerProxy {
	return &PeerProxy{
		uri:      uri,
		callerID: callerID,
		caller:   caller,
		log:      logger.With().Str("peer", uri).Logger(),
	}
}

func (p *PeerProxy) URI() string { return p.uri }

func (p *PeerProxy) GetBusStats(ctx context.Context) (json.RawMessage, error) {
	env, err := callEnvelope(ctx, p.caller, "getBusStats", CallerArgs{CallerID: p.callerID})
	if err != nil {
		return nil, err
	}
	return env.Value, nil
}

func (p *PeerProxy) GetMasterURI(ctx context.Context) (string, error) {
	env, err := callEnvelope(ctx, p.caller, "getMasterUri", CallerArgs{CallerID: p.callerID})
	if err != nil {
		return "", err
	}
	var uri string
	if err := env.Decode(&uri); err != nil {
		return "", err
	}
	return uri, nil
}

func (p *PeerProxy) GetPid(ctx context.Context) (int, error) {
	env, err := callEnvelope(ctx, p.caller, "getPid", CallerArgs{CallerID: p.callerID})
	if err != nil {
		return 0, err
	}
	var pid int
	if err := env.Decode(&pid); err != nil {
		return 0, err
	}
	return pid, nil
}

func (p *PeerProxy) Shutdown(ctx context.Context, reason string) error {
	_, err := callEnvelope(ctx, p.caller, "shutdown", ShutdownArgs{CallerID: p.callerID, Message: reason})
	return err
}

func (p *PeerProxy) GetSubscriptions(ctx context.Context) ([]TopicInfo, error) {
	return p.topicListing(ctx, "getSubscriptions")
}

func (p *PeerProxy) GetPublications(ctx context.Context) ([]TopicInfo, error) {
	return p.topicListing(ctx, "getPublications")
}

func (p *PeerProxy) topicListing(ctx context.Context, method string) ([]TopicInfo, error) {
	env, err := callEnvelope(ctx, p.caller, method, CallerArgs{CallerID: p.callerID})
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
			return nil, fmt.Errorf("%w: %s entry %d has %d elements", ErrEnvelopeShape, method, i, len(pair))
		}
		out = append(out, TopicInfo{Name: pair[0], Type: pair[1]})
	}
	return out, nil
}

// RequestTopicStart begins a non-blocking transport negotiation. It
// fails with ErrPrecedingCallNotFinished while an earlier negotiation
// on this proxy is unresolved or its outcome has not been consumed;
// only RequestTopicReset frees the slot.
func (p *PeerProxy) RequestTopicStart(ctx context.Context, topic string, protocols [][]string) error {
	if p.topicCall == nil {
		p.topicCall = NewAsyncCall(p.caller)
	}
	return p.topicCall.Start(ctx, MethodRequestTopic, RequestTopicArgs{
		CallerID:  p.callerID,
		Topic:     topic,
		Protocols: protocols,
	})
}

// negotiation asserts the slot currently holds a requestTopic call.
func (p *PeerProxy) negotiation() (*AsyncCall, error) {
	if p.topicCall == nil || p.topicCall.Method() == "" {
		return nil, ErrInvalidState
	}
	if p.topicCall.Method() != MethodRequestTopic {
		return nil, ErrPrecedingCallNotFinished
	}
	return p.topicCall, nil
}

func (p *PeerProxy) RequestTopicBusy() (bool, error) {
	call, err := p.negotiation()
	if err != nil {
		return false, err
	}
	return call.Running(), nil
}

func (p *PeerProxy) RequestTopicDone() (bool, error) {
	call, err := p.negotiation()
	if err != nil {
		return false, err
	}
	return call.Done(), nil
}

func (p *PeerProxy) RequestTopicFailed() (bool, error) {
	call, err := p.negotiation()
	if err != nil {
		return false, err
	}
	return call.Failed(), nil
}

// RequestTopicErr returns the failure detail of a failed negotiation.
func (p *PeerProxy) RequestTopicErr() error {
	call, err := p.negotiation()
	if err != nil {
		return err
	}
	return call.Err()
}

// RequestTopicResult unwraps the negotiated transport. The envelope
// value is [transportName, host, port].
func (p *PeerProxy) RequestTopicResult() (TransportParams, error) {
	call, err := p.negotiation()
	if err != nil {
		return TransportParams{}, err
	}
	env, err := call.Result()
	if err != nil {
		return TransportParams{}, err
	}
	if env.Code != StatusSuccess {
		return TransportParams{}, fmt.Errorf("%w: %s: code=%d status=%q",
			ErrRemoteCallFailed, MethodRequestTopic, env.Code, env.Status)
	}
	var raw []any
	if err := env.Decode(&raw); err != nil {
		return TransportParams{}, err
	}
	if len(raw) != 3 {
		return TransportParams{}, fmt.Errorf("%w: transport tuple has %d elements", ErrEnvelopeShape, len(raw))
	}
	name, ok := raw[0].(string)
	if !ok {
		return TransportParams{}, fmt.Errorf("%w: transport name", ErrEnvelopeShape)
	}
	host, ok := raw[1].(string)
	if !ok {
		return TransportParams{}, fmt.Errorf("%w: transport host", ErrEnvelopeShape)
	}
	port, ok := raw[2].(float64)
	if !ok {
		return TransportParams{}, fmt.Errorf("%w: transport port", ErrEnvelopeShape)
	}
	return TransportParams{Name: name, Host: host, Port: int(port)}, nil
}

// RequestTopicReset releases the negotiation slot.
func (p *PeerProxy) RequestTopicReset() {
	if p.topicCall != nil {
		p.topicCall.Reset()
	}
}
