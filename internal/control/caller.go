// Package control implements the node-to-node control plane: the
// JSON-RPC caller, the pollable AsyncCall primitive, typed proxies for
// remote node and master APIs, and the shared proxy cache.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	json2 "github.com/gorilla/rpc/v2/json2"
)

// Status codes carried in every control-call envelope.
const (
	StatusSuccess = 1
	StatusFailure = 0
	StatusError   = -1
)

var (
	ErrInvalidState             = errors.New("control: call result not available")
	ErrPrecedingCallNotFinished = errors.New("control: preceding call not finished")
	ErrRemoteCallFailed         = errors.New("control: remote call failed")
	ErrEnvelopeShape            = errors.New("control: malformed status envelope")
)

// RemoteError marks a failure the peer itself reported: the call reached
// the remote side, which answered with an error instead of an envelope.
type RemoteError struct {
	Method string
	Msg    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("control: remote error on %s: %s", e.Method, e.Msg)
}

// Envelope is the three-part control reply (code, statusMessage, value),
// serialized on the wire as a JSON array.
type Envelope struct {
	Code   int
	Status string
	Value  json.RawMessage
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	value := e.Value
	if len(value) == 0 {
		value = json.RawMessage("null")
	}
	return json.Marshal([]json.RawMessage{
		json.RawMessage(fmt.Sprintf("%d", e.Code)),
		mustMarshal(e.Status),
		value,
	})
}

func (e *Envelope) UnmarshalJSON(b []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil {
		return fmt.Errorf("%w: %v", ErrEnvelopeShape, err)
	}
	if len(parts) != 3 {
		return fmt.Errorf("%w: %d elements", ErrEnvelopeShape, len(parts))
	}
	if err := json.Unmarshal(parts[0], &e.Code); err != nil {
		return fmt.Errorf("%w: code: %v", ErrEnvelopeShape, err)
	}
	if err := json.Unmarshal(parts[1], &e.Status); err != nil {
		return fmt.Errorf("%w: status: %v", ErrEnvelopeShape, err)
	}
	e.Value = parts[2]
	return nil
}

// Decode unmarshals the envelope value into out.
func (e Envelope) Decode(out any) error {
	if len(e.Value) == 0 {
		return fmt.Errorf("%w: empty value", ErrEnvelopeShape)
	}
	return json.Unmarshal(e.Value, out)
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Caller issues one control call and decodes the reply envelope. The
// blocking nature of Call is hidden behind AsyncCall for pollers.
type Caller interface {
	Call(ctx context.Context, method string, args any) (Envelope, error)
}

// HTTPCaller speaks JSON-RPC 2.0 over HTTP POST.
type HTTPCaller struct {
	endpoint *url.URL
	client   *http.Client
}

func NewHTTPCaller(endpoint string) (*HTTPCaller, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("control: parse endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("control: unsupported endpoint scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/rpc"
	}
	return &HTTPCaller{
		endpoint: u,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

func (c *HTTPCaller) Call(ctx context.Context, method string, args any) (Envelope, error) {
	body, err := json2.EncodeClientRequest(method, args)
	if err != nil {
		return Envelope{}, fmt.Errorf("control: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return Envelope{}, fmt.Errorf("control: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Envelope{}, fmt.Errorf("control: %s: %w", method, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Envelope{}, fmt.Errorf("control: %s: status code %d", method, resp.StatusCode)
	}

	var env Envelope
	if err := json2.DecodeClientResponse(resp.Body, &env); err != nil {
		var rpcErr *json2.Error
		if errors.As(err, &rpcErr) {
			return Envelope{}, &RemoteError{Method: method, Msg: rpcErr.Message}
		}
		return Envelope{}, fmt.Errorf("control: decode %s reply: %w", method, err)
	}
	return env, nil
}

// drainAndClose empties the body so the connection can be reused.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

// callEnvelope performs a call and unwraps the status envelope, turning
// a non-success code into ErrRemoteCallFailed.
func callEnvelope(ctx context.Context, caller Caller, method string, args any) (Envelope, error) {
	env, err := caller.Call(ctx, method, args)
	if err != nil {
		return Envelope{}, err
	}
	if env.Code != StatusSuccess {
		return Envelope{}, fmt.Errorf("%w: %s: code=%d status=%q", ErrRemoteCallFailed, method, env.Code, env.Status)
	}
	return env, nil
}
