package control

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/roslink/internal/testutil/testlog"
)

// fakeCaller scripts control-call replies. A non-nil gate blocks every
// call until the gate is closed, letting tests observe pending status.
type fakeCaller struct {
	mu      sync.Mutex
	methods []string
	gate    chan struct{}
	respond func(method string, args any) (Envelope, error)
}

func (f *fakeCaller) Call(ctx context.Context, method string, args any) (Envelope, error) {
	f.mu.Lock()
	f.methods = append(f.methods, method)
	gate := f.gate
	respond := f.respond
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		}
	}
	if respond == nil {
		return okEnv("ok", 1), nil
	}
	return respond(method, args)
}

func (f *fakeCaller) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.methods))
	copy(out, f.methods)
	return out
}

func okEnv(status string, value any) Envelope {
	raw, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}
	return Envelope{Code: StatusSuccess, Status: status, Value: raw}
}

func waitStatus(t *testing.T, a *AsyncCall, want CallStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a.Status() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("status never reached %v, stuck at %v", want, a.Status())
}

func TestAsyncCallLifecycle(t *testing.T) {
	testlog.Start(t)
	gate := make(chan struct{})
	caller := &fakeCaller{
		gate: gate,
		respond: func(method string, args any) (Envelope, error) {
			return okEnv("done", 4242), nil
		},
	}
	a := NewAsyncCall(caller)
	if a.Status() != CallIdle {
		t.Fatalf("fresh handle status=%v", a.Status())
	}

	if err := a.Start(context.Background(), "getPid", CallerArgs{CallerID: "/n"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !a.Running() {
		t.Fatalf("call should be pending")
	}
	if err := a.Start(context.Background(), "getPid", nil); !errors.Is(err, ErrPrecedingCallNotFinished) {
		t.Fatalf("overlapping start: got %v", err)
	}
	if _, err := a.Result(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("result while pending: got %v", err)
	}

	close(gate)
	waitStatus(t, a, CallDone)
	env, err := a.Result()
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	var pid int
	if err := env.Decode(&pid); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pid != 4242 {
		t.Fatalf("pid got=%d", pid)
	}
	if a.Err() != nil {
		t.Fatalf("done call should carry no error")
	}
	if a.Method() != "getPid" {
		t.Fatalf("method got=%q", a.Method())
	}
}

func TestAsyncCallFailure(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("connection refused")
	caller := &fakeCaller{
		respond: func(method string, args any) (Envelope, error) {
			return Envelope{}, boom
		},
	}
	a := NewAsyncCall(caller)
	if err := a.Start(context.Background(), "requestTopic", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitStatus(t, a, CallFailed)
	if !errors.Is(a.Err(), boom) {
		t.Fatalf("err got=%v", a.Err())
	}
	if _, err := a.Result(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("result of failed call: got %v", err)
	}
}

func TestAsyncCallUnconsumedResultBlocksRestart(t *testing.T) {
	testlog.Start(t)
	caller := &fakeCaller{}
	a := NewAsyncCall(caller)
	if err := a.Start(context.Background(), "getPid", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitStatus(t, a, CallDone)
	// The resolved result is still unconsumed: a restart would discard
	// it out from under whoever started the call.
	if err := a.Start(context.Background(), "getBusStats", nil); !errors.Is(err, ErrPrecedingCallNotFinished) {
		t.Fatalf("restart over unconsumed result: got %v", err)
	}
	if _, err := a.Result(); err != nil {
		t.Fatalf("result must survive the rejected restart: %v", err)
	}

	a.Reset()
	if err := a.Start(context.Background(), "getBusStats", nil); err != nil {
		t.Fatalf("restart after reset: %v", err)
	}
	waitStatus(t, a, CallDone)
	if got := caller.calls(); len(got) != 2 || got[1] != "getBusStats" {
		t.Fatalf("calls got=%v", got)
	}
}

func TestAsyncCallUnconsumedFailureBlocksRestart(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("unreachable")
	caller := &fakeCaller{
		respond: func(method string, args any) (Envelope, error) {
			return Envelope{}, boom
		},
	}
	a := NewAsyncCall(caller)
	if err := a.Start(context.Background(), "getPid", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitStatus(t, a, CallFailed)
	if err := a.Start(context.Background(), "getPid", nil); !errors.Is(err, ErrPrecedingCallNotFinished) {
		t.Fatalf("restart over unconsumed failure: got %v", err)
	}
	if !errors.Is(a.Err(), boom) {
		t.Fatalf("failure must survive the rejected restart: %v", a.Err())
	}
	a.Reset()
	if err := a.Start(context.Background(), "getPid", nil); err != nil {
		t.Fatalf("restart after reset: %v", err)
	}
}

func TestAsyncCallResetDiscardsInFlightResult(t *testing.T) {
	testlog.Start(t)
	gate := make(chan struct{})
	caller := &fakeCaller{gate: gate}
	a := NewAsyncCall(caller)
	if err := a.Start(context.Background(), "getPid", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	a.Reset()
	if a.Status() != CallIdle {
		t.Fatalf("reset handle status=%v", a.Status())
	}

	close(gate)
	// The stale goroutine resolves; the handle must stay idle.
	time.Sleep(20 * time.Millisecond)
	if a.Status() != CallIdle {
		t.Fatalf("stale result resurrected handle: %v", a.Status())
	}
	if err := a.Start(context.Background(), "shutdown", nil); err != nil {
		t.Fatalf("start after reset: %v", err)
	}
	waitStatus(t, a, CallDone)
}
