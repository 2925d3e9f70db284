package control

import (
	"context"
	"sync"
)

// CallStatus tracks one AsyncCall through its lifecycle. A call moves
// from Pending to exactly one terminal status; Reset returns the handle
// to Idle for reuse.
type CallStatus int

const (
	CallIdle CallStatus = iota
	CallPending
	CallDone
	CallFailed
)

func (s CallStatus) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallPending:
		return "pending"
	case CallDone:
		return "done"
	case CallFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// AsyncCall is a pollable, non-blocking invocation of a remote control
// method. Start launches the call; Running/Done/Failed observe the
// current status without blocking; Result is valid only once Done.
type AsyncCall struct {
	caller Caller

	mu     sync.Mutex
	seq    uint64
	method string
	status CallStatus
	env    Envelope
	err    error
}

func NewAsyncCall(caller Caller) *AsyncCall {
	return &AsyncCall{caller: caller}
}

// Start issues the call without blocking. The handle is busy until the
// owner consumes the outcome and calls Reset: a start against a handle
// that is pending, or that holds an unconsumed result, is rejected with
// ErrPrecedingCallNotFinished. Without this a second starter could
// silently discard a resolved result the first owner never saw.
func (a *AsyncCall) Start(ctx context.Context, method string, args any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != CallIdle {
		return ErrPrecedingCallNotFinished
	}
	a.seq++
	seq := a.seq
	a.method = method
	a.status = CallPending
	a.env = Envelope{}
	a.err = nil

	go func() {
		env, err := a.caller.Call(ctx, method, args)
		a.mu.Lock()
		defer a.mu.Unlock()
		// A Reset after Start discards the in-flight result.
		if a.seq != seq || a.status != CallPending {
			return
		}
		if err != nil {
			a.status = CallFailed
			a.err = err
			return
		}
		a.status = CallDone
		a.env = env
	}()
	return nil
}

func (a *AsyncCall) Method() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.method
}

func (a *AsyncCall) Status() CallStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *AsyncCall) Running() bool { return a.Status() == CallPending }
func (a *AsyncCall) Done() bool    { return a.Status() == CallDone }
func (a *AsyncCall) Failed() bool  { return a.Status() == CallFailed }

// Result returns the reply envelope; ErrInvalidState unless Done.
func (a *AsyncCall) Result() (Envelope, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != CallDone {
		return Envelope{}, ErrInvalidState
	}
	return a.env, nil
}

// Err returns the failure detail; nil unless Failed.
func (a *AsyncCall) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != CallFailed {
		return nil
	}
	return a.err
}

// Reset discards any terminal status and cancels interest in an
// in-flight result, permitting reuse of the handle.
func (a *AsyncCall) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	a.method = ""
	a.status = CallIdle
	a.env = Envelope{}
	a.err = nil
}
