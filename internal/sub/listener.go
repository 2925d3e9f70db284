package sub

import (
	"errors"
	"reflect"
)

var (
	ErrNilListener        = errors.New("sub: nil listener")
	ErrListenerRegistered = errors.New("sub: listener already registered")
)

// Listener is the message-delivery capability. A returned error is
// reported and never stops delivery to other listeners or messages.
type Listener interface {
	Deliver(msg Message) error
}

// ListenerFunc adapts a plain callback to the Listener capability.
type ListenerFunc func(msg Message)

func (f ListenerFunc) Deliver(msg Message) error {
	f(msg)
	return nil
}

// sameListener reports whether two registrations refer to the same
// capability. Func adapters are compared by code pointer since func
// values are not ==-comparable; other listeners compare as interface
// values when their dynamic type permits it.
func sameListener(a, b Listener) bool {
	if a == nil || b == nil {
		return a == b
	}
	va := reflect.ValueOf(a)
	vb := reflect.ValueOf(b)
	if va.Kind() == reflect.Func || vb.Kind() == reflect.Func {
		return va.Kind() == reflect.Func && vb.Kind() == reflect.Func &&
			va.Pointer() == vb.Pointer()
	}
	if va.Type() != vb.Type() || !va.Type().Comparable() {
		return false
	}
	return a == b
}
