package control

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/danmuck/roslink/internal/testutil/testlog"
)

func TestProxyCacheSharesByURI(t *testing.T) {
	testlog.Start(t)
	dials := 0
	dial := func(uri string) (Caller, error) {
		dials++
		return &fakeCaller{}, nil
	}
	cache := NewProxyCache("/listener", dial, zerolog.Nop())

	first, err := cache.Acquire("http://10.0.0.5:9601")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	second, err := cache.Acquire("http://10.0.0.5:9601")
	if err != nil {
		t.Fatalf("acquire again: %v", err)
	}
	if first != second {
		t.Fatalf("same URI must share one proxy")
	}
	if dials != 1 {
		t.Fatalf("dials got=%d want=1", dials)
	}

	other, err := cache.Acquire("http://10.0.0.6:9601")
	if err != nil {
		t.Fatalf("acquire other: %v", err)
	}
	if other == first {
		t.Fatalf("distinct URIs must not share a proxy")
	}
	if cache.Len() != 2 {
		t.Fatalf("len got=%d want=2", cache.Len())
	}
}

func TestProxyCacheRefcountedRelease(t *testing.T) {
	testlog.Start(t)
	cache := NewProxyCache("/listener", func(uri string) (Caller, error) {
		return &fakeCaller{}, nil
	}, zerolog.Nop())

	uri := "http://10.0.0.5:9601"
	if _, err := cache.Acquire(uri); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := cache.Acquire(uri); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	cache.Release(uri)
	if cache.Len() != 1 {
		t.Fatalf("entry dropped while still referenced")
	}
	cache.Release(uri)
	if cache.Len() != 0 {
		t.Fatalf("entry survived last release")
	}
	// Releasing an unknown URI is harmless.
	cache.Release(uri)
	if cache.Len() != 0 {
		t.Fatalf("len got=%d want=0", cache.Len())
	}
}

func TestProxyCacheDialFailure(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("unreachable")
	cache := NewProxyCache("/listener", func(uri string) (Caller, error) {
		return nil, boom
	}, zerolog.Nop())

	if _, err := cache.Acquire("http://10.0.0.5:9601"); !errors.Is(err, boom) {
		t.Fatalf("dial failure: got %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("failed dial must not leave an entry")
	}
}
