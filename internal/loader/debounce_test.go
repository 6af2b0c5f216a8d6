package loader

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerCoalesces(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)

	var ran atomic.Int32
	var last atomic.Int32
	for i := 1; i <= 5; i++ {
		i := int32(i)
		d.Do(func() {
			ran.Add(1)
			last.Store(i)
		})
	}

	time.Sleep(100 * time.Millisecond)

	if got := ran.Load(); got != 1 {
		t.Fatalf("expected exactly 1 run, got %d", got)
	}
	if got := last.Load(); got != 5 {
		t.Fatalf("the latest call must win, got call %d", got)
	}
}

func TestDebouncerStop(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	var ran atomic.Int32
	d.Do(func() { ran.Add(1) })
	d.Stop()

	time.Sleep(60 * time.Millisecond)

	if ran.Load() != 0 {
		t.Fatal("Stop must cancel the pending call")
	}
}

func TestDebouncedLoadRunsLatestOnly(t *testing.T) {
	fetcher := newCountingFetcher(map[string]string{
		"/a.py": "a",
		"/b.py": "b",
	})
	l, state, _ := newTestLoader(fetcher, WithDebounceWindow(25*time.Millisecond))

	l.DebouncedLoad(context.Background(), "/a.py", LoadOptions{})
	l.DebouncedLoad(context.Background(), "/b.py", LoadOptions{})

	time.Sleep(150 * time.Millisecond)

	if n := fetcher.callCount("/a.py"); n != 0 {
		t.Fatalf("superseded debounced load ran %d times, want 0", n)
	}
	if n := fetcher.callCount("/b.py"); n != 1 {
		t.Fatalf("latest debounced load ran %d times, want 1", n)
	}
	if state.Content() != "b" {
		t.Fatalf("editor content: got %q", state.Content())
	}
}
