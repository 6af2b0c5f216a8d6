package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quasarhq/quasar/internal/cache"
	"github.com/quasarhq/quasar/internal/editor"
	"github.com/quasarhq/quasar/internal/sandbox"
	"github.com/quasarhq/quasar/internal/session"
)

const testSession = "sess-1"

func newTestLoader(fetcher sandbox.ContentFetcher, opts ...Option) (*Loader, *editor.State, *cache.FileCache) {
	c := cache.New()
	sessions := session.NewManager(c)
	sessions.Set(testSession)
	state := editor.NewState()
	l := New(fetcher, c, sessions, state, state, opts...)
	return l, state, c
}

// countingFetcher returns canned content and counts calls per path.
type countingFetcher struct {
	mu      sync.Mutex
	content map[string]string
	calls   map[string]int
}

func newCountingFetcher(content map[string]string) *countingFetcher {
	return &countingFetcher{content: content, calls: make(map[string]int)}
}

func (f *countingFetcher) FetchFileContent(_ context.Context, _, path string) (*sandbox.FileContent, error) {
	f.mu.Lock()
	f.calls[path]++
	f.mu.Unlock()

	if c, ok := f.content[path]; ok {
		return &sandbox.FileContent{Path: path, Content: c}, nil
	}
	return nil, fmt.Errorf("sandbox: no such file: %s", path)
}

func (f *countingFetcher) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func TestLoadRequiresSession(t *testing.T) {
	var called atomic.Bool
	fetcher := sandbox.FetcherFunc(func(context.Context, string, string) (*sandbox.FileContent, error) {
		called.Store(true)
		return nil, nil
	})

	c := cache.New()
	state := editor.NewState()
	l := New(fetcher, c, session.NewManager(c), state, state)

	res, err := l.Load(context.Background(), "/a.py", LoadOptions{})
	if !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got: %v", err)
	}
	if res.Success {
		t.Fatal("result must not be successful without a session")
	}
	if called.Load() {
		t.Fatal("no network attempt may happen without a session")
	}
	if state.LastError() == "" {
		t.Fatal("foreground no-session failure must surface in the status sink")
	}
}

func TestLoadEndToEnd(t *testing.T) {
	fetcher := newCountingFetcher(map[string]string{
		"/workspace/main.py": "print(1)",
	})
	l, state, c := newTestLoader(fetcher)

	res, err := l.Load(context.Background(), "/workspace/main.py", LoadOptions{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !res.Success || res.FromCache {
		t.Fatalf("expected fresh successful load, got %+v", res)
	}
	if !c.Has(testSession, "/workspace/main.py") {
		t.Fatal("loaded file must be cached")
	}
	if state.Content() != "print(1)" {
		t.Fatalf("editor content: got %q", state.Content())
	}
	if state.Language() != "python" {
		t.Fatalf("editor language: got %q", state.Language())
	}
	if state.Dirty() {
		t.Fatal("freshly loaded file must not be dirty")
	}
	if state.Loading() {
		t.Fatal("loading flag must be cleared after the load settles")
	}

	// Second load is a cache hit and must not refetch.
	res, err = l.Load(context.Background(), "/workspace/main.py", LoadOptions{})
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if !res.FromCache {
		t.Fatal("second load should come from cache")
	}
	if n := fetcher.callCount("/workspace/main.py"); n != 1 {
		t.Fatalf("fetcher called %d times, want 1", n)
	}
}

func TestLoadForceBypassesCache(t *testing.T) {
	fetcher := newCountingFetcher(map[string]string{"/a.txt": "v2"})
	l, _, c := newTestLoader(fetcher)

	c.Set(testSession, "/a.txt", "v1", "plaintext")

	res, err := l.Load(context.Background(), "/a.txt", LoadOptions{Force: true})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if res.FromCache {
		t.Fatal("force load must bypass the cache")
	}
	entry, err := c.Get(testSession, "/a.txt")
	if err != nil {
		t.Fatalf("Get after force load: %v", err)
	}
	if entry.Content != "v2" {
		t.Fatalf("cache should hold refetched content, got %q", entry.Content)
	}
}

func TestLoadFailureSurfacesError(t *testing.T) {
	fetcher := newCountingFetcher(nil) // every path fails
	l, state, c := newTestLoader(fetcher)

	res, err := l.Load(context.Background(), "/broken.py", LoadOptions{})
	if err == nil {
		t.Fatal("expected a fetch error")
	}
	if res.Success {
		t.Fatal("failed load must not report success")
	}
	if state.LastError() == "" {
		t.Fatal("foreground failure must set the UI error")
	}
	if state.Loading() {
		t.Fatal("loading flag must be cleared on failure")
	}
	if c.Has(testSession, "/broken.py") {
		t.Fatal("failed load must not populate the cache")
	}
}

func TestSupersededLoadIsDiscarded(t *testing.T) {
	slowStarted := make(chan struct{})
	release := make(chan struct{})

	fetcher := sandbox.FetcherFunc(func(_ context.Context, _, path string) (*sandbox.FileContent, error) {
		if path == "/a.py" {
			close(slowStarted)
			<-release
			return &sandbox.FileContent{Path: path, Content: "content-a"}, nil
		}
		return &sandbox.FileContent{Path: path, Content: "content-b"}, nil
	})
	l, state, c := newTestLoader(fetcher)

	done := make(chan *LoadResult, 1)
	go func() {
		res, _ := l.Load(context.Background(), "/a.py", LoadOptions{})
		done <- res
	}()
	<-slowStarted

	// A newer selection supersedes the in-flight /a.py load.
	if _, err := l.Load(context.Background(), "/b.py", LoadOptions{}); err != nil {
		t.Fatalf("Load /b.py: %v", err)
	}

	close(release)
	res := <-done

	if !res.Cancelled {
		t.Fatalf("superseded load must be cancelled, got %+v", res)
	}
	if state.Content() != "content-b" {
		t.Fatalf("editor must reflect /b.py only, got %q", state.Content())
	}
	if fd := state.CurrentFile(); fd.Path != "/b.py" {
		t.Fatalf("current file must be /b.py, got %q", fd.Path)
	}
	if c.Has(testSession, "/a.py") {
		t.Fatal("a superseded result must not touch the cache")
	}
}

func TestSupersededFailureIsSilent(t *testing.T) {
	slowStarted := make(chan struct{})
	release := make(chan struct{})

	fetcher := sandbox.FetcherFunc(func(_ context.Context, _, path string) (*sandbox.FileContent, error) {
		if path == "/a.py" {
			close(slowStarted)
			<-release
			return nil, errors.New("sandbox exploded")
		}
		return &sandbox.FileContent{Path: path, Content: "b"}, nil
	})
	l, state, _ := newTestLoader(fetcher)

	done := make(chan *LoadResult, 1)
	go func() {
		res, _ := l.Load(context.Background(), "/a.py", LoadOptions{})
		done <- res
	}()
	<-slowStarted

	if _, err := l.Load(context.Background(), "/b.py", LoadOptions{}); err != nil {
		t.Fatalf("Load /b.py: %v", err)
	}

	close(release)
	res := <-done

	if !res.Cancelled {
		t.Fatalf("superseded failure must route to the discard path, got %+v", res)
	}
	if state.LastError() != "" {
		t.Fatalf("superseded failure must not surface an error, got %q", state.LastError())
	}
}

func TestLoadTimeout(t *testing.T) {
	fetcher := sandbox.FetcherFunc(func(ctx context.Context, _, _ string) (*sandbox.FileContent, error) {
		<-ctx.Done() // never resolves on its own
		return nil, ctx.Err()
	})
	l, state, _ := newTestLoader(fetcher, WithTimeout(50*time.Millisecond))

	start := time.Now()
	res, err := l.Load(context.Background(), "/slow.py", LoadOptions{})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got: %v", err)
	}
	if res.Success {
		t.Fatal("timed out load must not report success")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout took too long: %v", elapsed)
	}
	if state.LastError() == "" {
		t.Fatal("timeout must surface in the status sink")
	}
}

func TestPreloadNeverTouchesEditorState(t *testing.T) {
	fetcher := newCountingFetcher(map[string]string{"/warm.py": "warm"})
	l, state, c := newTestLoader(fetcher)

	state.SetCurrentFile(editor.FileDescriptor{Path: "/current.py"})
	state.SetContent("current content")

	res, err := l.Load(context.Background(), "/warm.py", LoadOptions{Preload: true})
	if err != nil {
		t.Fatalf("preload failed: %v", err)
	}
	if !res.Success {
		t.Fatal("preload should have succeeded")
	}
	if !c.Has(testSession, "/warm.py") {
		t.Fatal("preload must warm the cache")
	}
	if state.Content() != "current content" {
		t.Fatal("preload must not change editor content")
	}
	if state.CurrentFile().Path != "/current.py" {
		t.Fatal("preload must not change the current file")
	}
	if state.Loading() {
		t.Fatal("preload must not set the loading flag")
	}
}

func TestPreloadFailureIsSwallowed(t *testing.T) {
	fetcher := newCountingFetcher(nil)
	l, state, _ := newTestLoader(fetcher)

	state.SetCurrentFile(editor.FileDescriptor{Path: "/current.py"})

	res, err := l.Load(context.Background(), "/missing.py", LoadOptions{Preload: true})
	if err == nil {
		t.Fatal("expected the underlying error to be returned to the caller")
	}
	if res.Success {
		t.Fatal("failed preload must not report success")
	}
	if state.LastError() != "" {
		t.Fatalf("preload failure must not set the UI error, got %q", state.LastError())
	}
	if state.CurrentFile().Path != "/current.py" {
		t.Fatal("preload failure must not change the current file")
	}
}

func TestPreloadDoesNotSupersedeForeground(t *testing.T) {
	slowStarted := make(chan struct{})
	release := make(chan struct{})

	fetcher := sandbox.FetcherFunc(func(_ context.Context, _, path string) (*sandbox.FileContent, error) {
		if path == "/fg.py" {
			close(slowStarted)
			<-release
			return &sandbox.FileContent{Path: path, Content: "foreground"}, nil
		}
		return &sandbox.FileContent{Path: path, Content: "warm"}, nil
	})
	l, state, _ := newTestLoader(fetcher)

	done := make(chan *LoadResult, 1)
	go func() {
		res, _ := l.Load(context.Background(), "/fg.py", LoadOptions{})
		done <- res
	}()
	<-slowStarted

	// A preload issued while the foreground load is in flight must not
	// make it obsolete.
	if _, err := l.Load(context.Background(), "/warm.py", LoadOptions{Preload: true}); err != nil {
		t.Fatalf("preload: %v", err)
	}

	close(release)
	res := <-done

	if !res.Success || res.Cancelled {
		t.Fatalf("foreground load must survive a preload, got %+v", res)
	}
	if state.Content() != "foreground" {
		t.Fatalf("editor content: got %q", state.Content())
	}
}

func TestAcceptInitialFile(t *testing.T) {
	fetcher := newCountingFetcher(nil)
	l, _, c := newTestLoader(fetcher)

	l.AcceptInitialFile(testSession, "/boot/readme.md", "# hello")

	if !c.Has(testSession, "/boot/readme.md") {
		t.Fatal("initial push must populate the cache")
	}
	res, err := l.Load(context.Background(), "/boot/readme.md", LoadOptions{})
	if err != nil {
		t.Fatalf("Load after initial push: %v", err)
	}
	if !res.FromCache {
		t.Fatal("initial push should make the next load a cache hit")
	}
	if n := fetcher.callCount("/boot/readme.md"); n != 0 {
		t.Fatalf("no network round-trip expected, got %d calls", n)
	}
}

func TestPreloadFilesAllSettled(t *testing.T) {
	fetcher := newCountingFetcher(map[string]string{
		"/a.py": "a",
		"/c.py": "c",
	})
	l, _, c := newTestLoader(fetcher)

	warmed := l.PreloadFiles(context.Background(), []string{"/a.py", "/b.py", "/c.py"})
	if warmed != 2 {
		t.Fatalf("expected 2 warmed, got %d", warmed)
	}
	if !c.Has(testSession, "/a.py") || !c.Has(testSession, "/c.py") {
		t.Fatal("successful preloads must be cached")
	}
	if c.Has(testSession, "/b.py") {
		t.Fatal("failed preload must not be cached")
	}
}
