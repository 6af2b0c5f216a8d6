// Package loader orchestrates cache-or-fetch loading of remote sandbox
// files: cache-first reads, supersession of stale in-flight loads, fetch
// deadlines, debounced repeat requests, and speculative preloading of
// files the user is likely to open next.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/quasarhq/quasar/internal/cache"
	"github.com/quasarhq/quasar/internal/editor"
	"github.com/quasarhq/quasar/internal/language"
	"github.com/quasarhq/quasar/internal/logging"
	"github.com/quasarhq/quasar/internal/metrics"
	"github.com/quasarhq/quasar/internal/observability"
	"github.com/quasarhq/quasar/internal/sandbox"
	"github.com/quasarhq/quasar/internal/session"
)

// ErrTimeout is returned when a fetch outlives the configured deadline.
var ErrTimeout = errors.New("loader: file fetch timed out")

// DefaultFetchTimeout bounds a single remote content fetch.
const DefaultFetchTimeout = 10 * time.Second

// LoadOptions control a single load.
type LoadOptions struct {
	// Force bypasses the cache and always fetches.
	Force bool
	// Preload marks a speculative load: it may only warm the cache and
	// must never touch editor or status state.
	Preload bool
	// Priority is advisory; preloads use "low".
	Priority string
}

// LoadResult reports how a load settled. Cancelled results are not errors:
// a newer load superseded this one and its outcome was discarded.
type LoadResult struct {
	Success   bool
	FromCache bool
	Cancelled bool
	Duration  time.Duration
}

// Loader is the single entry point the UI uses to obtain file content.
type Loader struct {
	cache    *cache.FileCache
	fetcher  sandbox.ContentFetcher
	editor   editor.Sink
	status   editor.StatusSink
	sessions *session.Manager

	timeout      time.Duration
	preloadDelay time.Duration
	debounce     *Debouncer

	// gen is the supersession counter: each foreground load bumps it and
	// compares once after its fetch settles. Preloads never bump it.
	gen atomic.Int64

	// afterFunc is injectable so tests control preload scheduling.
	afterFunc func(time.Duration, func()) *time.Timer
}

// Option configures a Loader.
type Option func(*Loader)

// WithTimeout overrides the per-fetch deadline.
func WithTimeout(d time.Duration) Option {
	return func(l *Loader) { l.timeout = d }
}

// WithDebounceWindow overrides the debounce window for DebouncedLoad.
func WithDebounceWindow(d time.Duration) Option {
	return func(l *Loader) { l.debounce = NewDebouncer(d) }
}

// WithPreloadDelay overrides the delay before SmartPreload fires.
func WithPreloadDelay(d time.Duration) Option {
	return func(l *Loader) { l.preloadDelay = d }
}

// WithAfterFunc injects the timer used to schedule preload passes.
func WithAfterFunc(f func(time.Duration, func()) *time.Timer) Option {
	return func(l *Loader) { l.afterFunc = f }
}

// New creates a Loader.
func New(fetcher sandbox.ContentFetcher, c *cache.FileCache, sessions *session.Manager,
	ed editor.Sink, status editor.StatusSink, opts ...Option) *Loader {
	l := &Loader{
		cache:        c,
		fetcher:      fetcher,
		editor:       ed,
		status:       status,
		sessions:     sessions,
		timeout:      DefaultFetchTimeout,
		preloadDelay: DefaultPreloadDelay,
		afterFunc:    time.AfterFunc,
	}
	l.debounce = NewDebouncer(DefaultDebounceWindow)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load obtains file content, cache-first. On failure the returned result is
// non-nil with Success=false and the error describes the failure; a
// superseded load returns Cancelled=true with a nil error.
func (l *Loader) Load(ctx context.Context, path string, opts LoadOptions) (*LoadResult, error) {
	start := time.Now()
	requestID := uuid.New().String()

	sessionID, err := l.sessions.Require()
	if err != nil {
		if !opts.Preload {
			l.status.SetError(err.Error())
		}
		return &LoadResult{Duration: time.Since(start)}, err
	}

	ctx, span := observability.StartSpan(ctx, "loader.load",
		observability.AttrPath.String(path),
		observability.AttrSessionID.String(sessionID),
		observability.AttrRequestID.String(requestID),
		observability.AttrPreload.Bool(opts.Preload),
	)
	defer span.End()

	// Foreground loads become "current"; any earlier in-flight foreground
	// load is obsolete from here on and will discard its result.
	var gen int64
	if !opts.Preload {
		gen = l.gen.Add(1)
	}

	if !opts.Force {
		if entry, cerr := l.cache.Get(sessionID, path); cerr == nil {
			metrics.Global().RecordCacheHit()
			if !opts.Preload {
				l.applyToEditor(path, entry.Content, entry.Language)
			}
			d := time.Since(start)
			metrics.Global().RecordLoad(d.Milliseconds(), true, opts.Preload, true)
			span.SetAttributes(observability.AttrFromCache.Bool(true))
			observability.SetSpanOK(span)
			return &LoadResult{Success: true, FromCache: true, Duration: d}, nil
		}
	}
	// Both a genuine miss and a forced bypass count as misses for the
	// loader's metrics; the cache's own counters only track real lookups.
	metrics.Global().RecordCacheMiss()

	if !opts.Preload {
		l.status.SetLoading(true)
	}

	fctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	fc, ferr := l.fetcher.FetchFileContent(fctx, sessionID, path)

	// Single resumption point: timeout and supersession share this
	// discard path.
	if !opts.Preload && l.gen.Load() != gen {
		metrics.Global().RecordCancelled()
		logging.Op().Debug("load superseded", "path", path, "request_id", requestID)
		return &LoadResult{Cancelled: true, Duration: time.Since(start)}, nil
	}

	if ferr != nil {
		if errors.Is(ferr, context.DeadlineExceeded) {
			ferr = fmt.Errorf("%w: %s after %s", ErrTimeout, path, l.timeout)
			metrics.Global().RecordTimeout()
		}
		d := time.Since(start)
		if opts.Preload {
			// Preload failures are swallowed: log-level diagnostics only,
			// never user-visible state.
			logging.Op().Debug("preload fetch failed", "path", path, "error", ferr)
		} else {
			l.status.SetLoading(false)
			l.status.SetError(ferr.Error())
		}
		metrics.Global().RecordLoad(d.Milliseconds(), false, opts.Preload, false)
		logging.Loads().Log(&logging.LoadLog{
			RequestID:  requestID,
			SessionID:  sessionID,
			Path:       path,
			DurationMs: d.Milliseconds(),
			Preload:    opts.Preload,
			Success:    false,
			Error:      ferr.Error(),
		})
		observability.SetSpanError(span, ferr)
		return &LoadResult{Duration: d}, ferr
	}

	lang := language.Detect(path)
	l.cache.Set(sessionID, path, fc.Content, lang)

	if !opts.Preload {
		l.applyToEditor(path, fc.Content, lang)
		l.status.SetLoading(false)
		l.status.ClearError()
	}

	d := time.Since(start)
	metrics.Global().RecordLoad(d.Milliseconds(), false, opts.Preload, true)
	logging.Loads().Log(&logging.LoadLog{
		RequestID:  requestID,
		SessionID:  sessionID,
		Path:       path,
		DurationMs: d.Milliseconds(),
		Preload:    opts.Preload,
		SizeBytes:  int64(len(fc.Content)),
		Success:    true,
	})
	span.SetAttributes(observability.AttrFromCache.Bool(false))
	observability.SetSpanOK(span)
	return &LoadResult{Success: true, FromCache: false, Duration: d}, nil
}

// applyToEditor pushes a successfully loaded file into the editor state.
func (l *Loader) applyToEditor(path, content, lang string) {
	l.editor.SetContent(content)
	l.editor.SetLanguage(lang)
	l.editor.SetDirty(false)
	l.editor.SetCurrentFile(editor.FileDescriptor{
		Path:     path,
		Language: lang,
		Size:     int64(len(content)),
	})
}

// AcceptInitialFile stores externally pushed bootstrap content without a
// network round-trip, e.g. when the surrounding system opens a session with
// a file already in hand.
func (l *Loader) AcceptInitialFile(sessionID, path, content string) {
	l.cache.Set(sessionID, path, content, language.Detect(path))
}

// DebouncedLoad coalesces rapid repeated selections within the debounce
// window into the latest call only. Fire-and-forget: the outcome reaches
// the UI through the editor and status sinks.
func (l *Loader) DebouncedLoad(ctx context.Context, path string, opts LoadOptions) {
	l.debounce.Do(func() {
		l.Load(ctx, path, opts)
	})
}
