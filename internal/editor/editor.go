// Package editor defines the sinks the load pipeline writes into: the
// editor buffer state and the loading/error status surface. Rendering is
// someone else's problem; this package only holds state.
package editor

import "sync"

// FileDescriptor identifies the file currently open in the editor.
type FileDescriptor struct {
	Path     string
	Language string
	Size     int64
}

// Sink receives editor buffer updates. Only the most recent non-preload,
// non-superseded load may write through it.
type Sink interface {
	SetContent(text string)
	SetLanguage(tag string)
	SetDirty(dirty bool)
	SetCurrentFile(fd FileDescriptor)
}

// StatusSink receives the loading flag and user-visible load errors.
type StatusSink interface {
	SetLoading(loading bool)
	SetError(msg string)
	ClearError()
}

// State is a mutex-guarded implementation of Sink and StatusSink, used by
// the CLI and by tests.
type State struct {
	mu          sync.Mutex
	content     string
	language    string
	dirty       bool
	currentFile FileDescriptor
	loading     bool
	lastError   string
}

// NewState returns an empty editor state.
func NewState() *State {
	return &State{}
}

func (s *State) SetContent(text string) {
	s.mu.Lock()
	s.content = text
	s.mu.Unlock()
}

func (s *State) SetLanguage(tag string) {
	s.mu.Lock()
	s.language = tag
	s.mu.Unlock()
}

func (s *State) SetDirty(dirty bool) {
	s.mu.Lock()
	s.dirty = dirty
	s.mu.Unlock()
}

func (s *State) SetCurrentFile(fd FileDescriptor) {
	s.mu.Lock()
	s.currentFile = fd
	s.mu.Unlock()
}

func (s *State) SetLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()
}

func (s *State) SetError(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
}

func (s *State) ClearError() {
	s.mu.Lock()
	s.lastError = ""
	s.mu.Unlock()
}

func (s *State) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content
}

func (s *State) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

func (s *State) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *State) CurrentFile() FileDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentFile
}

func (s *State) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *State) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}
