package testutil

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/netcontrolapp/netcontrol/internal/queue"
	"github.com/netcontrolapp/netcontrol/internal/storage"
)

// MemFiles is an in-memory storage.Store keyed by stored name.
type MemFiles struct {
	mu    sync.Mutex
	files map[string][]byte
}

func NewMemFiles() *MemFiles { return &MemFiles{files: map[string][]byte{}} }

func (m *MemFiles) Save(_ context.Context, name string, r io.Reader, _ int64, _ string) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = b
	return storage.Ref(name), nil
}

func (m *MemFiles) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	name, err := storage.NameOf(ref)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[name]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *MemFiles) Delete(_ context.Context, ref string) error {
	name, err := storage.NameOf(ref)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; !ok {
		return storage.ErrNotFound
	}
	delete(m.files, name)
	return nil
}

// Len returns how many files are stored.
func (m *MemFiles) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

// Events records published net events.
type Events struct {
	mu     sync.Mutex
	events []queue.NetEvent
	Err    error
}

func (e *Events) Publish(_ context.Context, ev queue.NetEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return e.Err
}

// Types returns the recorded event types in publish order.
func (e *Events) Types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

// Last returns the most recent event.
func (e *Events) Last() queue.NetEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.events) == 0 {
		return queue.NetEvent{}
	}
	return e.events[len(e.events)-1]
}
