// Package history holds the bounded, newest-first collections of generated
// images, with write-through persistence and the session-only staging list
// for edit sources.
package history

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MaxItems is the history cap. Prepending to a full history evicts the
// oldest entry.
const MaxItems = 12

// GeneratedImage is one history entry: the image bytes plus the prompt
// that produced them.
type GeneratedImage struct {
	ID       uuid.UUID
	Data     []byte
	MimeType string
	Prompt   string
	Width    int
	Height   int
}

// Saver persists the full contents of a named collection. The history
// writes through on every mutation, so persisted state never lags the
// in-memory view.
type Saver interface {
	ReplaceCollection(ctx context.Context, name string, items []GeneratedImage) error
}

// History is a bounded newest-first image collection. All methods are
// safe for concurrent use.
type History struct {
	mu    sync.Mutex
	name  string
	items []GeneratedImage
	saver Saver
}

// NewHistory creates an empty history for the named collection. saver may
// be nil for an in-memory-only history.
func NewHistory(name string, saver Saver) (*History, error) {
	if name == "" {
		return nil, fmt.Errorf("history: collection name is required")
	}
	return &History{name: name, saver: saver}, nil
}

// Restore replaces the in-memory contents with previously persisted items,
// trimming to the cap. It does not write back.
func (h *History) Restore(items []GeneratedImage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(items) > MaxItems {
		items = items[:MaxItems]
	}
	h.items = append([]GeneratedImage(nil), items...)
}

// Prepend inserts images at the front, keeping their relative order, and
// evicts the oldest entries when the history overflows. The collection is
// then written through to the saver.
func (h *History) Prepend(ctx context.Context, imgs ...GeneratedImage) error {
	if len(imgs) == 0 {
		return nil
	}

	h.mu.Lock()
	next := make([]GeneratedImage, 0, MaxItems)
	next = append(next, imgs...)
	if len(next) > MaxItems {
		next = next[:MaxItems]
	}
	for _, existing := range h.items {
		if len(next) == MaxItems {
			break
		}
		next = append(next, existing)
	}
	h.items = next
	snapshot := h.itemsLocked()
	h.mu.Unlock()

	return h.save(ctx, snapshot)
}

// Remove deletes the entry with the given ID, if present, and writes
// through. Removing an absent ID is a no-op.
func (h *History) Remove(ctx context.Context, id uuid.UUID) error {
	h.mu.Lock()
	found := false
	next := h.items[:0]
	for _, item := range h.items {
		if item.ID == id {
			found = true
			continue
		}
		next = append(next, item)
	}
	h.items = next
	snapshot := h.itemsLocked()
	h.mu.Unlock()

	if !found {
		return nil
	}
	return h.save(ctx, snapshot)
}

// Clear empties the history and writes through.
func (h *History) Clear(ctx context.Context) error {
	h.mu.Lock()
	h.items = nil
	h.mu.Unlock()

	return h.save(ctx, nil)
}

// Items returns the entries newest first.
func (h *History) Items() []GeneratedImage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.itemsLocked()
}

// Len returns the current entry count.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}

func (h *History) itemsLocked() []GeneratedImage {
	out := make([]GeneratedImage, len(h.items))
	copy(out, h.items)
	return out
}

func (h *History) save(ctx context.Context, items []GeneratedImage) error {
	if h.saver == nil {
		return nil
	}
	if err := h.saver.ReplaceCollection(ctx, h.name, items); err != nil {
		return fmt.Errorf("history: failed to persist %q collection: %w", h.name, err)
	}
	return nil
}
