package history

import (
	"sync"

	"github.com/google/uuid"
)

// MaxStagedImages is the staging cap; it matches the highest slot an edit
// prompt can reference.
const MaxStagedImages = 8

// StagingList is the ordered set of source images staged for the next
// edit. Position is meaningful: slot N is what an @imgN prompt reference
// resolves to. The list is session-only and never persisted.
type StagingList struct {
	mu    sync.Mutex
	items []GeneratedImage
}

// NewStagingList creates an empty staging list.
func NewStagingList() *StagingList {
	return &StagingList{}
}

// Add stages an image. Re-staging an already staged ID moves it to the
// tail instead of duplicating it. When the list is full the head slot is
// evicted so the newest reference always lands.
func (s *StagingList) Add(img GeneratedImage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]GeneratedImage, 0, MaxStagedImages)
	for _, existing := range s.items {
		if existing.ID == img.ID {
			continue
		}
		next = append(next, existing)
	}
	if len(next) >= MaxStagedImages {
		next = next[1:]
	}
	s.items = append(next, img)
}

// Remove unstages the image with the given ID. Absent IDs are a no-op;
// later images shift down so slots stay contiguous.
func (s *StagingList) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.items[:0]
	for _, item := range s.items {
		if item.ID == id {
			continue
		}
		next = append(next, item)
	}
	s.items = next
}

// Clear unstages everything.
func (s *StagingList) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}

// Items returns the staged images in slot order.
func (s *StagingList) Items() []GeneratedImage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]GeneratedImage, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of staged images.
func (s *StagingList) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
