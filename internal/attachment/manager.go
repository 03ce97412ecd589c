// Package attachment owns the lifecycle of the single pending image
// attachment: validate, encode, hand off to the next send, clear. The slot
// holds at most one attachment; attaching again replaces it.
package attachment

import (
	"strings"
	"sync"

	"gemchat/internal/domain"
)

// MaxSizeBytes is the attachment size ceiling (10 MiB).
const MaxSizeBytes = 10 << 20

// Manager holds zero or one pending image attachment. It is safe for
// concurrent use; TakeForSend is an atomic get-and-clear so a racing Attach
// resolves deterministically to one side of the swap.
type Manager struct {
	mu      sync.Mutex
	pending *domain.PendingAttachment
}

// NewManager creates an empty attachment slot.
func NewManager() *Manager {
	return &Manager{}
}

// Attach validates and stages an image for the next send, replacing any
// existing pending attachment. On validation failure the slot is left
// untouched. sizeBytes is the caller-declared size; the larger of it and
// len(data) is checked against the ceiling.
func (m *Manager) Attach(name, mimeType string, data []byte, sizeBytes int64) error {
	if !strings.HasPrefix(mimeType, "image/") {
		return domain.NewError(domain.KindInvalidType, "not_an_image", nil)
	}
	size := sizeBytes
	if n := int64(len(data)); n > size {
		size = n
	}
	if size > MaxSizeBytes {
		return domain.NewError(domain.KindTooLarge, "attachment_exceeds_limit", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = &domain.PendingAttachment{
		Name:      name,
		MimeType:  mimeType,
		SizeBytes: size,
		Data:      data,
		DataURL:   domain.EncodeDataURL(mimeType, data),
	}
	return nil
}

// TakeForSend returns the pending attachment and clears the slot, or nil if
// none is staged. The attachment is consumed regardless of what the caller
// does with it.
func (m *Manager) TakeForSend() *domain.PendingAttachment {
	m.mu.Lock()
	defer m.mu.Unlock()
	pa := m.pending
	m.pending = nil
	return pa
}

// Clear discards the pending attachment, if any. Used when the user cancels
// before sending.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
}

// HasPending reports whether an attachment is staged. Read-only; intended for
// presentation indicators.
func (m *Manager) HasPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}
