package audit

import (
	"context"
	"sync"

	"github.com/saude-al/ambulatorio/internal/shared/errors"
	"github.com/saude-al/ambulatorio/internal/shared/types"
)

// MemoryRepository keeps the audit log in process, for development and tests
type MemoryRepository struct {
	mu      sync.RWMutex
	entries []*AuditEntry // oldest first
}

// NewMemoryRepository creates an empty in-memory audit log
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Initialize(context.Context) error { return nil }

func (r *MemoryRepository) Append(_ context.Context, entry *AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.Sequence = int64(len(r.entries)) + 1
	entry.PrevHash = ""
	if n := len(r.entries); n > 0 {
		entry.PrevHash = r.entries[n-1].Hash
	}
	entry.Hash = entry.calculateHash()

	stored := *entry
	r.entries = append(r.entries, &stored)
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id types.ID) (*AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.ID == id {
			out := *e
			return &out, nil
		}
	}
	return nil, errors.NotFound("audit entry", id.String())
}

func (r *MemoryRepository) List(_ context.Context, filter ListEntriesFilter) ([]*AuditEntry, int, error) {
	entries, total := page(r.newestFirst(-1), filter)
	return entries, total, nil
}

func (r *MemoryRepository) VerifyChain(_ context.Context, limit int, includeDetails bool) (*VerifyResult, error) {
	return verifyEntries(r.newestFirst(verifyLimit(limit)), includeDetails), nil
}

func (r *MemoryRepository) Count(context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries), nil
}

// newestFirst copies up to n entries, newest first; n < 0 copies all
func (r *MemoryRepository) newestFirst(n int) []*AuditEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n < 0 || n > len(r.entries) {
		n = len(r.entries)
	}
	out := make([]*AuditEntry, 0, n)
	for i := len(r.entries) - 1; i >= 0 && len(out) < n; i-- {
		e := *r.entries[i]
		out = append(out, &e)
	}
	return out
}

// page applies filter to entries given newest first
func page(entries []*AuditEntry, filter ListEntriesFilter) ([]*AuditEntry, int) {
	out := make([]*AuditEntry, 0)
	total := 0
	for _, e := range entries {
		if !filter.matches(e) {
			continue
		}
		total++
		if total <= filter.Offset || len(out) >= filter.limit() {
			continue
		}
		out = append(out, e)
	}
	return out, total
}
