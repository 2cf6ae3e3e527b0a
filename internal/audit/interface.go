package audit

import (
	"context"

	"github.com/saude-al/ambulatorio/internal/shared/types"
)

// AuditRepository defines audit storage. Entries are only ever appended.
type AuditRepository interface {
	// Initialize loads the chain head (last hash, sequence)
	Initialize(ctx context.Context) error

	// Append chains entry to the head and stores it
	Append(ctx context.Context, entry *AuditEntry) error

	FindByID(ctx context.Context, id types.ID) (*AuditEntry, error)

	// List returns entries newest first, with the total matching filter
	List(ctx context.Context, filter ListEntriesFilter) ([]*AuditEntry, int, error)

	// VerifyChain checks content hashes and linkage of the newest limit entries
	VerifyChain(ctx context.Context, limit int, includeDetails bool) (*VerifyResult, error)

	// Count returns the total number of audit entries
	Count(ctx context.Context) (int, error)
}

var (
	_ AuditRepository = (*Repository)(nil)
	_ AuditRepository = (*KurrentDBRepository)(nil)
	_ AuditRepository = (*MemoryRepository)(nil)
)
