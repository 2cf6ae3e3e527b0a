package audit

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"

	"github.com/saude-al/ambulatorio/internal/shared/errors"
	"github.com/saude-al/ambulatorio/internal/shared/types"
)

const (
	// AuditStreamName is the stream holding every audit entry
	AuditStreamName = "ambulatorio-audit"
	// AuditEventType is the event type for audit entries
	AuditEventType = "AuditEntry"

	// maxStreamRead bounds full-stream scans
	maxStreamRead = 100000
)

// KurrentDBRepository keeps the audit log in a KurrentDB stream. Streams
// are append-only, so entries cannot be altered after the fact.
type KurrentDBRepository struct {
	client   *esdb.Client
	mu       sync.Mutex
	lastHash string
	sequence int64
}

// NewKurrentDBRepository creates a new KurrentDB-based audit repository
func NewKurrentDBRepository(client *esdb.Client) *KurrentDBRepository {
	return &KurrentDBRepository{client: client}
}

// Initialize loads the last hash and sequence from the end of the stream
func (r *KurrentDBRepository) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.read(ctx, esdb.Backwards, 1)
	if err != nil {
		return err
	}

	r.lastHash, r.sequence = "", 0
	if len(entries) > 0 {
		r.lastHash = entries[0].Hash
		r.sequence = entries[0].Sequence
	}
	return nil
}

// Append appends a new audit entry
func (r *KurrentDBRepository) Append(ctx context.Context, entry *AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.Sequence = r.sequence + 1
	entry.PrevHash = r.lastHash
	entry.Hash = entry.ComputeHash()

	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "failed to marshal audit entry")
	}

	eventData := esdb.EventData{
		EventID:     uuid.New(),
		EventType:   AuditEventType,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
		Metadata:    []byte(fmt.Sprintf(`{"sequence":%d,"hash":%q}`, entry.Sequence, entry.Hash)),
	}

	if _, err := r.client.AppendToStream(ctx, AuditStreamName, esdb.AppendToStreamOptions{}, eventData); err != nil {
		return errors.Wrap(err, "failed to append audit entry")
	}

	r.sequence = entry.Sequence
	r.lastHash = entry.Hash
	return nil
}

// FindByID scans the stream for id
func (r *KurrentDBRepository) FindByID(ctx context.Context, id types.ID) (*AuditEntry, error) {
	entries, err := r.read(ctx, esdb.Forwards, maxStreamRead)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, errors.NotFound("audit entry", id.String())
}

// List lists audit entries newest first
func (r *KurrentDBRepository) List(ctx context.Context, filter ListEntriesFilter) ([]*AuditEntry, int, error) {
	all, err := r.read(ctx, esdb.Backwards, maxStreamRead)
	if err != nil {
		return nil, 0, err
	}
	entries, total := page(all, filter)
	return entries, total, nil
}

// VerifyChain verifies the newest limit entries
func (r *KurrentDBRepository) VerifyChain(ctx context.Context, limit int, includeDetails bool) (*VerifyResult, error) {
	entries, err := r.read(ctx, esdb.Backwards, uint64(verifyLimit(limit)))
	if err != nil {
		return nil, err
	}
	return verifyEntries(entries, includeDetails), nil
}

// Count returns the total number of audit entries
func (r *KurrentDBRepository) Count(ctx context.Context) (int, error) {
	entries, err := r.read(ctx, esdb.Forwards, maxStreamRead)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// read decodes up to count audit entries. A missing stream is an empty log.
func (r *KurrentDBRepository) read(ctx context.Context, direction esdb.Direction, count uint64) ([]*AuditEntry, error) {
	opts := esdb.ReadStreamOptions{Direction: direction, From: esdb.Start{}}
	if direction == esdb.Backwards {
		opts.From = esdb.End{}
	}

	stream, err := r.client.ReadStream(ctx, AuditStreamName, opts, count)
	if err != nil {
		if streamNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read audit stream")
	}
	defer stream.Close()

	var entries []*AuditEntry
	for {
		event, err := stream.Recv()
		if err != nil {
			if streamNotFound(err) {
				return nil, nil
			}
			break
		}
		if event.Event == nil || event.Event.EventType != AuditEventType {
			continue
		}
		var entry AuditEntry
		if err := json.Unmarshal(event.Event.Data, &entry); err == nil {
			entries = append(entries, &entry)
		}
	}
	return entries, nil
}

func streamNotFound(err error) bool {
	var esdbErr *esdb.Error
	return stderrors.As(err, &esdbErr) && esdbErr.Code() == esdb.ErrorCodeResourceNotFound
}
