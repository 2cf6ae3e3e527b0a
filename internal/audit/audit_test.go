package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/saude-al/ambulatorio/internal/shared/auth"
	"github.com/saude-al/ambulatorio/internal/shared/events"
	"github.com/saude-al/ambulatorio/internal/shared/types"
)

func newEntry(action string, changes map[string]any, prevHash string) *AuditEntry {
	patientID := types.NewID()
	return NewAuditEntry("nurse-1", "nurse", action, "consultation", &patientID, &patientID, changes, prevHash)
}

// TestNewAuditEntry tests creating a new audit entry
func TestNewAuditEntry(t *testing.T) {
	entry := newEntry("consultation.accepted", map[string]any{"sequence": 1}, "")

	if entry.ID.IsZero() {
		t.Error("Expected non-zero ID")
	}
	if entry.ActorID != "nurse-1" || entry.ActorRole != "nurse" {
		t.Errorf("Unexpected actor %s/%s", entry.ActorID, entry.ActorRole)
	}
	if entry.Hash == "" {
		t.Error("Expected non-empty hash")
	}
	if entry.PrevHash != "" {
		t.Error("Expected empty prev_hash for first entry")
	}
	if entry.Timestamp.Nanosecond()%1000 != 0 {
		t.Error("Timestamp should be truncated to microseconds")
	}
	if entry.Timestamp.Location() != time.UTC {
		t.Error("Timestamp should be in UTC")
	}
}

// TestHashChainTamperDetection tests that modifying an entry invalidates its hash
func TestHashChainTamperDetection(t *testing.T) {
	entry := newEntry("consultation.accepted", map[string]any{"device_action": "insertion"}, "")
	originalHash := entry.Hash

	if !entry.VerifyHash() {
		t.Error("Hash should be valid before tampering")
	}

	entry.Changes["device_action"] = "removal"
	if entry.VerifyHash() {
		t.Error("Hash should be invalid after tampering")
	}
	if entry.ComputeHash() == originalHash {
		t.Error("Computed hash should differ after tampering")
	}
}

func TestCanonicalJSONDeterminism(t *testing.T) {
	changes := map[string]any{
		"zebra":  "last",
		"apple":  "first",
		"middle": "middle",
		"nested": map[string]any{"z": 3, "a": 1, "m": 2},
	}
	entry1 := newEntry("profile.amended", changes, "prevhash")

	// the same content as it comes back from JSONB
	var roundTripped map[string]any
	raw, _ := json.Marshal(changes)
	if err := json.Unmarshal(raw, &roundTripped); err != nil {
		t.Fatal(err)
	}

	entry2 := *entry1
	entry2.Changes = roundTripped
	if entry1.Hash != entry2.ComputeHash() {
		t.Errorf("Hashes should be identical for same data: got %s and %s", entry1.Hash, entry2.ComputeHash())
	}
}

func TestMemoryRepositoryChain(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	for i := 0; i < 5; i++ {
		if err := repo.Append(ctx, newEntry("consultation.accepted", map[string]any{"index": i}, "ignored")); err != nil {
			t.Fatal(err)
		}
	}

	result, err := repo.VerifyChain(ctx, 0, true)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Valid || result.Checked != 5 || result.LinkageValid != 4 {
		t.Fatalf("Expected a valid chain of 5, got %+v", result)
	}
	if len(result.Entries) != 5 || result.Entries[0].Sequence != 5 {
		t.Errorf("Expected details newest first, got %+v", result.Entries)
	}

	// tamper with the stored middle entry
	repo.entries[2].ActorID = "someone-else"

	result, err = repo.VerifyChain(ctx, 0, true)
	if err != nil {
		t.Fatal(err)
	}
	if result.Valid {
		t.Fatal("Expected tampering to be detected")
	}
	if result.ContentInvalid != 1 || result.LinkageInvalid != 0 {
		t.Errorf("Expected one content violation, got %+v", result)
	}
	if result.Entries[2].ViolationType != "content" {
		t.Errorf("Expected content violation on seq 3, got %q", result.Entries[2].ViolationType)
	}

	// rewriting its hash as well breaks the link to the next entry
	repo.entries[2].Hash = repo.entries[2].ComputeHash()
	result, _ = repo.VerifyChain(ctx, 0, false)
	if result.Valid || result.LinkageInvalid != 1 || result.ContentInvalid != 0 {
		t.Errorf("Expected one linkage violation, got %+v", result)
	}
}

func TestMemoryRepositoryList(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	patient := types.NewID()
	other := types.NewID()

	add := func(action string, patientID types.ID) {
		t.Helper()
		e := NewAuditEntry("nurse-1", "nurse", action, "x", nil, &patientID, nil, "")
		if err := repo.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	add("patient.registered", patient)
	add("profile.recorded", patient)
	add("consultation.accepted", patient)
	add("consultation.accepted", other)
	add("consultation.voided", patient)

	entries, total, err := repo.List(ctx, ListEntriesFilter{PatientID: &patient})
	if err != nil {
		t.Fatal(err)
	}
	if total != 4 || len(entries) != 4 {
		t.Fatalf("Expected 4 entries for patient, got %d/%d", len(entries), total)
	}
	if entries[0].Action != "consultation.voided" {
		t.Errorf("Expected newest first, got %s", entries[0].Action)
	}

	entries, total, _ = repo.List(ctx, ListEntriesFilter{Action: "consultation.", Limit: 2, Offset: 1})
	if total != 3 || len(entries) != 2 {
		t.Fatalf("Expected page of 2 out of 3, got %d/%d", len(entries), total)
	}
	if entries[0].Sequence != 4 {
		t.Errorf("Expected offset to skip the newest entry, got seq %d", entries[0].Sequence)
	}

	if _, err := repo.FindByID(ctx, types.NewID()); err == nil {
		t.Error("Expected not found")
	}
}

func TestSubscriberRecordsDomainEvents(t *testing.T) {
	ctx := context.Background()
	bus := events.NewLocalBus()
	repo := NewMemoryRepository()
	if err := NewSubscriber(repo, bus).Start(ctx); err != nil {
		t.Fatal(err)
	}

	patientID := types.NewID()
	consultationID := types.NewID()
	type accepted struct {
		PatientID      types.ID `json:"patient_id"`
		ConsultationID types.ID `json:"consultation_id"`
		Sequence       int      `json:"sequence"`
	}

	publish := func(eventType string, data any) {
		t.Helper()
		e := events.NewEvent(eventType, "ambulatory", data).
			WithAggregate(patientID).
			WithActor("nurse-1", "nurse").
			WithCorrelation("req-7")
		if err := bus.Publish(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	publish("patient.registered", map[string]any{"patient_id": patientID, "minor": false})
	publish("consultation.accepted", accepted{PatientID: patientID, ConsultationID: consultationID, Sequence: 1})
	publish("unrelated.thing", nil)

	entries, total, err := repo.List(ctx, ListEntriesFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Fatalf("Expected 2 audited events, got %d", total)
	}

	c := entries[0]
	if c.Action != "consultation.accepted" || c.ResourceType != "consultation" {
		t.Errorf("Unexpected action %s on %s", c.Action, c.ResourceType)
	}
	if c.ResourceID == nil || *c.ResourceID != consultationID {
		t.Errorf("Expected consultation resource, got %v", c.ResourceID)
	}
	if c.PatientID == nil || *c.PatientID != patientID {
		t.Errorf("Expected patient %s, got %v", patientID, c.PatientID)
	}
	if c.CorrelationID != "req-7" || c.ActorRole != "nurse" {
		t.Errorf("Unexpected context %s/%s", c.CorrelationID, c.ActorRole)
	}
	if c.Changes["sequence"] != float64(1) {
		t.Errorf("Expected payload in changes, got %v", c.Changes)
	}

	p := entries[1]
	if p.ResourceID == nil || *p.ResourceID != patientID {
		t.Errorf("Expected patient resource, got %v", p.ResourceID)
	}

	result, _ := repo.VerifyChain(ctx, 0, false)
	if !result.Valid {
		t.Errorf("Expected valid chain, got %v", result.Violations)
	}
}

func TestHandlerPermissions(t *testing.T) {
	repo := NewMemoryRepository()
	patientID := types.NewID()
	if err := repo.Append(context.Background(), NewAuditEntry("nurse-1", "nurse", "patient.registered", "patient", &patientID, &patientID, nil, "")); err != nil {
		t.Fatal(err)
	}
	routes := NewHandler(repo).Routes()

	request := func(path string, roles ...string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req = req.WithContext(auth.WithUser(req.Context(), &auth.User{ID: "u", Roles: roles}))
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, req)
		return rec
	}

	tests := []struct {
		path   string
		role   string
		status int
	}{
		{"/", "nurse", http.StatusForbidden},
		{"/", "coordinator", http.StatusOK},
		{"/verify", "coordinator", http.StatusForbidden},
		{"/verify", "auditor", http.StatusOK},
		{"/patients/" + patientID.String(), "auditor", http.StatusOK},
		{"/patients/not-an-id", "auditor", http.StatusBadRequest},
		{"/" + types.NewID().String(), "auditor", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.role+" "+tt.path, func(t *testing.T) {
			if rec := request(tt.path, tt.role); rec.Code != tt.status {
				t.Errorf("Expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}

	rec := request("/?patient_id="+patientID.String(), "auditor")
	var body struct {
		Data  []AuditEntry `json:"data"`
		Total int          `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 1 || body.Data[0].Action != "patient.registered" {
		t.Errorf("Unexpected list %+v", body)
	}
}
