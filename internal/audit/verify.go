package audit

import "fmt"

// VerifyResult contains detailed verification results
type VerifyResult struct {
	Valid          bool                `json:"valid"`
	Checked        int                 `json:"checked"`
	ContentValid   int                 `json:"content_valid"`   // entries whose hash matches their content
	ContentInvalid int                 `json:"content_invalid"` // entries with tampered content
	LinkageValid   int                 `json:"linkage_valid"`
	LinkageInvalid int                 `json:"linkage_invalid"`
	Violations     []string            `json:"violations,omitempty"`
	Entries        []VerifyEntryResult `json:"entries,omitempty"`
}

// VerifyEntryResult contains verification result for a single entry
type VerifyEntryResult struct {
	ID            string `json:"id"`
	Sequence      int64  `json:"sequence"`
	Hash          string `json:"hash"`
	ComputedHash  string `json:"computed_hash,omitempty"`
	PrevHash      string `json:"prev_hash"`
	Valid         bool   `json:"valid"`
	ContentValid  bool   `json:"content_valid"`
	LinkageValid  bool   `json:"linkage_valid"`
	Action        string `json:"action"`
	ViolationType string `json:"violation_type,omitempty"` // "content", "linkage", "both"
}

// verifyEntries checks entries given newest first. Every hash is recomputed
// from content, and each entry's hash must equal the prev_hash of the entry
// after it.
func verifyEntries(entries []*AuditEntry, includeDetails bool) *VerifyResult {
	result := &VerifyResult{
		Valid:   true,
		Entries: make([]VerifyEntryResult, 0),
	}

	var expected string // prev_hash of the entry that follows in time
	for i, e := range entries {
		v := VerifyEntryResult{
			ID:           e.ID.String(),
			Sequence:     e.Sequence,
			Hash:         e.Hash,
			PrevHash:     e.PrevHash,
			Action:       e.Action,
			ContentValid: true,
			LinkageValid: true,
			Valid:        true,
		}

		computed := e.ComputeHash()
		v.ComputedHash = computed
		if computed != e.Hash {
			v.ContentValid = false
			v.Valid = false
			v.ViolationType = "content"
			result.ContentInvalid++
			result.Valid = false
			result.Violations = append(result.Violations,
				fmt.Sprintf("CONTENT TAMPERED: entry %s (seq %d) - stored hash doesn't match content", e.ID, e.Sequence))
		} else {
			result.ContentValid++
		}

		if i > 0 && e.Hash != expected {
			v.LinkageValid = false
			v.Valid = false
			if v.ViolationType == "content" {
				v.ViolationType = "both"
			} else {
				v.ViolationType = "linkage"
			}
			result.LinkageInvalid++
			result.Valid = false
			result.Violations = append(result.Violations,
				fmt.Sprintf("CHAIN BROKEN: entry %s (seq %d) - hash doesn't match next entry's prev_hash", e.ID, e.Sequence))
		} else if i > 0 {
			result.LinkageValid++
		}

		if includeDetails {
			result.Entries = append(result.Entries, v)
		}

		expected = e.PrevHash
		result.Checked++
	}

	return result
}

func verifyLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}
