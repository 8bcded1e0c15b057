package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fleetops/caseflow/model"
)

// MemStore is an in-memory audit store for tests and local development.
type MemStore struct {
	mu      sync.RWMutex
	entries []model.AuditEntry
}

// NewMemStore creates an empty in-memory audit store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Record appends one entry.
func (s *MemStore) Record(ctx context.Context, e model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

// ByCase returns the entries for a case number, newest first.
func (s *MemStore) ByCase(ctx context.Context, caseNo string, page, perPage int) ([]model.AuditEntry, error) {
	return s.filter(func(e model.AuditEntry) bool { return e.CaseNo == caseNo }, page, perPage)
}

// ByUser returns the entries performed by a user, newest first.
func (s *MemStore) ByUser(ctx context.Context, userID string, page, perPage int) ([]model.AuditEntry, error) {
	return s.filter(func(e model.AuditEntry) bool { return e.DoneBy == userID }, page, perPage)
}

// ByRole returns the entries performed under a role, newest first.
func (s *MemStore) ByRole(ctx context.Context, roleID string, page, perPage int) ([]model.AuditEntry, error) {
	return s.filter(func(e model.AuditEntry) bool { return e.UserRole == roleID }, page, perPage)
}

func (s *MemStore) filter(match func(model.AuditEntry) bool, page, perPage int) ([]model.AuditEntry, error) {
	page, perPage = clampPage(page, perPage)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.AuditEntry
	for _, e := range s.entries {
		if match(e) {
			result = append(result, e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})

	offset := (page - 1) * perPage
	if offset >= len(result) {
		return nil, nil
	}
	end := offset + perPage
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

// ByMetadata returns the entries carrying the given metadata key/value pair,
// newest first. Used to trace activity against a bound entity.
func (s *MemStore) ByMetadata(ctx context.Context, key, value string, page, perPage int) ([]model.AuditEntry, error) {
	return s.filter(func(e model.AuditEntry) bool {
		if e.Metadata == nil {
			return false
		}
		v, ok := e.Metadata[key]
		return ok && fmt.Sprintf("%v", v) == value
	}, page, perPage)
}

// HasEntryWithMetadata reports whether any entry for the case carries the
// given metadata key/value pair.
func (s *MemStore) HasEntryWithMetadata(ctx context.Context, caseNo, key, value string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.CaseNo != caseNo || e.Metadata == nil {
			continue
		}
		if v, ok := e.Metadata[key]; ok && fmt.Sprintf("%v", v) == value {
			return true, nil
		}
	}
	return false, nil
}

// All returns a copy of every entry in insertion order. Test helper.
func (s *MemStore) All() []model.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
