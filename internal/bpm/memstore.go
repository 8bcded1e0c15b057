package bpm

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fleetops/caseflow/model"
)

// MemCaseStore is an in-memory CaseStore for tests and local development.
// History rows are kept per case number in append order.
type MemCaseStore struct {
	mu            sync.Mutex
	rows          map[string][]model.Case
	reassignments map[string][]model.CaseReassignment
	order         []string
}

// NewMemCaseStore creates a new in-memory case store.
func NewMemCaseStore() *MemCaseStore {
	return &MemCaseStore{
		rows:          make(map[string][]model.Case),
		reassignments: make(map[string][]model.CaseReassignment),
	}
}

// Append writes a new history row unconditionally.
func (s *MemCaseStore) Append(_ context.Context, c model.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(c)
	return nil
}

// AppendAfter writes a new history row only if prevRowID is still the latest
// row for the case number.
func (s *MemCaseStore) AppendAfter(_ context.Context, c model.Case, prevRowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.rows[c.CaseNo]
	if len(history) == 0 {
		return model.NewCaseNotFoundError(c.CaseNo)
	}
	if latest := history[len(history)-1]; latest.ID != prevRowID {
		return model.NewConflictError(
			fmt.Sprintf("case %q has already advanced past row %q", c.CaseNo, prevRowID),
		)
	}
	s.append(c)
	return nil
}

func (s *MemCaseStore) append(c model.Case) {
	if _, exists := s.rows[c.CaseNo]; !exists {
		s.order = append(s.order, c.CaseNo)
	}
	s.rows[c.CaseNo] = append(s.rows[c.CaseNo], c)
}

// LatestByCaseNo returns the newest history row for a case number.
func (s *MemCaseStore) LatestByCaseNo(_ context.Context, caseNo string) (model.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.rows[caseNo]
	if len(history) == 0 {
		return model.Case{}, model.NewCaseNotFoundError(caseNo)
	}
	return history[len(history)-1], nil
}

// HistoryByCaseNo returns every history row for a case number, newest first.
func (s *MemCaseStore) HistoryByCaseNo(_ context.Context, caseNo string) ([]model.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.rows[caseNo]
	if len(history) == 0 {
		return nil, model.NewCaseNotFoundError(caseNo)
	}
	result := make([]model.Case, len(history))
	for i, c := range history {
		result[len(history)-1-i] = c
	}
	return result, nil
}

// Find returns history rows matching the filters.
func (s *MemCaseStore) Find(_ context.Context, f Filters) ([]model.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []model.Case
	for _, caseNo := range s.order {
		history := s.rows[caseNo]
		if f.LatestOnly {
			history = history[len(history)-1:]
		}
		for _, c := range history {
			if f.CaseNo != "" && c.CaseNo != f.CaseNo {
				continue
			}
			if f.CaseTypeID != "" && c.CaseTypeID != f.CaseTypeID {
				continue
			}
			if f.CaseStepConfigID != "" && c.CaseStepConfigID != f.CaseStepConfigID {
				continue
			}
			if len(f.Statuses) > 0 && !containsString(f.Statuses, c.Status) {
				continue
			}
			result = append(result, c)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if f.SortDesc {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(result) {
			return nil, nil
		}
		result = result[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(result) {
		result = result[:f.Limit]
	}
	return result, nil
}

// LatestOpenCases returns the latest row of every case whose latest status is
// Open or In Progress.
func (s *MemCaseStore) LatestOpenCases(_ context.Context) ([]model.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []model.Case
	for _, caseNo := range s.order {
		history := s.rows[caseNo]
		latest := history[len(history)-1]
		if latest.Status == model.CaseStatusOpen || latest.Status == model.CaseStatusInProgress {
			result = append(result, latest)
		}
	}
	return result, nil
}

// NextCaseNumber allocates the next case number for a prefix.
func (s *MemCaseStore) NextCaseNumber(_ context.Context, prefix string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	max := 0
	for caseNo := range s.rows {
		n, ok := sequenceOf(caseNo, prefix)
		if ok && n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s-%06d", prefix, max+1), nil
}

func sequenceOf(caseNo, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(caseNo, prefix+"-")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

// RecordReassignment stores a reassignment record.
func (s *MemCaseStore) RecordReassignment(_ context.Context, r model.CaseReassignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reassignments[r.CaseNo] = append(s.reassignments[r.CaseNo], r)
	return nil
}

// ReassignmentsByCaseNo returns the reassignment records for a case number,
// newest first.
func (s *MemCaseStore) ReassignmentsByCaseNo(_ context.Context, caseNo string) ([]model.CaseReassignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.reassignments[caseNo]
	result := make([]model.CaseReassignment, len(records))
	for i, r := range records {
		result[len(records)-1-i] = r
	}
	return result, nil
}

// Len returns the total number of history rows. For testing.
func (s *MemCaseStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, history := range s.rows {
		total += len(history)
	}
	return total
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
