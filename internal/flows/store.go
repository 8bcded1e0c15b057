package flows

import (
	"fmt"
	"math/rand"
	"sync"
)

// CaseEntity links a case to the business record the flow operates on. A case
// binds to at most one entity; rebinding to a different record is rejected so
// a flow cannot silently switch subjects mid-case.
type CaseEntity struct {
	CaseNo          string
	EntityName      string
	Identifier      string
	IdentifierValue string
}

// Document is one uploaded document attached to an entity record.
type Document struct {
	DocumentType string
	FileName     string
}

// Store keeps the flow working data: case-to-entity bindings, entity records
// and their uploaded documents. All access is keyed by entity name plus record
// ID, mirroring how cases reference their subject.
type Store struct {
	mu        sync.RWMutex
	entities  map[string]CaseEntity         // case no -> binding
	records   map[string]map[string]any     // entity key -> record fields
	documents map[string][]Document         // entity key -> uploads
}

// NewStore returns an empty flow data store.
func NewStore() *Store {
	return &Store{
		entities:  make(map[string]CaseEntity),
		records:   make(map[string]map[string]any),
		documents: make(map[string][]Document),
	}
}

func entityKey(entityName, id string) string {
	return entityName + "/" + id
}

// BindEntity attaches a case to an entity record. Binding the same record
// again is a no-op; binding a different record fails.
func (s *Store) BindEntity(e CaseEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entities[e.CaseNo]; ok {
		if existing.EntityName == e.EntityName && existing.IdentifierValue == e.IdentifierValue {
			return nil
		}
		return fmt.Errorf("case %s already bound to %s %s",
			e.CaseNo, existing.EntityName, existing.IdentifierValue)
	}
	s.entities[e.CaseNo] = e
	return nil
}

// Entity returns the entity binding for a case, if any.
func (s *Store) Entity(caseNo string) (CaseEntity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[caseNo]
	return e, ok
}

// PutRecord stores or replaces an entity record.
func (s *Store) PutRecord(entityName, id string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	s.records[entityKey(entityName, id)] = copied
}

// UpdateRecord merges fields into an existing record. Missing records fail.
func (s *Store) UpdateRecord(entityName, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[entityKey(entityName, id)]
	if !ok {
		return fmt.Errorf("%s %s not found", entityName, id)
	}
	for k, v := range fields {
		rec[k] = v
	}
	return nil
}

// Record returns a copy of an entity record.
func (s *Store) Record(entityName, id string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[entityKey(entityName, id)]
	if !ok {
		return nil, false
	}
	copied := make(map[string]any, len(rec))
	for k, v := range rec {
		copied[k] = v
	}
	return copied, true
}

// FindRecord returns the first record of the given entity whose field matches
// the value.
func (s *Store) FindRecord(entityName, field string, value any) (string, map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := entityName + "/"
	for key, rec := range s.records {
		if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		if rec[field] == value {
			copied := make(map[string]any, len(rec))
			for k, v := range rec {
				copied[k] = v
			}
			return key[len(prefix):], copied, true
		}
	}
	return "", nil, false
}

// AddDocument attaches an uploaded document to an entity record.
func (s *Store) AddDocument(entityName, id string, doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityKey(entityName, id)
	s.documents[key] = append(s.documents[key], doc)
}

// Documents returns the uploads for an entity record, optionally filtered by
// document type.
func (s *Store) Documents(entityName, id, documentType string) []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Document
	for _, d := range s.documents[entityKey(entityName, id)] {
		if documentType == "" || d.DocumentType == documentType {
			out = append(out, d)
		}
	}
	return out
}

// newRecordID generates a provisional six digit record identifier.
func newRecordID() string {
	return fmt.Sprintf("%06d", 100000+rand.Intn(900000))
}
