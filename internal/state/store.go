package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrCorrupt indicates the persisted state document could not be parsed.
// Callers must treat this as fatal; the state file requires manual repair.
var ErrCorrupt = errors.New("corrupt state")

// MissingDependencyError indicates a step required a role that no earlier
// step produced and that is not present in the store.
type MissingDependencyError struct {
	Role string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("missing dependency: role %q is not in state", e.Role)
}

// Record tracks a single provisioned resource.
type Record struct {
	Role      string    `json:"role"`
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the persistent mapping from resource role to provider-assigned
// identifier. Records keep insertion order so the teardown sweep and the
// status output are reproducible.
type Store struct {
	backend Backend

	Version int
	Serial  int
	Lineage string

	records []*Record
	index   map[string]int

	// Top-level document keys this version does not understand are carried
	// through on rewrite so newer state files stay readable.
	extra map[string]json.RawMessage
}

// Known top-level document keys. Everything else lands in extra.
var knownKeys = map[string]bool{
	"version":   true,
	"serial":    true,
	"lineage":   true,
	"updatedAt": true,
	"resources": true,
}

// Load reads the state document from the backend. A missing document yields
// an empty store with a fresh lineage; an unparseable one fails with
// ErrCorrupt.
func Load(ctx context.Context, backend Backend) (*Store, error) {
	s := &Store{
		backend: backend,
		Version: 1,
		Lineage: uuid.NewString(),
		index:   make(map[string]int),
		extra:   make(map[string]json.RawMessage),
	}

	raw, err := backend.Read(ctx)
	if errors.Is(err, ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if err := s.decode(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	return s, nil
}

func (s *Store) decode(doc map[string]json.RawMessage) error {
	if raw, ok := doc["version"]; ok {
		if err := json.Unmarshal(raw, &s.Version); err != nil {
			return fmt.Errorf("bad version field: %v", err)
		}
	}
	if raw, ok := doc["serial"]; ok {
		if err := json.Unmarshal(raw, &s.Serial); err != nil {
			return fmt.Errorf("bad serial field: %v", err)
		}
	}
	if raw, ok := doc["lineage"]; ok {
		if err := json.Unmarshal(raw, &s.Lineage); err != nil {
			return fmt.Errorf("bad lineage field: %v", err)
		}
	}
	if raw, ok := doc["resources"]; ok {
		if err := json.Unmarshal(raw, &s.records); err != nil {
			return fmt.Errorf("bad resources field: %v", err)
		}
	}

	for i, rec := range s.records {
		if rec.Role == "" {
			return fmt.Errorf("resource %d has no role", i)
		}
		if _, dup := s.index[rec.Role]; dup {
			return fmt.Errorf("duplicate role %q", rec.Role)
		}
		s.index[rec.Role] = i
	}

	for k, v := range doc {
		if !knownKeys[k] {
			s.extra[k] = v
		}
	}

	return nil
}

// Save persists the store through the backend. The write is atomic: a crash
// mid-save never leaves a torn document behind.
func (s *Store) Save(ctx context.Context) error {
	s.Serial++

	doc := map[string]json.RawMessage{}
	doc["version"], _ = json.Marshal(s.Version)
	doc["serial"], _ = json.Marshal(s.Serial)
	doc["lineage"], _ = json.Marshal(s.Lineage)
	doc["updatedAt"], _ = json.Marshal(time.Now().UTC().Format(time.RFC3339))
	doc["resources"], _ = json.Marshal(s.recordsOrEmpty())
	for k, v := range s.extra {
		doc[k] = v
	}

	data, err := marshalDocument(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}

	if err := s.backend.Write(ctx, data); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	return nil
}

// Destroy removes the persisted document entirely. Called once teardown has
// emptied the store.
func (s *Store) Destroy(ctx context.Context) error {
	if err := s.backend.Remove(ctx); err != nil {
		return fmt.Errorf("failed to remove state: %w", err)
	}
	return nil
}

// Get returns the provider identifier recorded for role.
func (s *Store) Get(role string) (string, error) {
	idx, ok := s.index[role]
	if !ok {
		return "", &MissingDependencyError{Role: role}
	}
	return s.records[idx].ID, nil
}

// Has reports whether role is recorded.
func (s *Store) Has(role string) bool {
	_, ok := s.index[role]
	return ok
}

// Put records a provider identifier for role, replacing any prior record.
func (s *Store) Put(role, id string) {
	if idx, ok := s.index[role]; ok {
		s.records[idx].ID = id
		return
	}
	s.index[role] = len(s.records)
	s.records = append(s.records, &Record{
		Role:      role,
		ID:        id,
		CreatedAt: time.Now().UTC(),
	})
}

// Remove deletes the record for role. Removing an absent role is a no-op.
func (s *Store) Remove(role string) {
	idx, ok := s.index[role]
	if !ok {
		return
	}
	s.records = append(s.records[:idx], s.records[idx+1:]...)
	s.index = make(map[string]int, len(s.records))
	for i, rec := range s.records {
		s.index[rec.Role] = i
	}
}

// Records returns all records in insertion order.
func (s *Store) Records() []*Record {
	out := make([]*Record, len(s.records))
	copy(out, s.records)
	return out
}

// Empty reports whether no resources are recorded.
func (s *Store) Empty() bool {
	return len(s.records) == 0
}

func (s *Store) recordsOrEmpty() []*Record {
	if s.records == nil {
		return []*Record{}
	}
	return s.records
}

// marshalDocument renders the document with stable key order and
// indentation so state diffs stay reviewable.
func marshalDocument(doc map[string]json.RawMessage) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
