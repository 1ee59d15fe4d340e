package experience

import "sync"

// MemStore is the in-memory Store used by tests and ephemeral runs.
type MemStore struct {
	mu      sync.Mutex
	records []*Record
	nextID  int64
}

func NewMemStore() *MemStore {
	return &MemStore{nextID: 1}
}

func (s *MemStore) Append(rec *Record) (int64, error) {
	if rec.ID != 0 {
		return 0, ErrImmutable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.nextID
	s.nextID++
	rec.CreatedAt = nowUTC()
	// copy so later caller mutation cannot reach the stored record
	stored := *rec
	s.records = append(s.records, &stored)
	return rec.ID, nil
}

func (s *MemStore) Query(fingerprint string) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Record
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].Fingerprint == fingerprint {
			cp := *s.records[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemStore) Recent(limit int) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Record
	for i := len(s.records) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		cp := *s.records[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemStore) Close() error { return nil }
