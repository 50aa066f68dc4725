package schema

import (
	"sync"

	"github.com/yamldb/yamldb/internal/value"
)

// Storage holds the live Database behind a sync.RWMutex (which blocks new
// readers while a writer waits), plus
// a concurrent per-table primary-key index for O(1) PK probes. Every
// successful load/reload rebuilds the index before new readers observe
// the swap, per spec.md §3's Storage invariant.
type Storage struct {
	mu  sync.RWMutex
	db  *Database
	idx sync.Map // table name -> *pkIndex
}

type pkIndex struct {
	m sync.Map // value.Value.Key() -> row index
}

func NewStorage(db *Database) *Storage {
	s := &Storage{db: db}
	s.RebuildIndexes()
	return s
}

// Read takes the reader side of the lock for the duration of fn, giving
// the caller one consistent snapshot for however many lookups it does.
// The executor does not use Read; it works from one Snapshot taken per
// query.
func (s *Storage) Read(fn func(db *Database)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.db)
}

// Snapshot returns the current Database pointer under a read lock. The
// returned pointer must not be mutated; it is safe to read concurrently
// with reloads because Swap always installs a brand new *Database.
func (s *Storage) Snapshot() *Database {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// Swap installs a newly parsed Database and rebuilds the PK index
// entirely under the same writer lock (spec.md §3's invariant: the PK
// index is fully rebuilt before new queries observe the change), so no
// concurrent Snapshot/FindByPK can observe the new Database against a
// stale or half-rebuilt index.
func (s *Storage) Swap(db *Database) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db = db
	s.rebuildIndexesLocked()
}

// RebuildIndexes acquires the writer lock itself; callers that already
// hold it (Swap) must use rebuildIndexesLocked instead.
func (s *Storage) RebuildIndexes() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebuildIndexesLocked()
}

// rebuildIndexesLocked performs a full scan of s.db. Caller must hold
// s.mu for writing.
func (s *Storage) rebuildIndexesLocked() {
	s.idx = sync.Map{}
	for _, name := range s.db.TableNames() {
		t, _ := s.db.GetTable(name)
		if t.PrimaryKeyIndex < 0 {
			continue
		}
		pk := &pkIndex{}
		for rowNum, row := range t.Rows {
			pk.m.Store(row[t.PrimaryKeyIndex].Key(), rowNum)
		}
		s.idx.Store(t.Name, pk)
	}
}

// FindByPK probes the primary-key index for table/value and returns a
// copy of the matching row. ok=false covers every case a caller must
// treat as "fall back to a full scan": no PK on the table, no matching
// row, or db no longer being the live snapshot. That last check matters
// because Swap rebuilds s.db and the index together under one lock
// (see Swap's doc comment) — a caller holding an older snapshot must
// never be handed a row resolved against a newer generation's index.
func (s *Storage) FindByPK(db *Database, table string, key value.Value) (row []value.Value, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if db != s.db {
		return nil, false
	}
	t, found := s.db.GetTable(table)
	if !found || t.PrimaryKeyIndex < 0 {
		return nil, false
	}
	idxAny, found := s.idx.Load(t.Name)
	if !found {
		return nil, false
	}
	rowNumAny, found := idxAny.(*pkIndex).m.Load(key.Key())
	if !found {
		return nil, false
	}
	rowNum := rowNumAny.(int)
	if rowNum >= len(t.Rows) {
		return nil, false
	}
	src := t.Rows[rowNum]
	cp := make([]value.Value, len(src))
	copy(cp, src)
	return cp, true
}
