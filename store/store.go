// ABOUTME: In-memory entity store holding the best-known view of all prospects
// ABOUTME: Keeps the full set and the date-scoped calendar subset consistent on every write
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/harperreed/spruce/models"
)

// Store caches prospects for two audiences: the full unfiltered list (sidebars, counts,
// reminders) and the subset inside the calendar's date scope. Every write updates both
// under one lock. Records are copied in and out so callers never share slices with it.
type Store struct {
	mu     sync.RWMutex
	all    []models.Prospect
	scoped []models.Prospect
	from   time.Time
	to     time.Time
}

// New returns an empty store with an open scope.
func New() *Store {
	return &Store{}
}

// SetScope narrows the calendar subset to prospects starting in [from, to).
// Zero values on both ends include everything.
func (s *Store) SetScope(from, to time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.from, s.to = from, to
	s.rescope()
}

// Scope returns the current calendar range.
func (s *Store) Scope() (time.Time, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.from, s.to
}

// ReplaceAll swaps in a freshly fetched list. Duplicate IDs in the input collapse
// onto the first position with the last values.
func (s *Store) ReplaceAll(prospects []models.Prospect) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]models.Prospect, 0, len(prospects))
	index := make(map[models.ID]int, len(prospects))
	for _, p := range prospects {
		if i, ok := index[p.ID]; ok {
			next[i] = p.Clone()
			continue
		}
		index[p.ID] = len(next)
		next = append(next, p.Clone())
	}
	s.all = next
	s.rescope()
}

// Reload replaces every persisted record with a fresh fetch. Pending records are not
// known to the backend yet, so they are kept after the fetched ones in their current order.
func (s *Store) Reload(persisted []models.Prospect) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]models.Prospect, 0, len(persisted)+1)
	index := make(map[models.ID]int, len(persisted))
	for _, p := range persisted {
		if i, ok := index[p.ID]; ok {
			next[i] = p.Clone()
			continue
		}
		index[p.ID] = len(next)
		next = append(next, p.Clone())
	}
	for i := range s.all {
		if s.all[i].ID.IsPending() {
			next = append(next, s.all[i])
			continue
		}
		if j, ok := index[s.all[i].ID]; ok {
			carryPendingReminders(&s.all[i], &next[j])
		}
	}
	s.all = next
	s.rescope()
}

// Merge upserts a record fetched from the backend. Reminders staged locally under a
// pending ID are not on the server yet and are carried over.
func (s *Store) Merge(p models.Prospect) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p = p.Clone()
	if i := s.indexOf(p.ID); i >= 0 {
		carryPendingReminders(&s.all[i], &p)
		s.all[i] = p
	} else {
		s.all = append(s.all, p)
	}
	s.rescope()
}

func carryPendingReminders(from, to *models.Prospect) {
	for _, r := range from.Reminders {
		if r.ID.IsPending() && to.ReminderIndex(r.ID) < 0 {
			to.Reminders = append(to.Reminders, r)
		}
	}
}

// UpsertOne inserts the prospect, or replaces the record with the same ID in place.
func (s *Store) UpsertOne(p models.Prospect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsert(p)
	s.rescope()
}

// ReplaceOne puts p where the record oldID sits. It is how a pending record becomes
// the server-confirmed one. If p's ID is already present (a realtime echo got there
// first) the pending record is dropped and the existing one updated in place.
func (s *Store) ReplaceOne(oldID models.ID, p models.Prospect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.rescope()

	oldIdx := s.indexOf(oldID)
	if oldIdx < 0 {
		s.upsert(p)
		return
	}
	if p.ID != oldID {
		if existing := s.indexOf(p.ID); existing >= 0 {
			s.all[existing] = p.Clone()
			s.all = append(s.all[:oldIdx], s.all[oldIdx+1:]...)
			return
		}
	}
	s.all[oldIdx] = p.Clone()
}

// RemoveOne deletes the prospect. It reports whether anything was removed.
func (s *Store) RemoveOne(id models.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.all = append(s.all[:i], s.all[i+1:]...)
	s.rescope()
	return true
}

// Update applies fn to a copy of the record and stores the result. It returns the
// record as it was before fn ran, for rollback.
func (s *Store) Update(id models.ID, fn func(*models.Prospect)) (models.Prospect, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.Prospect{}, false
	}
	before := s.all[i].Clone()
	next := s.all[i].Clone()
	fn(&next)
	s.all[i] = next
	s.rescope()
	return before, true
}

// Get returns a copy of one prospect.
func (s *Store) Get(id models.ID) (models.Prospect, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return models.Prospect{}, false
	}
	return s.all[i].Clone(), true
}

// All returns a copy of the full set in store order.
func (s *Store) All() []models.Prospect {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.all)
}

// Scoped returns a copy of the calendar subset in store order.
func (s *Store) Scoped() []models.Prospect {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.scoped)
}

// Len returns the size of the full set.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.all)
}

// Column returns the prospects with the given status sorted by ordering key.
// Ties keep store order.
func (s *Store) Column(status models.Status) []models.Prospect {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var col []models.Prospect
	for i := range s.all {
		if s.all[i].Status == status {
			col = append(col, s.all[i].Clone())
		}
	}
	sort.SliceStable(col, func(i, j int) bool { return col[i].Position < col[j].Position })
	return col
}

func (s *Store) upsert(p models.Prospect) {
	if i := s.indexOf(p.ID); i >= 0 {
		s.all[i] = p.Clone()
		return
	}
	s.all = append(s.all, p.Clone())
}

func (s *Store) indexOf(id models.ID) int {
	for i := range s.all {
		if s.all[i].ID == id {
			return i
		}
	}
	return -1
}

// rescope rebuilds the calendar subset from the full set. The subset shares the
// full set's order, so positions stay stable across writes.
func (s *Store) rescope() {
	scoped := make([]models.Prospect, 0, len(s.all))
	for i := range s.all {
		if s.all[i].InRange(s.from, s.to) {
			scoped = append(scoped, s.all[i])
		}
	}
	s.scoped = scoped
}

func cloneAll(in []models.Prospect) []models.Prospect {
	out := make([]models.Prospect, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
