// Package linkage resolves the derived association between a schedule entry
// and its lesson record. A record belongs to an entry when client, date and
// start time all match; nothing is stored on either side.
package linkage

import (
	"alcyxob/coach-schedule/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Key identifies a session by who, which day and what time.
type Key struct {
	ClientID primitive.ObjectID
	Date     string
	Time     string
}

// KeyForEntry returns the linkage key of a schedule entry.
func KeyForEntry(e *domain.ScheduleEntry) Key {
	return Key{ClientID: e.ClientID, Date: e.Date, Time: e.StartTime}
}

// KeyForRecord returns the linkage key of a lesson record.
func KeyForRecord(r *domain.LessonRecord) Key {
	return Key{ClientID: r.ClientID, Date: r.LessonDate, Time: r.LessonTime}
}

// Matches reports whether r is the lesson record for e.
func Matches(e *domain.ScheduleEntry, r *domain.LessonRecord) bool {
	return KeyForEntry(e) == KeyForRecord(r)
}

// Index maps linkage keys to lesson records. Build it once per lesson record
// snapshot instead of scanning on every lookup.
type Index struct {
	byKey map[Key]*domain.LessonRecord
}

// NewIndex builds an index over records. When several records share a key the
// one with the smallest id wins, so the result does not depend on input order.
func NewIndex(records []domain.LessonRecord) *Index {
	idx := &Index{byKey: make(map[Key]*domain.LessonRecord, len(records))}
	for i := range records {
		r := &records[i]
		k := KeyForRecord(r)
		if existing, ok := idx.byKey[k]; ok && existing.ID.Hex() <= r.ID.Hex() {
			continue
		}
		idx.byKey[k] = r
	}
	return idx
}

// Find returns the lesson record linked to e.
func (idx *Index) Find(e *domain.ScheduleEntry) (*domain.LessonRecord, bool) {
	if idx == nil {
		return nil, false
	}
	r, ok := idx.byKey[KeyForEntry(e)]
	return r, ok
}

// Has reports whether e has a lesson record.
func (idx *Index) Has(e *domain.ScheduleEntry) bool {
	_, ok := idx.Find(e)
	return ok
}

// Len returns the number of distinct keys indexed.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.byKey)
}
