// Package session keeps an in-memory, realtime copy of one coach's schedule
// data. A Session owns its change-stream subscriptions; Manager hands out
// shared sessions per coach and tears them down when nobody is watching.
package session

import (
	"context"
	"sync"

	"alcyxob/coach-schedule/internal/domain"
	"alcyxob/coach-schedule/internal/linkage"
	"alcyxob/coach-schedule/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Source bundles the reads a session needs. Watcher may be nil, in which case
// the session only loads on Start and on Refresh.
type Source struct {
	Schedules     repository.ScheduleRepository
	Packages      repository.PackageRepository
	LessonRecords repository.LessonRecordRepository
	Clients       repository.ClientRepository
	Watcher       repository.ChangeWatcher
}

// Snapshot is the last confirmed state of a coach's collections. Slices are
// replaced, never mutated, on reload; callers must treat them as read-only.
type Snapshot struct {
	CoachID       primitive.ObjectID
	Schedules     []domain.ScheduleEntry
	Packages      []domain.Package
	LessonRecords []domain.LessonRecord
	Clients       []domain.Client
	Lessons       *linkage.Index // Rebuilt whenever LessonRecords changes
	Loading       bool           // True until every collection has been read once
	LastError     string         // Most recent read failure; stale data is kept
	Version       uint64         // Incremented on every change
}

// Session is the realtime cache of one coach's data.
type Session struct {
	coachID primitive.ObjectID
	src     Source
	logger  *zap.Logger

	mu          sync.Mutex
	snap        Snapshot
	pending     map[repository.Collection]bool // Not read yet
	watching    map[repository.Collection]bool // Change stream running
	issued      map[repository.Collection]uint64
	applied     map[repository.Collection]uint64 // Newest read whose result is in snap
	subscribers map[int]chan Snapshot
	nextSubID   int
	loaded      chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
	closed      bool
	wg          sync.WaitGroup
}

// New creates a session for coachID. Nothing is read until Start.
func New(coachID primitive.ObjectID, src Source, logger *zap.Logger) *Session {
	pending := make(map[repository.Collection]bool, len(repository.WatchedCollections))
	for _, c := range repository.WatchedCollections {
		pending[c] = true
	}
	return &Session{
		coachID:     coachID,
		src:         src,
		logger:      logger.With(zap.String("coach_id", coachID.Hex())),
		snap:        Snapshot{CoachID: coachID, Loading: true, Lessons: linkage.NewIndex(nil)},
		pending:     pending,
		watching:    make(map[repository.Collection]bool),
		issued:      make(map[repository.Collection]uint64),
		applied:     make(map[repository.Collection]uint64),
		subscribers: make(map[int]chan Snapshot),
		loaded:      make(chan struct{}),
	}
}

// Start loads every collection and subscribes to its changes. The
// subscriptions live until ctx is done or Close is called.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.ctx != nil || s.closed {
		s.mu.Unlock()
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	for _, c := range repository.WatchedCollections {
		s.startWatch(c)
	}
}

// startWatch launches the load+watch loop for c unless one is already running.
func (s *Session) startWatch(c repository.Collection) {
	s.mu.Lock()
	if s.closed || s.ctx == nil || s.watching[c] {
		s.mu.Unlock()
		return
	}
	s.watching[c] = true
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.watching[c] = false
			s.mu.Unlock()
		}()

		if s.src.Watcher == nil {
			s.reload(ctx, c)
			return
		}
		// Read only once the stream is open, so no write can fall between
		// the read and the first event.
		ready := false
		onReady := func() {
			ready = true
			s.reload(ctx, c)
		}
		err := s.src.Watcher.Watch(ctx, c, s.coachID, onReady, func() { s.reload(ctx, c) })
		if err != nil {
			// Keep serving what we have; Refresh restarts the stream.
			s.logger.Error("Change stream stopped", zap.String("collection", string(c)), zap.Error(err))
		}
		if !ready && ctx.Err() == nil {
			s.reload(ctx, c)
		}
	}()
}

// Refresh re-reads every collection and restarts any change stream that has
// stopped. Used when a viewer regains focus after listeners may have been
// suspended.
func (s *Session) Refresh(ctx context.Context) {
	for _, c := range repository.WatchedCollections {
		s.reload(ctx, c)
	}
	if s.src.Watcher == nil {
		return
	}
	for _, c := range repository.WatchedCollections {
		s.startWatch(c)
	}
}

// reload replaces one collection in the snapshot. A failed read is logged and
// recorded while the previous data stays in place. Reads of the same
// collection may overlap; a result is dropped when a read issued after it has
// already been applied.
func (s *Session) reload(ctx context.Context, c repository.Collection) {
	s.mu.Lock()
	s.issued[c]++
	seq := s.issued[c]
	s.mu.Unlock()

	var (
		schedules []domain.ScheduleEntry
		packages  []domain.Package
		records   []domain.LessonRecord
		clients   []domain.Client
		err       error
	)
	switch c {
	case repository.CollectionSchedules:
		schedules, err = s.src.Schedules.ListByCoach(ctx, s.coachID)
	case repository.CollectionPackages:
		packages, err = s.src.Packages.ListByCoach(ctx, s.coachID)
	case repository.CollectionLessonRecords:
		records, err = s.src.LessonRecords.ListByCoach(ctx, s.coachID)
	case repository.CollectionClients:
		clients, err = s.src.Clients.ListByCoach(ctx, s.coachID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if seq < s.applied[c] {
		s.logger.Debug("Dropped outdated read", zap.String("collection", string(c)))
		return
	}

	if err != nil {
		s.logger.Error("Failed to read collection", zap.String("collection", string(c)), zap.Error(err))
		s.snap.LastError = err.Error()
	} else {
		s.applied[c] = seq
		switch c {
		case repository.CollectionSchedules:
			s.snap.Schedules = schedules
		case repository.CollectionPackages:
			s.snap.Packages = packages
		case repository.CollectionLessonRecords:
			s.snap.LessonRecords = records
			s.snap.Lessons = linkage.NewIndex(records)
		case repository.CollectionClients:
			s.snap.Clients = clients
		}
	}

	if s.pending[c] {
		delete(s.pending, c)
		if len(s.pending) == 0 {
			s.snap.Loading = false
			close(s.loaded)
		}
	}
	s.snap.Version++
	s.notifyLocked()
}

// notifyLocked delivers the current snapshot to every subscriber. Slow
// subscribers only ever see the latest snapshot.
func (s *Session) notifyLocked() {
	snap := s.snap
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// WaitLoaded blocks until every collection has been read once (successfully
// or not) or ctx is done.
func (s *Session) WaitLoaded(ctx context.Context) error {
	select {
	case <-s.loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns a channel receiving a snapshot after every change, and a
// function that cancels the subscription. The channel is closed on cancel or
// when the session closes.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(sub)
			}
		})
	}
}

// Close stops every subscription and closes subscriber channels.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Load reads a coach's collections once without subscribing. Read failures
// are logged and reported in LastError, like a live session would.
func Load(ctx context.Context, coachID primitive.ObjectID, src Source, logger *zap.Logger) Snapshot {
	src.Watcher = nil
	s := New(coachID, src, logger)
	for _, c := range repository.WatchedCollections {
		s.reload(ctx, c)
	}
	return s.Snapshot()
}
