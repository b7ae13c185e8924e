package service

import (
	"context"
	"sync"
	"time"

	"alcyxob/coach-schedule/internal/domain"
	"alcyxob/coach-schedule/internal/events"
	"alcyxob/coach-schedule/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memStore is an in-memory document store. WithTransaction restores the
// previous state when fn fails.
type memStore struct {
	mu        sync.Mutex
	schedules map[primitive.ObjectID]domain.ScheduleEntry
	packages  map[primitive.ObjectID]domain.Package
	records   map[primitive.ObjectID]domain.LessonRecord
	clients   map[primitive.ObjectID]domain.Client

	failOn map[string]error // Method name -> injected error
}

func newMemStore() *memStore {
	return &memStore{
		schedules: make(map[primitive.ObjectID]domain.ScheduleEntry),
		packages:  make(map[primitive.ObjectID]domain.Package),
		records:   make(map[primitive.ObjectID]domain.LessonRecord),
		clients:   make(map[primitive.ObjectID]domain.Client),
		failOn:    make(map[string]error),
	}
}

func (m *memStore) fail(method string) error { return m.failOn[method] }

func (m *memStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	schedules := cloneMap(m.schedules)
	packages := cloneMap(m.packages)
	records := cloneMap(m.records)
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.schedules, m.packages, m.records = schedules, packages, records
		m.mu.Unlock()
		return err
	}
	return nil
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *memStore) addEntry(e domain.ScheduleEntry) domain.ScheduleEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	m.schedules[e.ID] = e
	return e
}

func (m *memStore) entry(id primitive.ObjectID) domain.ScheduleEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schedules[id]
}

func (m *memStore) addPackage(p domain.Package) domain.Package {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	m.packages[p.ID] = p
	return p
}

func (m *memStore) pkg(id primitive.ObjectID) domain.Package {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.packages[id]
}

func (m *memStore) addRecord(r domain.LessonRecord) domain.LessonRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	m.records[r.ID] = r
	return r
}

func (m *memStore) record(id primitive.ObjectID) domain.LessonRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id]
}

func (m *memStore) recordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *memStore) addClient(c domain.Client) domain.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	m.clients[c.ID] = c
	return c
}

// --- schedules ---

type memSchedules struct{ *memStore }

func (m memSchedules) Create(_ context.Context, e *domain.ScheduleEntry) (primitive.ObjectID, error) {
	if err := m.fail("schedules.Create"); err != nil {
		return primitive.NilObjectID, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := primitive.NewObjectID()
	stored := *e
	stored.ID = id
	m.schedules[id] = stored
	return id, nil
}

func (m memSchedules) GetByID(_ context.Context, coachID, id primitive.ObjectID) (*domain.ScheduleEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.schedules[id]
	if !ok || e.CoachID != coachID {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (m memSchedules) ListByCoach(_ context.Context, coachID primitive.ObjectID) ([]domain.ScheduleEntry, error) {
	return m.list(coachID, ""), nil
}

func (m memSchedules) ListByCoachAndDate(_ context.Context, coachID primitive.ObjectID, date string) ([]domain.ScheduleEntry, error) {
	if err := m.fail("schedules.ListByCoachAndDate"); err != nil {
		return nil, err
	}
	return m.list(coachID, date), nil
}

func (m memSchedules) list(coachID primitive.ObjectID, date string) []domain.ScheduleEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ScheduleEntry
	for _, e := range m.schedules {
		if e.CoachID == coachID && (date == "" || e.Date == date) {
			out = append(out, e)
		}
	}
	return out
}

func (m memSchedules) UpdateSlot(_ context.Context, coachID, id primitive.ObjectID, date, startTime, endTime string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.schedules[id]
	if !ok || e.CoachID != coachID {
		return repository.ErrNotFound
	}
	e.Date, e.StartTime, e.EndTime, e.HasBeenChanged = date, startTime, endTime, true
	m.schedules[id] = e
	return nil
}

func (m memSchedules) UpdateStatus(_ context.Context, coachID, id primitive.ObjectID, from, to domain.ScheduleStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.schedules[id]
	if !ok || e.CoachID != coachID {
		return repository.ErrNotFound
	}
	if e.Status != from {
		return repository.ErrStatusChanged
	}
	e.Status = to
	m.schedules[id] = e
	return nil
}

func (m memSchedules) UpdateClient(_ context.Context, coachID, id, clientID primitive.ObjectID, clientName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.schedules[id]
	if !ok || e.CoachID != coachID {
		return repository.ErrNotFound
	}
	e.ClientID, e.ClientName = clientID, clientName
	m.schedules[id] = e
	return nil
}

func (m memSchedules) Delete(_ context.Context, coachID, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.schedules[id]
	if !ok || e.CoachID != coachID {
		return repository.ErrNotFound
	}
	delete(m.schedules, id)
	return nil
}

// --- packages ---

type memPackages struct{ *memStore }

func (m memPackages) GetByID(_ context.Context, coachID, id primitive.ObjectID) (*domain.Package, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.packages[id]
	if !ok || p.CoachID != coachID {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (m memPackages) ListByCoach(_ context.Context, coachID primitive.ObjectID) ([]domain.Package, error) {
	if err := m.fail("packages.ListByCoach"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Package
	for _, p := range m.packages {
		if p.CoachID == coachID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m memPackages) DecrementRemaining(_ context.Context, coachID, id primitive.ObjectID) (bool, error) {
	if err := m.fail("packages.DecrementRemaining"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.packages[id]
	if !ok || p.CoachID != coachID {
		return false, repository.ErrNotFound
	}
	if p.RemainingSessions <= 0 {
		return false, nil
	}
	p.RemainingSessions--
	m.packages[id] = p
	return true, nil
}

func (m memPackages) SetRemaining(_ context.Context, coachID primitive.ObjectID, balances []repository.PackageBalance) error {
	if err := m.fail("packages.SetRemaining"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range balances {
		p, ok := m.packages[b.PackageID]
		if !ok || p.CoachID != coachID {
			return repository.ErrUpdateFailed
		}
		p.RemainingSessions = b.RemainingSessions
		m.packages[b.PackageID] = p
	}
	return nil
}

// --- lesson records ---

type memRecords struct{ *memStore }

func (m memRecords) Create(_ context.Context, r *domain.LessonRecord) (primitive.ObjectID, error) {
	if err := m.fail("records.Create"); err != nil {
		return primitive.NilObjectID, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slotTakenLocked(r.CoachID, r.ClientID, r.LessonDate, r.LessonTime, primitive.NilObjectID) {
		return primitive.NilObjectID, repository.ErrDuplicateKey
	}
	id := primitive.NewObjectID()
	stored := *r
	stored.ID = id
	m.records[id] = stored
	return id, nil
}

// slotTakenLocked mirrors the unique slot index on lesson records.
func (m memRecords) slotTakenLocked(coachID, clientID primitive.ObjectID, date, lessonTime string, exclude primitive.ObjectID) bool {
	if clientID.IsZero() {
		return false
	}
	for id, r := range m.records {
		if id != exclude && r.CoachID == coachID && r.ClientID == clientID && r.LessonDate == date && r.LessonTime == lessonTime {
			return true
		}
	}
	return false
}

func (m memRecords) GetByID(_ context.Context, coachID, id primitive.ObjectID) (*domain.LessonRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok || r.CoachID != coachID {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (m memRecords) ListByCoach(_ context.Context, coachID primitive.ObjectID) ([]domain.LessonRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.LessonRecord
	for _, r := range m.records {
		if r.CoachID == coachID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m memRecords) FindBySlot(_ context.Context, coachID, clientID primitive.ObjectID, date, lessonTime string) (*domain.LessonRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.CoachID == coachID && r.ClientID == clientID && r.LessonDate == date && r.LessonTime == lessonTime {
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m memRecords) UpdateSlot(_ context.Context, coachID, id primitive.ObjectID, date, lessonTime string) error {
	if err := m.fail("records.UpdateSlot"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok || r.CoachID != coachID {
		return repository.ErrNotFound
	}
	if m.slotTakenLocked(coachID, r.ClientID, date, lessonTime, id) {
		return repository.ErrDuplicateKey
	}
	r.LessonDate, r.LessonTime = date, lessonTime
	m.records[id] = r
	return nil
}

func (m memRecords) CountByPackage(_ context.Context, coachID primitive.ObjectID) (map[primitive.ObjectID]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[primitive.ObjectID]int)
	for _, r := range m.records {
		if r.CoachID == coachID && r.PackageID != nil {
			out[*r.PackageID]++
		}
	}
	return out, nil
}

// --- clients ---

type memClients struct{ *memStore }

func (m memClients) GetByID(_ context.Context, coachID, id primitive.ObjectID) (*domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok || c.CoachID != coachID {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (m memClients) ListByCoach(_ context.Context, coachID primitive.ObjectID) ([]domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Client
	for _, c := range m.clients {
		if c.CoachID == coachID {
			out = append(out, c)
		}
	}
	return out, nil
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// memFileStorage keeps uploaded objects in memory.
type memFileStorage struct {
	objects map[string][]byte
	putErr  error
}

func (s *memFileStorage) PutObject(_ context.Context, key, _ string, body []byte) error {
	if s.putErr != nil {
		return s.putErr
	}
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[key] = body
	return nil
}

func (s *memFileStorage) GeneratePresignedDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://storage.test/" + key, nil
}
