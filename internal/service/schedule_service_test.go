package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"alcyxob/coach-schedule/internal/domain"
	"alcyxob/coach-schedule/internal/events"
	"alcyxob/coach-schedule/internal/occupancy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type scheduleFixture struct {
	store     *memStore
	publisher *recordingPublisher
	svc       ScheduleService
	coachID   primitive.ObjectID
	alice     domain.Client
}

func newScheduleFixture(t *testing.T) *scheduleFixture {
	t.Helper()
	store := newMemStore()
	publisher := &recordingPublisher{}
	coachID := primitive.NewObjectID()
	alice := store.addClient(domain.Client{CoachID: coachID, Name: "Alice"})
	svc := NewScheduleService(memSchedules{store}, memPackages{store}, memRecords{store}, memClients{store}, store, publisher, zap.NewNop())
	return &scheduleFixture{store: store, publisher: publisher, svc: svc, coachID: coachID, alice: alice}
}

func (f *scheduleFixture) book(t *testing.T, date, startTime string, packageID *primitive.ObjectID) *domain.ScheduleEntry {
	t.Helper()
	entry, err := f.svc.CreateBooking(context.Background(), f.coachID, CreateBookingInput{
		Date:       date,
		StartTime:  startTime,
		ClientID:   f.alice.ID,
		ClientName: f.alice.Name,
		PackageID:  packageID,
	})
	require.NoError(t, err)
	return entry
}

func TestCreateBooking_ScheduledWithEndTime(t *testing.T) {
	f := newScheduleFixture(t)

	entry := f.book(t, "2024-07-29", "09:30", nil)

	assert.Equal(t, domain.ScheduleStatusScheduled, entry.Status)
	assert.Equal(t, "10:30", entry.EndTime)
	assert.False(t, entry.ID.IsZero())
	assert.Equal(t, *entry, f.store.entry(entry.ID))
	assert.Equal(t, []string{events.ScheduleCreated}, f.publisher.types())
}

func TestCreateBooking_RejectsTakenSlot(t *testing.T) {
	f := newScheduleFixture(t)
	original := f.book(t, "2024-07-29", "09:30", nil)
	bob := f.store.addClient(domain.Client{CoachID: f.coachID, Name: "Bob"})

	_, err := f.svc.CreateBooking(context.Background(), f.coachID, CreateBookingInput{
		Date: "2024-07-29", StartTime: "09:30", ClientID: bob.ID, ClientName: "Bob",
	})

	assert.ErrorIs(t, err, ErrSlotConflict)
	assert.Equal(t, *original, f.store.entry(original.ID))
}

func TestCreateBooking_OtherCoachDoesNotConflict(t *testing.T) {
	f := newScheduleFixture(t)
	f.book(t, "2024-07-29", "09:30", nil)

	_, err := f.svc.CreateBooking(context.Background(), primitive.NewObjectID(), CreateBookingInput{
		Date: "2024-07-29", StartTime: "09:30", ClientName: "Someone",
	})
	assert.NoError(t, err)
}

func TestCreateBooking_Validation(t *testing.T) {
	f := newScheduleFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input CreateBookingInput
		want  error
	}{
		{"missing name and client", CreateBookingInput{Date: "2024-07-29", StartTime: "09:00"}, ErrClientNameRequired},
		{"blank name", CreateBookingInput{Date: "2024-07-29", StartTime: "09:00", ClientName: "  "}, ErrClientNameRequired},
		{"unknown client", CreateBookingInput{Date: "2024-07-29", StartTime: "09:00", ClientID: primitive.NewObjectID()}, ErrClientNameRequired},
		{"bad date", CreateBookingInput{Date: "29/07/2024", StartTime: "09:00", ClientName: "Alice"}, ErrInvalidDate},
		{"off grid minute", CreateBookingInput{Date: "2024-07-29", StartTime: "09:15", ClientName: "Alice"}, ErrInvalidSlotTime},
		{"before grid", CreateBookingInput{Date: "2024-07-29", StartTime: "04:30", ClientName: "Alice"}, ErrInvalidSlotTime},
		{"garbage time", CreateBookingInput{Date: "2024-07-29", StartTime: "nine", ClientName: "Alice"}, ErrInvalidSlotTime},
		{"zero height cell", CreateBookingInput{Date: "2024-07-29", StartTime: "09:00", ClientName: "Alice", Click: &occupancy.DropPoint{}}, ErrInvalidDropPoint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateBooking(ctx, f.coachID, tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateBooking_NameFromClient(t *testing.T) {
	f := newScheduleFixture(t)

	entry, err := f.svc.CreateBooking(context.Background(), f.coachID, CreateBookingInput{
		Date: "2024-07-29", StartTime: "9:00", ClientID: f.alice.ID,
	})

	require.NoError(t, err)
	assert.Equal(t, "Alice", entry.ClientName)
	assert.Equal(t, "09:00", entry.StartTime)
}

func TestCreateBooking_ClickResolvesHalfSlot(t *testing.T) {
	f := newScheduleFixture(t)
	click := &occupancy.DropPoint{CellTop: 100, CellHeight: 60, Y: 145}

	entry, err := f.svc.CreateBooking(context.Background(), f.coachID, CreateBookingInput{
		Date: "2024-07-29", StartTime: "09:00", Click: click, ClientName: "Alice",
	})

	require.NoError(t, err)
	assert.Equal(t, "09:30", entry.StartTime)
	assert.Equal(t, "10:30", entry.EndTime)
}

func TestCreateBooking_StoreFailure(t *testing.T) {
	f := newScheduleFixture(t)
	f.store.failOn["schedules.ListByCoachAndDate"] = errors.New("timeout")

	_, err := f.svc.CreateBooking(context.Background(), f.coachID, CreateBookingInput{
		Date: "2024-07-29", StartTime: "09:00", ClientName: "Alice",
	})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSlotConflict)
	assert.Empty(t, f.publisher.types())
}

func TestComplete_DecrementsPackage(t *testing.T) {
	f := newScheduleFixture(t)
	p1 := f.store.addPackage(domain.Package{CoachID: f.coachID, TotalSessions: 10, RemainingSessions: 5})
	entry := f.book(t, "2024-07-29", "09:30", &p1.ID)

	done, err := f.svc.Complete(context.Background(), f.coachID, entry.ID)

	require.NoError(t, err)
	assert.Equal(t, domain.ScheduleStatusCompleted, done.Status)
	assert.Equal(t, domain.ScheduleStatusCompleted, f.store.entry(entry.ID).Status)
	assert.Equal(t, 4, f.store.pkg(p1.ID).RemainingSessions)
	assert.Contains(t, f.publisher.types(), events.ScheduleCompleted)
}

func TestComplete_TwiceDoesNotDecrementTwice(t *testing.T) {
	f := newScheduleFixture(t)
	p1 := f.store.addPackage(domain.Package{CoachID: f.coachID, TotalSessions: 10, RemainingSessions: 5})
	entry := f.book(t, "2024-07-29", "09:30", &p1.ID)

	_, err := f.svc.Complete(context.Background(), f.coachID, entry.ID)
	require.NoError(t, err)
	_, err = f.svc.Complete(context.Background(), f.coachID, entry.ID)

	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 4, f.store.pkg(p1.ID).RemainingSessions)
}

func TestComplete_MissingPackageStillCompletes(t *testing.T) {
	f := newScheduleFixture(t)
	missing := primitive.NewObjectID()
	entry := f.book(t, "2024-07-29", "09:30", &missing)

	done, err := f.svc.Complete(context.Background(), f.coachID, entry.ID)

	require.NoError(t, err)
	assert.Equal(t, domain.ScheduleStatusCompleted, done.Status)
}

func TestComplete_DecrementFailureRollsBack(t *testing.T) {
	f := newScheduleFixture(t)
	p1 := f.store.addPackage(domain.Package{CoachID: f.coachID, TotalSessions: 10, RemainingSessions: 5})
	entry := f.book(t, "2024-07-29", "09:30", &p1.ID)
	f.store.failOn["packages.DecrementRemaining"] = errors.New("write conflict")

	_, err := f.svc.Complete(context.Background(), f.coachID, entry.ID)

	require.Error(t, err)
	assert.Equal(t, domain.ScheduleStatusScheduled, f.store.entry(entry.ID).Status)
	assert.Equal(t, 5, f.store.pkg(p1.ID).RemainingSessions)
}

func TestComplete_NotFound(t *testing.T) {
	f := newScheduleFixture(t)
	_, err := f.svc.Complete(context.Background(), f.coachID, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrScheduleNotFound)

	entry := f.book(t, "2024-07-29", "09:30", nil)
	_, err = f.svc.Complete(context.Background(), primitive.NewObjectID(), entry.ID)
	assert.ErrorIs(t, err, ErrScheduleNotFound)
}

func TestCancel_WithoutDeductionLeavesPackage(t *testing.T) {
	f := newScheduleFixture(t)
	p1 := f.store.addPackage(domain.Package{CoachID: f.coachID, TotalSessions: 10, RemainingSessions: 5})
	entry := f.book(t, "2024-07-30", "10:00", &p1.ID)

	done, err := f.svc.Cancel(context.Background(), f.coachID, entry.ID, false)

	require.NoError(t, err)
	assert.Equal(t, domain.ScheduleStatusCancelled, done.Status)
	assert.Equal(t, 5, f.store.pkg(p1.ID).RemainingSessions)
}

func TestCancel_WithDeductionFloorsAtZero(t *testing.T) {
	f := newScheduleFixture(t)
	p1 := f.store.addPackage(domain.Package{CoachID: f.coachID, TotalSessions: 10, RemainingSessions: 0})
	entry := f.book(t, "2024-07-30", "10:00", &p1.ID)

	done, err := f.svc.Cancel(context.Background(), f.coachID, entry.ID, true)

	require.NoError(t, err)
	assert.Equal(t, domain.ScheduleStatusCancelledWithDeduction, done.Status)
	assert.Equal(t, 0, f.store.pkg(p1.ID).RemainingSessions)
}

func TestCancel_OnlyFromScheduled(t *testing.T) {
	f := newScheduleFixture(t)
	entry := f.book(t, "2024-07-30", "10:00", nil)
	_, err := f.svc.Cancel(context.Background(), f.coachID, entry.ID, false)
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), f.coachID, entry.ID, true)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.Complete(context.Background(), f.coachID, entry.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPackageBalance_StaysInRange(t *testing.T) {
	f := newScheduleFixture(t)
	p := f.store.addPackage(domain.Package{CoachID: f.coachID, TotalSessions: 3, RemainingSessions: 3})

	for i := 0; i < 6; i++ {
		entry := f.book(t, "2024-08-01", fmt.Sprintf("%02d:00", 6+i), &p.ID)
		var err error
		if i%2 == 0 {
			_, err = f.svc.Complete(context.Background(), f.coachID, entry.ID)
		} else {
			_, err = f.svc.Cancel(context.Background(), f.coachID, entry.ID, true)
		}
		require.NoError(t, err)

		remaining := f.store.pkg(p.ID).RemainingSessions
		assert.GreaterOrEqual(t, remaining, 0)
		assert.LessOrEqual(t, remaining, p.TotalSessions)
	}
	assert.Equal(t, 0, f.store.pkg(p.ID).RemainingSessions)
}

func TestMoveBooking_CompletedTakesLessonRecordAlong(t *testing.T) {
	f := newScheduleFixture(t)
	entry := f.book(t, "2024-07-29", "09:30", nil)
	_, err := f.svc.Complete(context.Background(), f.coachID, entry.ID)
	require.NoError(t, err)
	record := f.store.addRecord(domain.LessonRecord{
		CoachID: f.coachID, ClientID: f.alice.ID, LessonDate: "2024-07-29", LessonTime: "09:30",
	})

	moved, err := f.svc.MoveBooking(context.Background(), f.coachID, entry.ID, MoveBookingInput{
		TargetDate: "2024-07-29", TargetTime: "14:00",
	})

	require.NoError(t, err)
	assert.Equal(t, "14:00", moved.StartTime)
	assert.Equal(t, "15:00", moved.EndTime)
	assert.True(t, moved.HasBeenChanged)

	stored := f.store.entry(entry.ID)
	assert.Equal(t, "14:00", stored.StartTime)
	assert.Equal(t, "15:00", stored.EndTime)
	assert.Equal(t, domain.ScheduleStatusCompleted, stored.Status)

	r := f.store.record(record.ID)
	assert.Equal(t, "2024-07-29", r.LessonDate)
	assert.Equal(t, "14:00", r.LessonTime)
}

func TestMoveBooking_RecordUpdateFailureRollsBack(t *testing.T) {
	f := newScheduleFixture(t)
	entry := f.book(t, "2024-07-29", "09:30", nil)
	_, err := f.svc.Complete(context.Background(), f.coachID, entry.ID)
	require.NoError(t, err)
	f.store.addRecord(domain.LessonRecord{
		CoachID: f.coachID, ClientID: f.alice.ID, LessonDate: "2024-07-29", LessonTime: "09:30",
	})
	f.store.failOn["records.UpdateSlot"] = errors.New("network")

	_, err = f.svc.MoveBooking(context.Background(), f.coachID, entry.ID, MoveBookingInput{
		TargetDate: "2024-07-29", TargetTime: "14:00",
	})

	require.Error(t, err)
	assert.Equal(t, "09:30", f.store.entry(entry.ID).StartTime)
}

func TestMoveBooking_CompletedOntoSlotWithRecord(t *testing.T) {
	f := newScheduleFixture(t)
	entry := f.book(t, "2024-07-29", "09:30", nil)
	_, err := f.svc.Complete(context.Background(), f.coachID, entry.ID)
	require.NoError(t, err)
	record := f.store.addRecord(domain.LessonRecord{
		CoachID: f.coachID, ClientID: f.alice.ID, LessonDate: "2024-07-29", LessonTime: "09:30",
	})
	// Left behind by a deleted booking.
	f.store.addRecord(domain.LessonRecord{
		CoachID: f.coachID, ClientID: f.alice.ID, LessonDate: "2024-07-29", LessonTime: "14:00",
	})

	_, err = f.svc.MoveBooking(context.Background(), f.coachID, entry.ID, MoveBookingInput{
		TargetDate: "2024-07-29", TargetTime: "14:00",
	})

	assert.ErrorIs(t, err, ErrLessonRecordExists)
	assert.Equal(t, "09:30", f.store.entry(entry.ID).StartTime)
	assert.Equal(t, "09:30", f.store.record(record.ID).LessonTime)
}

func TestMoveBooking_ScheduledLeavesRecordsAlone(t *testing.T) {
	f := newScheduleFixture(t)
	entry := f.book(t, "2024-07-29", "09:30", nil)
	record := f.store.addRecord(domain.LessonRecord{
		CoachID: f.coachID, ClientID: f.alice.ID, LessonDate: "2024-07-29", LessonTime: "09:30",
	})

	_, err := f.svc.MoveBooking(context.Background(), f.coachID, entry.ID, MoveBookingInput{
		TargetDate: "2024-07-30", TargetTime: "09:30",
	})

	require.NoError(t, err)
	assert.Equal(t, "09:30", f.store.record(record.ID).LessonTime)
	assert.Equal(t, "2024-07-29", f.store.record(record.ID).LessonDate)
}

func TestMoveBooking_Conflict(t *testing.T) {
	f := newScheduleFixture(t)
	a := f.book(t, "2024-07-29", "09:00", nil)
	b := f.book(t, "2024-07-29", "10:00", nil)

	_, err := f.svc.MoveBooking(context.Background(), f.coachID, a.ID, MoveBookingInput{TargetDate: "2024-07-29", TargetTime: "10:00"})

	assert.ErrorIs(t, err, ErrSlotConflict)
	assert.Equal(t, *a, f.store.entry(a.ID))
	assert.Equal(t, *b, f.store.entry(b.ID))
}

func TestMoveBooking_OntoItselfIsNoop(t *testing.T) {
	f := newScheduleFixture(t)
	a := f.book(t, "2024-07-29", "09:00", nil)

	moved, err := f.svc.MoveBooking(context.Background(), f.coachID, a.ID, MoveBookingInput{TargetDate: "2024-07-29", TargetTime: "09:00"})

	require.NoError(t, err)
	assert.False(t, moved.HasBeenChanged)
	assert.Equal(t, []string{events.ScheduleCreated}, f.publisher.types())
}

func TestMoveBooking_DropOnLowerHalf(t *testing.T) {
	f := newScheduleFixture(t)
	a := f.book(t, "2024-07-29", "09:00", nil)

	moved, err := f.svc.MoveBooking(context.Background(), f.coachID, a.ID, MoveBookingInput{
		TargetDate: "2024-07-31",
		TargetTime: "16:00",
		Drop:       &occupancy.DropPoint{CellTop: 0, CellHeight: 48, Y: 24},
	})

	require.NoError(t, err)
	assert.Equal(t, "16:30", moved.StartTime)
	assert.Equal(t, "17:30", moved.EndTime)
}

func TestNoDoubleBooking_AcrossCreatesAndMoves(t *testing.T) {
	f := newScheduleFixture(t)
	ctx := context.Background()
	slots := []string{"09:00", "09:30", "10:00"}

	var ids []primitive.ObjectID
	for _, s := range slots {
		ids = append(ids, f.book(t, "2024-07-29", s, nil).ID)
	}
	for _, id := range ids {
		for _, target := range slots {
			_, _ = f.svc.MoveBooking(ctx, f.coachID, id, MoveBookingInput{TargetDate: "2024-07-29", TargetTime: target})
			_, _ = f.svc.CreateBooking(ctx, f.coachID, CreateBookingInput{Date: "2024-07-29", StartTime: target, ClientName: "X"})
		}
	}

	seen := make(map[string]bool)
	all, err := memSchedules{f.store}.ListByCoach(ctx, f.coachID)
	require.NoError(t, err)
	for _, e := range all {
		key := e.Date + " " + e.StartTime
		assert.False(t, seen[key], "double booking at %s", key)
		seen[key] = true
	}
}

func TestDelete_RemovesOnlyThatEntry(t *testing.T) {
	f := newScheduleFixture(t)
	p1 := f.store.addPackage(domain.Package{CoachID: f.coachID, TotalSessions: 10, RemainingSessions: 4})
	keep := f.book(t, "2024-07-29", "08:00", &p1.ID)
	gone := f.book(t, "2024-07-29", "09:00", &p1.ID)
	_, err := f.svc.Complete(context.Background(), f.coachID, gone.ID)
	require.NoError(t, err)
	record := f.store.addRecord(domain.LessonRecord{CoachID: f.coachID, ClientID: f.alice.ID, LessonDate: "2024-07-29", LessonTime: "09:00"})
	pkgBefore := f.store.pkg(p1.ID)

	require.NoError(t, f.svc.Delete(context.Background(), f.coachID, gone.ID))

	_, err = memSchedules{f.store}.GetByID(context.Background(), f.coachID, gone.ID)
	assert.Error(t, err)
	assert.Equal(t, *keep, f.store.entry(keep.ID))
	assert.Equal(t, pkgBefore, f.store.pkg(p1.ID))
	assert.Equal(t, record, f.store.record(record.ID))
	assert.Contains(t, f.publisher.types(), events.ScheduleDeleted)

	assert.ErrorIs(t, f.svc.Delete(context.Background(), f.coachID, gone.ID), ErrScheduleNotFound)
}

func TestEditClient(t *testing.T) {
	f := newScheduleFixture(t)
	entry := f.book(t, "2024-07-29", "09:00", nil)
	bob := f.store.addClient(domain.Client{CoachID: f.coachID, Name: "Bob"})

	updated, err := f.svc.EditClient(context.Background(), f.coachID, entry.ID, bob.ID)

	require.NoError(t, err)
	assert.Equal(t, bob.ID, updated.ClientID)
	assert.Equal(t, "Bob", f.store.entry(entry.ID).ClientName)

	_, err = f.svc.EditClient(context.Background(), f.coachID, entry.ID, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newScheduleFixture(t)
	f.publisher.err = errors.New("broker down")

	entry := f.book(t, "2024-07-29", "09:00", nil)
	_, err := f.svc.Complete(context.Background(), f.coachID, entry.ID)

	assert.NoError(t, err)
}
