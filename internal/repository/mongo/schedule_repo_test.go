package mongo

import (
	"testing"

	"alcyxob/coach-schedule/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestScheduleDocument_WritesLegacyTime(t *testing.T) {
	entry := &domain.ScheduleEntry{
		ID:        primitive.NewObjectID(),
		CoachID:   primitive.NewObjectID(),
		Date:      "2024-07-29",
		StartTime: "09:30",
		EndTime:   "10:30",
		Status:    domain.ScheduleStatusScheduled,
	}

	raw, err := bson.Marshal(toScheduleDocument(entry))
	require.NoError(t, err)

	var stored bson.M
	require.NoError(t, bson.Unmarshal(raw, &stored))
	assert.Equal(t, "09:30", stored["startTime"])
	assert.Equal(t, "09:30", stored["time"])
}

func TestScheduleDocument_ReadsLegacyOnlyDocument(t *testing.T) {
	legacy := bson.M{
		"_id":     primitive.NewObjectID(),
		"coachId": primitive.NewObjectID(),
		"date":    "2024-07-29",
		"time":    "14:00",
		"endTime": "15:00",
		"status":  "scheduled",
	}
	raw, err := bson.Marshal(legacy)
	require.NoError(t, err)

	var doc scheduleDocument
	require.NoError(t, bson.Unmarshal(raw, &doc))

	entry := doc.entry()
	assert.Equal(t, "14:00", entry.StartTime)
	assert.Equal(t, domain.ScheduleStatusScheduled, entry.Status)
}

func TestScheduleDocument_StartTimeWinsOverLegacy(t *testing.T) {
	doc := scheduleDocument{
		ScheduleEntry: domain.ScheduleEntry{StartTime: "10:00"},
		LegacyTime:    "09:00",
	}
	assert.Equal(t, "10:00", doc.entry().StartTime)
}

func TestCoachChangePipeline(t *testing.T) {
	coachID := primitive.NewObjectID()
	pipeline := coachChangePipeline(coachID)
	require.Len(t, pipeline, 1)

	match, ok := pipeline[0][0].Value.(bson.M)
	require.True(t, ok)
	or, ok := match["$or"].(bson.A)
	require.True(t, ok)
	assert.Contains(t, or, bson.M{"fullDocument.coachId": coachID})
	assert.Contains(t, or, bson.M{"operationType": "delete"})
}
