package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ExerciseAction is one exercise performed during a lesson.
type ExerciseAction struct {
	Category string   `bson:"category" json:"category"`
	Exercise string   `bson:"exercise" json:"exercise"`
	Sets     []string `bson:"sets" json:"sets"` // Per-set weights, in order
}

// LessonRecord describes what happened in a completed session.
// It is linked to a ScheduleEntry by (ClientID, LessonDate, LessonTime), not by id.
type LessonRecord struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	CoachID         primitive.ObjectID  `bson:"coachId" json:"coachId"`
	ClientID        primitive.ObjectID  `bson:"clientId" json:"clientId"`
	ClientName      string              `bson:"clientName" json:"clientName"`
	LessonDate      string              `bson:"lessonDate" json:"lessonDate"` // YYYY-MM-DD
	LessonTime      string              `bson:"lessonTime" json:"lessonTime"` // HH:MM
	Duration        int                 `bson:"duration" json:"duration"`     // Minutes
	PackageID       *primitive.ObjectID `bson:"packageId,omitempty" json:"packageId,omitempty"`
	TrainingMode    string              `bson:"trainingMode,omitempty" json:"trainingMode,omitempty"`
	ExerciseActions []ExerciseAction    `bson:"exerciseActions,omitempty" json:"exerciseActions,omitempty"`
	Content         string              `bson:"content,omitempty" json:"content,omitempty"`
	Notes           string              `bson:"notes,omitempty" json:"notes,omitempty"`
	Performance     string              `bson:"performance,omitempty" json:"performance,omitempty"`
	NextGoals       string              `bson:"nextGoals,omitempty" json:"nextGoals,omitempty"`
	CreatedAt       time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time           `bson:"updatedAt" json:"updatedAt"`
}
