package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Package is a prepaid block of sessions bought by one client.
// Invariant: 0 <= RemainingSessions <= TotalSessions.
type Package struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CoachID           primitive.ObjectID `bson:"coachId" json:"coachId"`
	ClientID          primitive.ObjectID `bson:"clientId" json:"clientId"`
	TotalSessions     int                `bson:"totalSessions" json:"totalSessions"`
	RemainingSessions int                `bson:"remainingSessions" json:"remainingSessions"`
	TotalAmount       float64            `bson:"totalAmount" json:"totalAmount"`
	StartDate         string             `bson:"startDate,omitempty" json:"startDate,omitempty"`   // YYYY-MM-DD
	ValidUntil        string             `bson:"validUntil,omitempty" json:"validUntil,omitempty"` // YYYY-MM-DD
	IsExpired         bool               `bson:"isExpired" json:"isExpired"`
	Notes             string             `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt         time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// ReconciledRemaining is the balance the package should have once `used`
// lesson records have been written against it.
func (p *Package) ReconciledRemaining(used int) int {
	remaining := p.TotalSessions - used
	if remaining < 0 {
		return 0
	}
	return remaining
}
