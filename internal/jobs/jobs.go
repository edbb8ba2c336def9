package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no job matches the id.
	ErrNotFound = errors.New("jobs: not found")
	// ErrInvalidTransition is returned for a move the job lifecycle forbids.
	ErrInvalidTransition = errors.New("jobs: invalid transition")
	// ErrNotAssignee is returned when a freelancer acts on a job assigned to
	// someone else.
	ErrNotAssignee = errors.New("jobs: job is assigned to another freelancer")
	// ErrMissingParty is returned when the acting store or freelancer is empty.
	ErrMissingParty = errors.New("jobs: store or freelancer id is required")
	// ErrStaleStatus reports a compare-and-set update that lost a race.
	ErrStaleStatus = errors.New("jobs: status changed concurrently")
)

// Status tracks a shift from posting to payout.
type Status string

const (
	StatusOpen       Status = "open"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusPaid       Status = "paid"
)

var transitions = map[Status]Status{
	StatusOpen:       StatusAssigned,
	StatusAssigned:   StatusInProgress,
	StatusInProgress: StatusCompleted,
	StatusCompleted:  StatusPaid,
}

// CanTransition reports whether a job may move from one status to the next.
// The lifecycle is strictly linear.
func CanTransition(from, to Status) bool {
	next, ok := transitions[from]
	return ok && next == to
}

// Job is a shift a store posts for freelancers.
type Job struct {
	ID           uuid.UUID  `json:"id"`
	StoreID      string     `json:"storeId"`
	StoreName    string     `json:"storeName"`
	Title        string     `json:"title"`
	Location     string     `json:"location"`
	Date         string     `json:"date"`
	StartTime    string     `json:"startTime"`
	Hours        int        `json:"hours"`
	Rate         int64      `json:"rate"`
	Currency     string     `json:"currency"`
	HomeService  bool       `json:"homeService"`
	Status       Status     `json:"status"`
	FreelancerID string     `json:"freelancerId,omitempty"`
	EarningID    *uuid.UUID `json:"earningId,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Pay is what the assigned freelancer earns for the shift, in minor units.
func (j Job) Pay() int64 {
	return j.Rate * int64(j.Hours)
}
