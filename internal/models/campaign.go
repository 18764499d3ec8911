package models

import "time"

// Campaign statuses. A campaign starts open and moves exactly once to a
// terminal state during settlement.
const (
	CampaignOpen      = "open"
	CampaignSucceeded = "succeeded"
	CampaignFailed    = "failed"
)

type Campaign struct {
	ID           string    `json:"id" db:"id"`
	CreatorID    int       `json:"creatorId" db:"creator_id"`
	Title        string    `json:"title" db:"title"`
	Description  string    `json:"description" db:"description"`
	GoalAmount   int64     `json:"goalAmount" db:"goal_amount"` // in cents
	Deadline     time.Time `json:"deadline" db:"deadline"`
	FundedAmount int64     `json:"fundedAmount" db:"funded_amount"` // cached, re-derived from pledges
	Status       string    `json:"status" db:"status"`
	Image        string    `json:"image" db:"image"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// Open reports whether the campaign still accepts pledges.
func (c *Campaign) Open() bool {
	return c.Status == CampaignOpen
}
