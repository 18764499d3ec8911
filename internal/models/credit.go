package models

import "time"

// UserCredit is the per-user store-credit balance. One row per user, created
// lazily on the first credit event. Balance is never negative.
type UserCredit struct {
	UserID    int       `json:"userId" db:"user_id"`
	Balance   int64     `json:"balance" db:"balance"` // in cents
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// CreditWithdrawal records a cash-out of store credit after a failed
// campaign. One withdrawal per user per campaign.
type CreditWithdrawal struct {
	ID         int       `json:"id" db:"id"`
	UserID     int       `json:"userId" db:"user_id"`
	CampaignID string    `json:"campaignId" db:"campaign_id"`
	Amount     int64     `json:"amount" db:"amount"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}
