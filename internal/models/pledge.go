package models

import "time"

// Pledge is an append-only settlement ledger entry. The amount never changes
// after insert; only the two settlement flags flip, and only along one path
// per campaign.
type Pledge struct {
	ID               string    `json:"id" db:"id"`
	UserID           int       `json:"userId" db:"user_id"`
	CampaignID       string    `json:"campaignId" db:"campaign_id"`
	Amount           int64     `json:"amount" db:"amount"` // in cents
	CreditUsed       int64     `json:"creditUsed" db:"credit_used"`
	CashAmount       int64     `json:"cashAmount" db:"cash_amount"`
	PaymentRef       string    `json:"paymentRef,omitempty" db:"payment_ref"`
	Refunded         bool      `json:"refunded" db:"refunded"`
	EligibleForPerks bool      `json:"eligibleForPerks" db:"eligible_for_perks"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
}
