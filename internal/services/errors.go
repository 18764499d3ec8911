package services

import "errors"

// Ledger engine failures. Every validation failure surfaces as one of these
// so callers can map them to distinct responses instead of string matching.
var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrUserNotFound        = errors.New("user not found - onboarding incomplete")
	ErrCampaignNotFound    = errors.New("campaign not found")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrCampaignClosed      = errors.New("campaign is not open for pledges")
	ErrDuplicatePledge     = errors.New("user already pledged to this campaign")
	ErrTooEarly            = errors.New("cannot finalize before campaign deadline")
	ErrInsufficientCredit  = errors.New("insufficient store credit for refund")
	ErrNoPledgeToRefund    = errors.New("no pledges from user to refund")
	ErrPledgeNotYetSettled = errors.New("pledges not yet converted to store credit")
	ErrRefundsNotAllowed   = errors.New("refunds allowed only on failed campaigns")
	ErrAlreadyWithdrawn    = errors.New("refund already requested for this campaign")
	ErrNotCampaignOwner    = errors.New("caller is not the campaign creator")
)
