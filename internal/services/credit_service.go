package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/bidcast/backend/internal/audit"
	"github.com/bidcast/backend/internal/models"
)

// CreditService exposes the per-user store-credit balance and the explicit
// cash-out step that converts refund credit into a real payout. Cash-out is
// deliberately separate from settlement so credit and cash stay
// distinguishable ledger events.
type CreditService struct {
	db        *sql.DB
	payouts   *PayoutService
	audit     *audit.Logger
	validator *ValidationHelper
}

type refundRequest struct {
	CampaignID string `json:"campaignId" validate:"required,min=3"`
}

func NewCreditService(db *sql.DB, payouts *PayoutService) *CreditService {
	return &CreditService{
		db:        db,
		payouts:   payouts,
		audit:     audit.NewLogger(),
		validator: NewValidationHelper(),
	}
}

// GetBalance returns the caller's store-credit balance
// @Summary Get store-credit balance
// @Description Get the authenticated user's store-credit balance in cents
// @Tags credits
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.UserCredit
// @Failure 401 {object} ErrorResponse
// @Router /credits [get]
func (crs *CreditService) GetBalance(w http.ResponseWriter, r *http.Request) {
	user, err := resolveUser(r.Context(), crs.db)
	if err != nil {
		SendErrorResponse(w, err.Error(), identityStatus(err), nil)
		return
	}

	credit := models.UserCredit{UserID: user.ID}
	err = crs.db.QueryRowContext(r.Context(), `
		SELECT balance, updated_at FROM user_credits WHERE user_id = $1
	`, user.ID).Scan(&credit.Balance, &credit.UpdatedAt)
	if err != nil && err != sql.ErrNoRows {
		log.Printf("[CREDIT] Balance lookup failed for user %d: %v", user.ID, err)
		SendErrorResponse(w, "Failed to fetch balance", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(credit)
}

// RequestRefund converts refunded store credit into a cash payout
// @Summary Request a refund payout
// @Description Withdraw the store credit returned by a failed campaign's settlement as a cash payout
// @Tags credits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body refundRequest true "Refund request"
// @Success 200 {object} object{status=string,amount=int64}
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /credits/refund [post]
func (crs *CreditService) RequestRefund(w http.ResponseWriter, r *http.Request) {
	user, err := resolveUser(r.Context(), crs.db)
	if err != nil {
		SendErrorResponse(w, err.Error(), identityStatus(err), nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req refundRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := crs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	amount, err := crs.Refund(r.Context(), user, req.CampaignID)
	if err != nil {
		crs.audit.LogError(req.CampaignID, user.ID, err)
		SendErrorResponse(w, err.Error(), refundStatus(err), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "refund_requested",
		"amount": amount,
	})
}

// Refund debits the backer's refundable credit for a failed campaign and
// records the withdrawal. Returns the withdrawn amount.
func (crs *CreditService) Refund(ctx context.Context, user *models.User, campaignID string) (int64, error) {
	var status string
	err := crs.db.QueryRowContext(ctx, `SELECT status FROM campaigns WHERE id = $1`, campaignID).Scan(&status)
	if err == sql.ErrNoRows {
		return 0, ErrCampaignNotFound
	}
	if err != nil {
		return 0, err
	}
	if status != models.CampaignFailed {
		return 0, ErrRefundsNotAllowed
	}

	tx, err := crs.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var withdrawn bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM credit_withdrawals WHERE user_id = $1 AND campaign_id = $2)
	`, user.ID, campaignID).Scan(&withdrawn)
	if err != nil {
		return 0, err
	}
	if withdrawn {
		return 0, ErrAlreadyWithdrawn
	}

	var pledgeCount int
	var refundable int64
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN refunded THEN amount ELSE 0 END), 0)
		FROM pledges WHERE user_id = $1 AND campaign_id = $2
	`, user.ID, campaignID).Scan(&pledgeCount, &refundable)
	if err != nil {
		return 0, err
	}
	if pledgeCount == 0 {
		return 0, ErrNoPledgeToRefund
	}
	if refundable == 0 {
		return 0, ErrPledgeNotYetSettled
	}

	var balance int64
	err = tx.QueryRowContext(ctx, `
		SELECT balance FROM user_credits WHERE user_id = $1 FOR UPDATE
	`, user.ID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrInsufficientCredit
	}
	if err != nil {
		return 0, err
	}

	// Consistency guard, should never trigger after a correct settlement.
	if balance < refundable {
		return 0, ErrInsufficientCredit
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE user_credits SET balance = balance - $1, updated_at = NOW() WHERE user_id = $2
	`, refundable, user.ID); err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO credit_withdrawals (user_id, campaign_id, amount, created_at)
		VALUES ($1, $2, $3, NOW())
	`, user.ID, campaignID, refundable); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit withdrawal: %w", err)
	}

	crs.audit.LogWithdrawal(campaignID, user.ID, refundable)
	log.Printf("[CREDIT] Refund requested: user %d, campaign %s, amount %d", user.ID, campaignID, refundable)

	if crs.payouts != nil {
		if err := crs.payouts.SendRefundPayout(campaignID, user.ID, refundable); err != nil {
			log.Printf("[CREDIT] Failed to emit refund payout message for campaign %s: %v", campaignID, err)
		}
	}

	return refundable, nil
}

func refundStatus(err error) int {
	switch err {
	case ErrCampaignNotFound:
		return http.StatusNotFound
	case ErrRefundsNotAllowed, ErrPledgeNotYetSettled:
		return http.StatusConflict
	case ErrNoPledgeToRefund:
		return http.StatusNotFound
	case ErrAlreadyWithdrawn:
		return http.StatusConflict
	case ErrInsufficientCredit:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
