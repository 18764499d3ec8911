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
	"github.com/bidcast/backend/internal/config"
	"github.com/bidcast/backend/internal/models"
	"github.com/bidcast/backend/internal/payments"
	"github.com/google/uuid"
)

// PledgeService validates and records pledges. Money-moving: it debits store
// credit, charges the payment collaborator for any shortfall, and re-derives
// the campaign's funded total from the append-only pledge rows.
type PledgeService struct {
	db        *sql.DB
	payments  payments.Provider
	audit     *audit.Logger
	validator *ValidationHelper
	config    *config.CrowdfundConfig
}

// PledgeResult reconciles the credit and cash legs of an accepted pledge.
type PledgeResult struct {
	PledgeID   string `json:"pledgeId"`
	CreditUsed int64  `json:"creditUsed"`
	CashAmount int64  `json:"cashAmount"`
}

type pledgeRequest struct {
	CampaignID string `json:"campaignId" validate:"required,min=3"`
	Amount     int64  `json:"amount" validate:"required,gt=0"`
}

func NewPledgeService(db *sql.DB, provider payments.Provider, cfg *config.CrowdfundConfig) *PledgeService {
	if cfg == nil {
		cfg = config.LoadCrowdfundConfig()
	}
	return &PledgeService{
		db:        db,
		payments:  provider,
		audit:     audit.NewLogger(),
		validator: NewValidationHelper(),
		config:    cfg,
	}
}

// CreatePledge records a pledge against an open campaign
// @Summary Create a pledge
// @Description Pledge an amount to a campaign. Store credit is applied first; any shortfall is charged through the payment provider.
// @Tags pledges
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body pledgeRequest true "Pledge data"
// @Success 201 {object} PledgeResult
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /pledges [post]
func (ps *PledgeService) CreatePledge(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req pledgeRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if req.Amount <= 0 {
		SendErrorResponse(w, ErrInvalidAmount.Error(), http.StatusBadRequest, nil)
		return
	}

	if err := ps.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if req.Amount > ps.config.MaxPledgeAmount {
		SendErrorResponse(w, "Pledge exceeds maximum amount", http.StatusBadRequest, nil)
		return
	}

	user, err := resolveUser(r.Context(), ps.db)
	if err != nil {
		log.Printf("[PLEDGE] Rejected: %v", err)
		SendErrorResponse(w, err.Error(), identityStatus(err), nil)
		return
	}

	result, err := ps.Pledge(r.Context(), user, req.CampaignID, req.Amount)
	if err != nil {
		ps.audit.LogError(req.CampaignID, user.ID, err)
		SendErrorResponse(w, err.Error(), pledgeStatus(err), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

// Pledge runs the pledge algorithm as one database transaction. The credit
// debit and the external charge either both land or the rollback undoes the
// debit, so no partial state survives a payment failure.
func (ps *PledgeService) Pledge(ctx context.Context, user *models.User, campaignID string, amount int64) (*PledgeResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Lock the campaign row so concurrent pledges serialize on the re-sum.
	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM campaigns WHERE id = $1 FOR UPDATE
	`, campaignID).Scan(&status)
	if err == sql.ErrNoRows {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, err
	}
	if status != models.CampaignOpen {
		return nil, ErrCampaignClosed
	}

	if ps.config.SinglePledgePerUser {
		var exists bool
		err = tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM pledges WHERE user_id = $1 AND campaign_id = $2)
		`, user.ID, campaignID).Scan(&exists)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrDuplicatePledge
		}
	}

	var balance int64
	err = tx.QueryRowContext(ctx, `
		SELECT balance FROM user_credits WHERE user_id = $1 FOR UPDATE
	`, user.ID).Scan(&balance)
	if err == sql.ErrNoRows {
		balance = 0
	} else if err != nil {
		return nil, err
	}

	creditUsed := min(balance, amount)
	cashAmount := amount - creditUsed

	if creditUsed > 0 {
		result, err := tx.ExecContext(ctx, `
			UPDATE user_credits SET balance = balance - $1, updated_at = NOW()
			WHERE user_id = $2 AND balance >= $1
		`, creditUsed, user.ID)
		if err != nil {
			return nil, err
		}
		rowsAffected, _ := result.RowsAffected()
		if rowsAffected == 0 {
			return nil, fmt.Errorf("inconsistent credit state for user %d", user.ID)
		}
	}

	pledgeID := uuid.New().String()

	// The external charge happens inside the transaction window. Any failure
	// aborts the pledge and rolls back the credit debit above.
	var paymentRef string
	if cashAmount > 0 {
		paymentRef, err = ps.payments.Charge(ctx, cashAmount, pledgeID)
		if err != nil {
			log.Printf("[PLEDGE] Payment charge failed for campaign %s, user %d: %v", campaignID, user.ID, err)
			return nil, fmt.Errorf("payment failed: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pledges (id, user_id, campaign_id, amount, credit_used, cash_amount, payment_ref, refunded, eligible_for_perks, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, false, NOW())
	`, pledgeID, user.ID, campaignID, amount, creditUsed, cashAmount, paymentRef)
	if err != nil {
		return nil, err
	}

	// Re-derive the funded total from the pledge rows instead of incrementing
	// the cached value. Convergent under any pledge arrival order.
	var fundedTotal int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM pledges WHERE campaign_id = $1
	`, campaignID).Scan(&fundedTotal)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE campaigns SET funded_amount = $1, updated_at = NOW() WHERE id = $2
	`, fundedTotal, campaignID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit pledge: %w", err)
	}

	ps.audit.LogPledge(campaignID, user.ID, amount, creditUsed, cashAmount)
	log.Printf("[PLEDGE] Recorded %s: campaign %s, user %d, amount %d (credit %d, cash %d), funded total %d",
		pledgeID, campaignID, user.ID, amount, creditUsed, cashAmount, fundedTotal)

	return &PledgeResult{PledgeID: pledgeID, CreditUsed: creditUsed, CashAmount: cashAmount}, nil
}

// ListUserPledges returns the authenticated backer's pledges
// @Summary List own pledges
// @Description Get the authenticated backer's pledges, newest first
// @Tags pledges
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{pledges=[]models.Pledge,count=int}
// @Failure 401 {object} ErrorResponse
// @Router /pledges [get]
func (ps *PledgeService) ListUserPledges(w http.ResponseWriter, r *http.Request) {
	user, err := resolveUser(r.Context(), ps.db)
	if err != nil {
		SendErrorResponse(w, err.Error(), identityStatus(err), nil)
		return
	}

	rows, err := ps.db.QueryContext(r.Context(), `
		SELECT id, user_id, campaign_id, amount, credit_used, cash_amount, COALESCE(payment_ref, ''), refunded, eligible_for_perks, created_at
		FROM pledges
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, user.ID)
	if err != nil {
		log.Printf("[PLEDGE] List failed for user %d: %v", user.ID, err)
		SendErrorResponse(w, "Failed to fetch pledges", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	pledges := []models.Pledge{}
	for rows.Next() {
		var p models.Pledge
		err := rows.Scan(&p.ID, &p.UserID, &p.CampaignID, &p.Amount, &p.CreditUsed,
			&p.CashAmount, &p.PaymentRef, &p.Refunded, &p.EligibleForPerks, &p.CreatedAt)
		if err != nil {
			SendErrorResponse(w, "Failed to fetch pledges", http.StatusInternalServerError, nil)
			return
		}
		pledges = append(pledges, p)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"pledges": pledges,
		"count":   len(pledges),
	})
}

func pledgeStatus(err error) int {
	switch err {
	case ErrInvalidAmount:
		return http.StatusBadRequest
	case ErrCampaignNotFound:
		return http.StatusNotFound
	case ErrCampaignClosed:
		return http.StatusConflict
	case ErrDuplicatePledge:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
