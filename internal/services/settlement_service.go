package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/bidcast/backend/internal/audit"
	"github.com/bidcast/backend/internal/config"
	"github.com/bidcast/backend/internal/models"
	"github.com/go-redis/redis/v8"
)

// SettlementService owns campaign finalization: the one-time transition of a
// campaign to a terminal state with the associated fund movement. Finalization
// is idempotent and guarded by a status compare-and-swap, so concurrent calls
// settle a campaign at most once.
type SettlementService struct {
	db      *sql.DB
	redis   *redis.Client
	payouts *PayoutService
	audit   *audit.Logger
	config  *config.CrowdfundConfig
}

type settledPledge struct {
	id     string
	userID int
	amount int64
}

func NewSettlementService(db *sql.DB, redisClient *redis.Client, payouts *PayoutService, cfg *config.CrowdfundConfig) *SettlementService {
	if cfg == nil {
		cfg = config.LoadCrowdfundConfig()
	}
	return &SettlementService{
		db:      db,
		redis:   redisClient,
		payouts: payouts,
		audit:   audit.NewLogger(),
		config:  cfg,
	}
}

// Finalize settles a campaign past its deadline. Returns the terminal status,
// "succeeded" or "failed". Calling it again after settlement returns the
// existing status without touching any balance.
func (ss *SettlementService) Finalize(ctx context.Context, campaignID string) (string, error) {
	tx, err := ss.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The campaign row lock serializes finalization against in-flight pledges,
	// so the re-summed total below cannot miss a concurrently committed pledge.
	var (
		creatorID  int
		goalAmount int64
		deadline   time.Time
		status     string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT creator_id, goal_amount, deadline, status FROM campaigns WHERE id = $1 FOR UPDATE
	`, campaignID).Scan(&creatorID, &goalAmount, &deadline, &status)
	if err == sql.ErrNoRows {
		return "", ErrCampaignNotFound
	}
	if err != nil {
		return "", err
	}

	if status != models.CampaignOpen {
		// Already finalized, silent idempotent success.
		return status, nil
	}

	if time.Now().Before(deadline) {
		return "", ErrTooEarly
	}

	// Authoritative funded total comes from the pledge rows, never from the
	// cached funded_amount column.
	pledges, fundedTotal, err := ss.collectPledges(ctx, tx, campaignID)
	if err != nil {
		return "", err
	}

	outcome := models.CampaignFailed
	if fundedTotal >= goalAmount {
		outcome = models.CampaignSucceeded
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE campaigns SET status = $1, funded_amount = $2, updated_at = NOW()
		WHERE id = $3 AND status = 'open'
	`, outcome, fundedTotal, campaignID)
	if err != nil {
		return "", err
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		// Another finalize won the race; report what it decided.
		var settled string
		if err := ss.db.QueryRowContext(ctx, `
			SELECT status FROM campaigns WHERE id = $1
		`, campaignID).Scan(&settled); err != nil {
			return "", err
		}
		return settled, nil
	}

	if outcome == models.CampaignSucceeded {
		if err := ss.creditUser(ctx, tx, creatorID, fundedTotal); err != nil {
			return "", err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE pledges SET eligible_for_perks = true WHERE campaign_id = $1
		`, campaignID); err != nil {
			return "", err
		}
	} else {
		for _, p := range pledges {
			if err := ss.creditUser(ctx, tx, p.userID, p.amount); err != nil {
				return "", err
			}
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE pledges SET refunded = true WHERE campaign_id = $1
		`, campaignID); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit settlement: %w", err)
	}

	ss.audit.LogSettlement(campaignID, outcome, fundedTotal, len(pledges))
	log.Printf("[SETTLEMENT] Campaign %s finalized as %s, funded %d of %d across %d pledges",
		campaignID, outcome, fundedTotal, goalAmount, len(pledges))

	// The payout instruction leaves after commit; settlement must not depend
	// on the messaging leg.
	if ss.payouts != nil && outcome == models.CampaignSucceeded && fundedTotal > 0 {
		if err := ss.payouts.SendCreatorPayout(campaignID, creatorID, fundedTotal); err != nil {
			log.Printf("[SETTLEMENT] Failed to emit payout message for campaign %s: %v", campaignID, err)
		}
	}

	return outcome, nil
}

func (ss *SettlementService) collectPledges(ctx context.Context, tx *sql.Tx, campaignID string) ([]settledPledge, int64, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, user_id, amount FROM pledges WHERE campaign_id = $1
	`, campaignID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var pledges []settledPledge
	var fundedTotal int64
	for rows.Next() {
		var p settledPledge
		if err := rows.Scan(&p.id, &p.userID, &p.amount); err != nil {
			return nil, 0, err
		}
		pledges = append(pledges, p)
		fundedTotal += p.amount
	}

	return pledges, fundedTotal, rows.Err()
}

// creditUser adds to a store-credit balance, creating the row lazily.
func (ss *SettlementService) creditUser(ctx context.Context, tx *sql.Tx, userID int, amount int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO user_credits (user_id, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET balance = user_credits.balance + EXCLUDED.balance, updated_at = NOW()
	`, userID, amount)
	return err
}

// Sweep queues every open campaign past its deadline for settlement. With no
// Redis available it finalizes inline.
func (ss *SettlementService) Sweep(ctx context.Context) error {
	rows, err := ss.db.QueryContext(ctx, `
		SELECT id FROM campaigns WHERE status = 'open' AND deadline <= NOW()
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var due []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		due = append(due, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range due {
		if ss.redis == nil {
			if _, err := ss.Finalize(ctx, id); err != nil {
				log.Printf("[SETTLEMENT] Inline finalize of %s failed: %v", id, err)
			}
			continue
		}
		if err := ss.redis.RPush(ctx, ss.config.SettlementQueue, id).Err(); err != nil {
			log.Printf("[SETTLEMENT] Failed to queue campaign %s: %v", id, err)
		}
	}

	if len(due) > 0 {
		log.Printf("[SETTLEMENT] Swept %d due campaigns", len(due))
	}
	return nil
}

// Run drives the sweeper and the settlement queue worker until the context is
// cancelled. Intended to run as one background goroutine.
func (ss *SettlementService) Run(ctx context.Context) {
	ticker := time.NewTicker(ss.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ss.Sweep(ctx); err != nil {
				log.Printf("[SETTLEMENT] Sweep failed: %v", err)
			}
			ss.drainQueue(ctx)
		}
	}
}

func (ss *SettlementService) drainQueue(ctx context.Context) {
	if ss.redis == nil {
		return
	}

	for {
		campaignID, err := ss.redis.LPop(ctx, ss.config.SettlementQueue).Result()
		if err == redis.Nil {
			return
		}
		if err != nil {
			log.Printf("[SETTLEMENT] Queue pop failed: %v", err)
			return
		}

		if _, err := ss.Finalize(ctx, campaignID); err != nil {
			log.Printf("[SETTLEMENT] Finalize of queued campaign %s failed: %v", campaignID, err)
		}
	}
}
