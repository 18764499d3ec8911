package services

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bidcast/backend/internal/config"
	"github.com/bidcast/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func testCrowdfundConfig() *config.CrowdfundConfig {
	return &config.CrowdfundConfig{
		SinglePledgePerUser: false,
		SettlementQueue:     "settlement_queue",
		PayoutCurrency:      "USD",
		MaxPledgeAmount:     100_000_00,
		InstitutionBIC:      "BIDCAST",
	}
}

func TestPledgeService_Pledge(t *testing.T) {
	backer := &models.User{ID: 7, Name: "Backer", Role: "user"}

	t.Run("credit covers part of the pledge", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		provider := new(MockPaymentProvider)
		service := NewPledgeService(db, provider, testCrowdfundConfig())

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT status FROM campaigns WHERE id = \\$1 FOR UPDATE").
			WithArgs("camp-1").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("open"))
		dbMock.ExpectQuery("SELECT balance FROM user_credits WHERE user_id = \\$1 FOR UPDATE").
			WithArgs(backer.ID).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(3000))
		dbMock.ExpectExec("UPDATE user_credits SET balance = balance - \\$1").
			WithArgs(int64(3000), backer.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		provider.On("Charge", mock.Anything, int64(2000), mock.AnythingOfType("string")).
			Return("PAYPAL-CAP-1", nil)

		dbMock.ExpectExec("INSERT INTO pledges").
			WithArgs(sqlmock.AnyArg(), backer.ID, "camp-1", int64(5000), int64(3000), int64(2000), "PAYPAL-CAP-1").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\) FROM pledges WHERE campaign_id = \\$1").
			WithArgs("camp-1").
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(5000))
		dbMock.ExpectExec("UPDATE campaigns SET funded_amount = \\$1").
			WithArgs(int64(5000), "camp-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectCommit()

		result, err := service.Pledge(context.Background(), backer, "camp-1", 5000)
		assert.NoError(t, err)
		assert.Equal(t, int64(3000), result.CreditUsed)
		assert.Equal(t, int64(2000), result.CashAmount)
		provider.AssertExpectations(t)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("no credit row means full cash pledge", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		provider := new(MockPaymentProvider)
		service := NewPledgeService(db, provider, testCrowdfundConfig())

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT status FROM campaigns WHERE id = \\$1 FOR UPDATE").
			WithArgs("camp-1").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("open"))
		dbMock.ExpectQuery("SELECT balance FROM user_credits WHERE user_id = \\$1 FOR UPDATE").
			WithArgs(backer.ID).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}))

		provider.On("Charge", mock.Anything, int64(5000), mock.AnythingOfType("string")).
			Return("PAYPAL-CAP-2", nil)

		dbMock.ExpectExec("INSERT INTO pledges").
			WithArgs(sqlmock.AnyArg(), backer.ID, "camp-1", int64(5000), int64(0), int64(5000), "PAYPAL-CAP-2").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\) FROM pledges WHERE campaign_id = \\$1").
			WithArgs("camp-1").
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(5000))
		dbMock.ExpectExec("UPDATE campaigns SET funded_amount = \\$1").
			WithArgs(int64(5000), "camp-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectCommit()

		result, err := service.Pledge(context.Background(), backer, "camp-1", 5000)
		assert.NoError(t, err)
		assert.Equal(t, int64(0), result.CreditUsed)
		assert.Equal(t, int64(5000), result.CashAmount)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("credit covers the whole pledge without charging", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		provider := new(MockPaymentProvider)
		service := NewPledgeService(db, provider, testCrowdfundConfig())

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT status FROM campaigns WHERE id = \\$1 FOR UPDATE").
			WithArgs("camp-1").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("open"))
		dbMock.ExpectQuery("SELECT balance FROM user_credits WHERE user_id = \\$1 FOR UPDATE").
			WithArgs(backer.ID).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(9000))
		dbMock.ExpectExec("UPDATE user_credits SET balance = balance - \\$1").
			WithArgs(int64(5000), backer.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec("INSERT INTO pledges").
			WithArgs(sqlmock.AnyArg(), backer.ID, "camp-1", int64(5000), int64(5000), int64(0), "").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\) FROM pledges WHERE campaign_id = \\$1").
			WithArgs("camp-1").
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(5000))
		dbMock.ExpectExec("UPDATE campaigns SET funded_amount = \\$1").
			WithArgs(int64(5000), "camp-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectCommit()

		result, err := service.Pledge(context.Background(), backer, "camp-1", 5000)
		assert.NoError(t, err)
		assert.Equal(t, int64(5000), result.CreditUsed)
		assert.Equal(t, int64(0), result.CashAmount)
		provider.AssertNotCalled(t, "Charge")
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("payment failure rolls back the credit debit", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		provider := new(MockPaymentProvider)
		service := NewPledgeService(db, provider, testCrowdfundConfig())

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT status FROM campaigns WHERE id = \\$1 FOR UPDATE").
			WithArgs("camp-1").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("open"))
		dbMock.ExpectQuery("SELECT balance FROM user_credits WHERE user_id = \\$1 FOR UPDATE").
			WithArgs(backer.ID).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(3000))
		dbMock.ExpectExec("UPDATE user_credits SET balance = balance - \\$1").
			WithArgs(int64(3000), backer.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		provider.On("Charge", mock.Anything, int64(2000), mock.AnythingOfType("string")).
			Return("", errors.New("card declined"))

		dbMock.ExpectRollback()

		_, err = service.Pledge(context.Background(), backer, "camp-1", 5000)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "payment failed")
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("closed campaign", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewPledgeService(db, new(MockPaymentProvider), testCrowdfundConfig())

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT status FROM campaigns WHERE id = \\$1 FOR UPDATE").
			WithArgs("camp-1").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("failed"))
		dbMock.ExpectRollback()

		_, err = service.Pledge(context.Background(), backer, "camp-1", 5000)
		assert.ErrorIs(t, err, ErrCampaignClosed)
	})

	t.Run("unknown campaign", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewPledgeService(db, new(MockPaymentProvider), testCrowdfundConfig())

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT status FROM campaigns WHERE id = \\$1 FOR UPDATE").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"status"}))
		dbMock.ExpectRollback()

		_, err = service.Pledge(context.Background(), backer, "missing", 5000)
		assert.ErrorIs(t, err, ErrCampaignNotFound)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewPledgeService(db, new(MockPaymentProvider), testCrowdfundConfig())

		_, err = service.Pledge(context.Background(), backer, "camp-1", 0)
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = service.Pledge(context.Background(), backer, "camp-1", -100)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("single pledge policy rejects a second pledge", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		cfg := testCrowdfundConfig()
		cfg.SinglePledgePerUser = true
		service := NewPledgeService(db, new(MockPaymentProvider), cfg)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT status FROM campaigns WHERE id = \\$1 FOR UPDATE").
			WithArgs("camp-1").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("open"))
		dbMock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM pledges WHERE user_id = \\$1 AND campaign_id = \\$2\\)").
			WithArgs(backer.ID, "camp-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		dbMock.ExpectRollback()

		_, err = service.Pledge(context.Background(), backer, "camp-1", 5000)
		assert.ErrorIs(t, err, ErrDuplicatePledge)
	})
}
