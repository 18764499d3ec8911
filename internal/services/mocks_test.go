package services

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockPaymentProvider stands in for the PayPal client in pledge tests.
type MockPaymentProvider struct {
	mock.Mock
}

func (m *MockPaymentProvider) Charge(ctx context.Context, amount int64, reference string) (string, error) {
	args := m.Called(ctx, amount, reference)
	return args.String(0), args.Error(1)
}
