package services

import (
	"context"
	"database/sql"

	"github.com/bidcast/backend/internal/middleware"
	"github.com/bidcast/backend/internal/models"
)

// resolveUser maps the verified identity on the request context to its
// ledger user row. ErrUnauthenticated when no identity was attached,
// ErrUserNotFound when the identity never completed onboarding.
func resolveUser(ctx context.Context, db *sql.DB) (*models.User, error) {
	subject, ok := ctx.Value(middleware.CtxSubject).(string)
	if !ok || subject == "" || subject == "<nil>" {
		return nil, ErrUnauthenticated
	}

	var user models.User
	err := db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(email, ''), role FROM users WHERE token_identifier = $1
	`, subject).Scan(&user.ID, &user.Name, &user.Email, &user.Role)

	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	user.TokenIdentifier = subject
	return &user, nil
}
