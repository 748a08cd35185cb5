package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"koperasi-backend/internal/domain"
)

type APITokenRepository struct {
	db *sql.DB
}

func NewAPITokenRepository(db *sql.DB) *APITokenRepository {
	return &APITokenRepository{db: db}
}

// FindByPlainToken looks an operator token up by the sha256 of its plain
// value. Expired tokens are filtered out in SQL.
func (r *APITokenRepository) FindByPlainToken(ctx context.Context, plainToken string) (*domain.APIToken, error) {
	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" {
		return nil, errors.New("empty token")
	}

	sum := sha256.Sum256([]byte(plainToken))
	hash := hex.EncodeToString(sum[:])

	var t domain.APIToken
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, token_hash, expires_at
		FROM api_tokens
		WHERE token_hash = $1
		  AND (expires_at IS NULL OR expires_at > $2)`,
		hash, time.Now(),
	).Scan(&t.ID, &t.Name, &t.TokenHash, &t.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
