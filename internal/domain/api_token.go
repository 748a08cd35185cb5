package domain

import "time"

// APIToken authenticates a dashboard operator. Only the sha256 of the token
// is stored.
type APIToken struct {
	ID        int64
	Name      string
	TokenHash string
	ExpiresAt *time.Time
}
