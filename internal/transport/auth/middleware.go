package auth

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"koperasi-backend/internal/repository"
)

type ctxKey string

const OperatorIDKey ctxKey = "operatorID"

// TokenMiddleware authenticates dashboard requests with an operator API
// token, either as a Bearer header or a token query parameter (the latter for
// websocket connections, where custom headers are unavailable).
func TokenMiddleware(tokenRepo *repository.APITokenRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			plainToken := ""

			authHeader := r.Header.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				plainToken = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			}
			if plainToken == "" {
				plainToken = r.URL.Query().Get("token")
			}

			if plainToken == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			token, err := tokenRepo.FindByPlainToken(r.Context(), plainToken)
			if err != nil {
				log.Printf("[AUTH] token lookup failed for %s %s: %v", r.Method, r.URL.Path, err)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), OperatorIDKey, token.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetOperatorID(ctx context.Context) (int64, error) {
	operatorID, ok := ctx.Value(OperatorIDKey).(int64)
	if !ok {
		return 0, errors.New("operatorID not found in context")
	}
	return operatorID, nil
}
