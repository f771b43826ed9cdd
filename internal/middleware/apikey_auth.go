package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/errandly/backend/internal/models"
	"github.com/errandly/backend/internal/repository"
)

type contextKey string

const (
	ctxAccountKey contextKey = "account"
	ctxWorkerKey  contextKey = "worker"
)

// APIKeyRepo is the interface used by API key auth middleware.
type APIKeyRepo interface {
	FindByKeyHash(ctx context.Context, keyHash string) (*repository.APIKeyWithAccount, error)
}

// WorkerLookup resolves the worker profile for the authenticated account.
type WorkerLookup interface {
	GetByAccountID(ctx context.Context, accountID uuid.UUID) (*models.Worker, error)
}

// APIKeyAuth authenticates requests by hashing the Bearer token (SHA-256)
// and looking it up in api_keys. On success it sets the account, and the
// worker profile when one exists, into request context.
func APIKeyAuth(apiKeyRepo APIKeyRepo, workerLookup WorkerLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}

			hash := hashKey(raw)
			result, err := apiKeyRepo.FindByKeyHash(r.Context(), hash)
			if err != nil {
				http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ctxAccountKey, &result.Account)

			worker, err := workerLookup.GetByAccountID(r.Context(), result.Account.ID)
			if err == nil {
				ctx = context.WithValue(ctx, ctxWorkerKey, worker)
			} else if !errors.Is(err, pgx.ErrNoRows) {
				http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountFromCtx returns the authenticated account or nil.
func AccountFromCtx(ctx context.Context) *models.Account {
	acc, _ := ctx.Value(ctxAccountKey).(*models.Account)
	return acc
}

// WithAccount returns a context carrying the given account.
func WithAccount(ctx context.Context, acc *models.Account) context.Context {
	return context.WithValue(ctx, ctxAccountKey, acc)
}

// WorkerFromCtx returns the authenticated account's worker profile, or nil
// when the account never registered as a worker.
func WorkerFromCtx(ctx context.Context) *models.Worker {
	w, _ := ctx.Value(ctxWorkerKey).(*models.Worker)
	return w
}

// WithWorker returns a context carrying the given worker.
func WithWorker(ctx context.Context, w *models.Worker) context.Context {
	return context.WithValue(ctx, ctxWorkerKey, w)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func hashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
