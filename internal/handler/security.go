package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/eventpass/internal/domain/auth"
)

// HeaderAPIKey carries the admin API key.
const HeaderAPIKey = "X-API-Key"

type apiKeyCtxKey struct{}

func apiKeyFrom(ctx context.Context) *auth.APIKeyInfo {
	info, _ := ctx.Value(apiKeyCtxKey{}).(*auth.APIKeyInfo)
	return info
}

// requireAPIKey authenticates the request and binds it to the key's account.
func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := h.auth.Authenticate(r.Context(), r.Header.Get(HeaderAPIKey))
		if err != nil {
			zctx.From(r.Context()).Debug("API key rejected", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		ctx := context.WithValue(r.Context(), apiKeyCtxKey{}, info)
		ctx = zctx.With(ctx,
			zap.Int64("account_id", info.AccountID),
			zap.Int64("api_key_id", info.ID),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := apiKeyFrom(r.Context())
			if info == nil || !info.HasScope(scope) {
				writeError(w, http.StatusForbidden, "API key lacks the "+scope+" scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
