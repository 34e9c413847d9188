package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/freshcart/internal/domain/auth"
)

// withIdentity attaches the caller's identity when a valid bearer token is
// present. Anonymous requests pass through unchanged.
func (h *Handler) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		id, err := h.Tokens.Verify(raw)
		if err != nil {
			zctx.From(r.Context()).Debug("Rejected token", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		ctx := auth.WithIdentity(r.Context(), id)
		ctx = zctx.With(ctx, zap.Int64("owner_id", id.OwnerID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireIdentity rejects requests without an identity with 401.
func requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.FromContext(r.Context()); !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="freshcart"`)
			writeFailure(w, http.StatusUnauthorized, "Please log in to continue.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// owner returns the authenticated owner id. Only valid behind requireIdentity.
func owner(r *http.Request) int64 {
	id, _ := auth.FromContext(r.Context())
	return id.OwnerID
}
