package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/freshcart/internal/domain/session"
)

type sessionKey struct{}

type visitor struct {
	id    string
	state *session.State
}

// withSession loads the visitor's session, issuing a new cookie to first-time
// visitors. A store outage degrades to an empty, unsaved session.
func (h *Handler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id := ""
		if c, err := r.Cookie(h.cfg.SessionCookie); err == nil {
			if _, err := uuid.Parse(c.Value); err == nil {
				id = c.Value
			}
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     h.cfg.SessionCookie,
				Value:    id,
				Path:     "/",
				MaxAge:   int(h.cfg.SessionTTL.Seconds()),
				HttpOnly: true,
				Secure:   h.cfg.SecureCookie,
				SameSite: http.SameSiteLaxMode,
			})
		}

		st, err := h.Sessions.Load(ctx, id)
		if err != nil {
			zctx.From(ctx).Warn("Load session", zap.Error(err))
			st = &session.State{}
		}

		ctx = context.WithValue(ctx, sessionKey{}, &visitor{id: id, state: st})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionState returns the request's session state. It is never nil inside
// withSession.
func sessionState(ctx context.Context) *session.State {
	if v, ok := ctx.Value(sessionKey{}).(*visitor); ok {
		return v.state
	}
	return &session.State{}
}

// saveSession persists the request's session state.
func (h *Handler) saveSession(ctx context.Context) error {
	v, ok := ctx.Value(sessionKey{}).(*visitor)
	if !ok {
		return nil
	}
	return h.Sessions.Save(ctx, v.id, v.state)
}
