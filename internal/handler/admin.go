package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/gemstore/internal/domain/auth"
)

const bearerPrefix = "bearer "

// RequireAdmin verifies the bearer token before any admin handler runs and
// stores the principal in the request context. Invalid tokens get 401;
// failures to look up the principal get 500.
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, r, auth.ErrUnauthorized)
			return
		}

		p, err := h.auth.Verify(r.Context(), token)
		if err != nil {
			writeError(w, r, err)
			return
		}

		ctx := auth.WithPrincipal(r.Context(), p)
		ctx = zctx.With(ctx, zap.Int64("admin_id", p.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < len(bearerPrefix) || !strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(bearerPrefix):])
	return token, token != ""
}

func principal(r *http.Request) (*auth.Principal, bool) {
	return auth.PrincipalFrom(r.Context())
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var username, password string
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "username":
			username, err = d.Str()
		case "password":
			password, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	cred, err := h.auth.Login(r.Context(), username, password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("token", func(e *jx.Encoder) { e.Str(cred.Token) })
			e.Field("token_type", func(e *jx.Encoder) { e.Str("Bearer") })
			encodeTime(e, "expires_at", cred.ExpiresAt)
		})
	})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, r, auth.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Int64(p.ID) })
			e.Field("username", func(e *jx.Encoder) { e.Str(p.Username) })
			e.Field("email", func(e *jx.Encoder) { e.Str(p.Email) })
		})
	})
}
