// Package auth keeps the caller's identity in a server side session and turns
// it into claims for the rest of the request.
package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/irsalhamdi/storefront/api/web"
	"github.com/irsalhamdi/storefront/api/weberr"
	"github.com/irsalhamdi/storefront/core/claims"
)

const (
	userIDKey = "user_id"
	roleKey   = "role"
)

// LoadAndSave loads the session named by the request cookie and writes the
// session cookie back before the first byte of the response.
func LoadAndSave(sm *scs.SessionManager) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			var token string
			if c, err := r.Cookie(sm.Cookie.Name); err == nil {
				token = c.Value
			}

			ctx, err := sm.Load(ctx, token)
			if err != nil {
				return err
			}
			r = r.WithContext(ctx)

			sw := &sessionWriter{ResponseWriter: w, sm: sm, ctx: ctx}
			err = handler(ctx, sw, r)

			if !sw.committed {
				sw.err = sw.commit()
			}
			if err == nil {
				err = sw.err
			}
			return err
		}
		return h
	}
	return m
}

type sessionWriter struct {
	http.ResponseWriter
	sm        *scs.SessionManager
	ctx       context.Context
	committed bool
	err       error
}

func (w *sessionWriter) WriteHeader(code int) {
	if !w.committed {
		w.err = w.commit()
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	if !w.committed {
		w.err = w.commit()
	}
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) commit() error {
	w.committed = true

	switch w.sm.Status(w.ctx) {
	case scs.Modified:
		token, expiry, err := w.sm.Commit(w.ctx)
		if err != nil {
			return err
		}
		w.setCookie(token, expiry)
	case scs.Destroyed:
		w.setCookie("", time.Unix(1, 0))
	}
	return nil
}

func (w *sessionWriter) setCookie(token string, expiry time.Time) {
	c := w.sm.Cookie
	cookie := &http.Cookie{
		Name:     c.Name,
		Value:    token,
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
		SameSite: c.SameSite,
	}

	if token == "" {
		cookie.Expires = expiry
		cookie.MaxAge = -1
	} else if c.Persist {
		cookie.Expires = time.Unix(expiry.Unix()+1, 0)
		cookie.MaxAge = int(time.Until(expiry).Seconds() + 1)
	}

	w.Header().Add("Set-Cookie", cookie.String())
	w.Header().Add("Cache-Control", `no-cache="Set-Cookie"`)
}

// Authenticate rejects requests without a logged in session and stores the
// caller's claims in the context.
func Authenticate(sm *scs.SessionManager) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			clm, ok := sessionClaims(ctx, sm)
			if !ok {
				return weberr.NotAuthorized(errors.New("user not authenticated"))
			}

			return handler(claims.Set(ctx, clm), w, r)
		}
		return h
	}
	return m
}

// Admin is Authenticate restricted to administrators.
func Admin(sm *scs.SessionManager) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			clm, ok := sessionClaims(ctx, sm)
			if !ok {
				return weberr.NotAuthorized(errors.New("user not authenticated"))
			}
			if clm.Role != claims.RoleAdmin {
				return weberr.Forbidden(errors.New("admin role required"))
			}

			return handler(claims.Set(ctx, clm), w, r)
		}
		return h
	}
	return m
}

func sessionClaims(ctx context.Context, sm *scs.SessionManager) (claims.Claims, bool) {
	id := sm.GetInt64(ctx, userIDKey)
	if id == 0 {
		return claims.Claims{}, false
	}

	return claims.Claims{UserID: id, Role: sm.GetString(ctx, roleKey)}, true
}
