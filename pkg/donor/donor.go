// Package donor identifies donors by an anonymous donor_token cookie.
// Donors need no account to give; the token keys their cumulative
// aggregate and their live donation requests.
package donor

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const donorIDKey contextKey = "donor_id"

// CookieName is the donor token cookie.
const CookieName = "donor_token"

// IDFromContext returns the donor id set by Identify.
func IDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(donorIDKey).(string)
	return v, ok
}

// WithID sets the donor id on the context.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, donorIDKey, id)
}

// Identify is middleware that reads the donor token cookie, issuing a
// fresh token when none is present, and puts the donor id in the context.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
			id = cookie.Value
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     CookieName,
				Value:    id,
				Path:     "/",
				MaxAge:   60 * 60 * 24 * 365,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
	})
}
