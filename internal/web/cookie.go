package web

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	profileCookie = "oasis_profile"
	profileMaxAge = 365 * 24 * time.Hour
)

// readProfile returns the browser profile id carried by r. When the request
// has none (or a malformed one) a new id is minted and fresh is true.
func readProfile(r *http.Request) (id string, fresh bool) {
	if c, err := r.Cookie(profileCookie); err == nil {
		if parsed, err := uuid.Parse(c.Value); err == nil {
			return parsed.String(), false
		}
	}
	return uuid.NewString(), true
}

func newProfileCookie(id string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     profileCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(profileMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ensureProfile reads the profile id and sets the cookie on w when it was
// just minted.
func ensureProfile(w http.ResponseWriter, r *http.Request) string {
	id, fresh := readProfile(r)
	if fresh {
		http.SetCookie(w, newProfileCookie(id, r.TLS != nil))
	}
	return id
}

// upgradeProfile is ensureProfile for websocket handshakes, where the
// cookie has to travel in the upgrade response header.
func upgradeProfile(r *http.Request) (string, http.Header) {
	id, fresh := readProfile(r)
	if !fresh {
		return id, nil
	}
	h := http.Header{}
	h.Add("Set-Cookie", newProfileCookie(id, r.TLS != nil).String())
	return id, h
}
