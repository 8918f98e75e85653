package shield

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

const flashCookie = "flash"

// Flash consumes the flash cookie set by a previous redirect. The value
// carries a "success:" or "error:" prefix; anything unprefixed is treated
// as an error. The parsed FlashMessage lands in the context under FlashKey
// and the cookie is expired so the message shows exactly once.
func Flash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(flashCookie)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		http.SetCookie(w, &http.Cookie{Name: flashCookie, MaxAge: -1, Path: "/"})

		raw, _ := url.QueryUnescape(cookie.Value)
		flash := &FlashMessage{Type: "error", Message: raw}
		if kind, msg, ok := strings.Cut(raw, ":"); ok && (kind == "success" || kind == "error") {
			flash.Type = kind
			flash.Message = msg
		}

		ctx := context.WithValue(r.Context(), FlashKey, flash)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetFlash queues a one-shot message for the next page render.
// flashType must be "success" or "error". The cookie lives 10 seconds,
// long enough to survive the redirect that follows a form POST.
func SetFlash(w http.ResponseWriter, flashType, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(flashType + ":" + message),
		Path:     "/",
		MaxAge:   10,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
