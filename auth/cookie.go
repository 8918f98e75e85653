package auth

import "net/http"

// TokenCookie is the cookie carrying the signed session token. The name is
// shared with the back office so one login covers both surfaces when the
// Domain attribute spans their subdomains.
const TokenCookie = "token"

// SetTokenCookie installs the session token after a successful login.
// The 24h MaxAge matches the token's own expiry, so the cookie never
// outlives a verifiable token.
func SetTokenCookie(w http.ResponseWriter, token, domain string, secure bool) {
	c := &http.Cookie{
		Name:     TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   86400,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   secure,
	}
	if domain != "" {
		c.Domain = domain
	}
	http.SetCookie(w, c)
}

// ClearTokenCookie logs the browser out. The Domain attribute must match
// the one used at login or the browser keeps the original cookie.
func ClearTokenCookie(w http.ResponseWriter, domain string) {
	c := &http.Cookie{
		Name:     TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	}
	if domain != "" {
		c.Domain = domain
	}
	http.SetCookie(w, c)
}
