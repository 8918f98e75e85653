// Package account proxies session operations from the gallery front-office
// (FO) to the back-office (BO) internal auth API. The BO performs the actual
// credential validation; the proxy translates JSON responses into cookies,
// flash messages and redirects so that the user never sees the BO URL.
package account

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/galfo/auth"
	"github.com/hazyhaar/galfo/horosafe"
)

// FlashFunc records a flash message ("error" or "success") for the next page.
type FlashFunc func(w http.ResponseWriter, kind, msg string)

// Proxy calls the BO internal auth API and translates the JSON response into
// cookies + redirects on the FO domain.
type Proxy struct {
	boURL        string
	cookieDomain string // "" defaults to the request host
	secure       bool   // true for HTTPS
	logger       *slog.Logger
	client       *http.Client

	// HealthCheck is an optional callback that returns whether the BO is
	// reachable. When set and returning false, handlers fail fast instead
	// of waiting for the HTTP timeout.
	HealthCheck func() bool
}

// New creates a proxy targeting the BO base URL.
func New(boURL, cookieDomain string, secure bool) *Proxy {
	return &Proxy{
		boURL:        boURL,
		cookieDomain: cookieDomain,
		secure:       secure,
		logger:       slog.Default(),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// authResponse mirrors the JSON returned by BO /api/internal/auth/* endpoints.
type authResponse struct {
	OK       bool   `json:"ok"`
	Token    string `json:"token,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	Error    string `json:"error,omitempty"`
	Flash    string `json:"flash,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

// LoginHandler returns the handler for POST /login on the FO. It reads the
// form, calls BO /api/internal/auth/login, sets the cookie, and redirects.
func (p *Proxy) LoginHandler(setFlash FlashFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p.HealthCheck != nil && !p.HealthCheck() {
			setFlash(w, "error", "Service temporairement indisponible")
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		if err := r.ParseForm(); err != nil {
			setFlash(w, "error", "Requête invalide")
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		payload, _ := json.Marshal(map[string]string{
			"username": r.FormValue("username"),
			"password": r.FormValue("password"),
		})

		resp, err := p.callBO("/api/internal/auth/login", payload, "")
		if err != nil {
			p.logger.Error("account proxy: login call failed", "error", err)
			setFlash(w, "error", "Service temporairement indisponible")
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		if !resp.OK {
			setFlash(w, "error", resp.Error)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		// Set the cookie on the FO domain.
		auth.SetTokenCookie(w, resp.Token, p.cookieDomain, p.secure)

		if resp.Flash != "" {
			setFlash(w, "success", resp.Flash)
		}
		redirect := resp.Redirect
		if redirect == "" {
			redirect = "/gallery"
		}
		http.Redirect(w, r, redirect, http.StatusSeeOther)
	}
}

// LogoutHandler returns the handler for POST /logout. It clears the FO cookie
// and best-effort notifies the BO so the session can be revoked server-side.
func (p *Proxy) LogoutHandler(setFlash FlashFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("token"); err == nil && c.Value != "" {
			if _, err := p.callBO("/api/internal/auth/logout", []byte("{}"), c.Value); err != nil {
				p.logger.Warn("account proxy: logout notify failed", "error", err)
			}
		}

		auth.ClearTokenCookie(w, p.cookieDomain)
		setFlash(w, "success", "Vous êtes déconnecté")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}

// ChangePasswordHandler returns the handler for POST /account/password.
// The session token is forwarded so the BO can identify the user.
func (p *Proxy) ChangePasswordHandler(setFlash FlashFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p.HealthCheck != nil && !p.HealthCheck() {
			setFlash(w, "error", "Service temporairement indisponible")
			http.Redirect(w, r, "/account", http.StatusSeeOther)
			return
		}

		token, err := r.Cookie("token")
		if err != nil || token.Value == "" {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		if err := r.ParseForm(); err != nil {
			setFlash(w, "error", "Requête invalide")
			http.Redirect(w, r, "/account", http.StatusSeeOther)
			return
		}

		newPassword := r.FormValue("new_password")
		if newPassword != r.FormValue("new_password_confirm") {
			setFlash(w, "error", "Les mots de passe ne correspondent pas")
			http.Redirect(w, r, "/account", http.StatusSeeOther)
			return
		}

		payload, _ := json.Marshal(map[string]string{
			"current_password": r.FormValue("current_password"),
			"new_password":     newPassword,
		})

		resp, err := p.callBO("/api/internal/auth/change-password", payload, token.Value)
		if err != nil {
			p.logger.Error("account proxy: change-password call failed", "error", err)
			setFlash(w, "error", "Service temporairement indisponible")
			http.Redirect(w, r, "/account", http.StatusSeeOther)
			return
		}

		if !resp.OK {
			setFlash(w, "error", resp.Error)
			http.Redirect(w, r, "/account", http.StatusSeeOther)
			return
		}

		if resp.Flash != "" {
			setFlash(w, "success", resp.Flash)
		} else {
			setFlash(w, "success", "Mot de passe mis à jour")
		}
		http.Redirect(w, r, "/account", http.StatusSeeOther)
	}
}

// callBO sends a JSON POST to the BO internal API and decodes the response.
// A non-empty token is forwarded as the session cookie.
func (p *Proxy) callBO(path string, body []byte, token string) (*authResponse, error) {
	req, err := http.NewRequest(http.MethodPost, p.boURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "token", Value: token})
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call BO %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := horosafe.LimitedReadAll(resp.Body, 64*1024)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var ar authResponse
	if err := json.Unmarshal(data, &ar); err != nil {
		preview := string(data)
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return nil, fmt.Errorf("decode response: %w (body: %s)", err, preview)
	}
	return &ar, nil
}
