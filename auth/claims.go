package auth

import "github.com/golang-jwt/jwt/v5"

// HorosClaims is the JWT claims structure shared across HOROS services. The
// BO issues these tokens at login; galfo only validates them and forwards
// them on media fetches. It embeds jwt.RegisteredClaims for the standard
// fields (exp, iat, ...) and adds the HOROS identity fields.
type HorosClaims struct {
	jwt.RegisteredClaims
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	Handle      string `json:"handle,omitempty"`
	Role        string `json:"role"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}
