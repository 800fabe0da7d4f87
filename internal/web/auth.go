package web

import (
	"net/http"

	"github.com/pquerna/otp/totp"
)

// RequireTOTP guards a handler with a time-based one-time password. The
// code comes from the X-Auth-Code header (or ?code=). An empty secret
// disables the check.
func RequireTOTP(secret string, next http.HandlerFunc) http.HandlerFunc {
	if secret == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.Header.Get("X-Auth-Code")
		if code == "" {
			code = r.URL.Query().Get("code")
		}
		if !totp.Validate(code, secret) {
			http.Error(w, `{"error":"invalid auth code"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
