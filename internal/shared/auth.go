package shared

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/ledgerdesk/ledgerdesk/internal/platform/httpx"
)

// TokenAuthenticator verifies bearer tokens against a bcrypt hash.
type TokenAuthenticator struct {
	hash   []byte
	logger *slog.Logger
}

// NewTokenAuthenticator builds an authenticator. An empty hash disables checks.
func NewTokenAuthenticator(hash string, logger *slog.Logger) *TokenAuthenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenAuthenticator{hash: []byte(strings.TrimSpace(hash)), logger: logger}
}

// Enabled reports whether a token hash is configured.
func (a *TokenAuthenticator) Enabled() bool {
	return a != nil && len(a.hash) > 0
}

// Verify checks the raw token.
func (a *TokenAuthenticator) Verify(token string) error {
	if !a.Enabled() {
		return nil
	}
	if token == "" {
		return ErrMissingToken
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(token)); err != nil {
		return ErrInvalidToken
	}
	return nil
}

// Middleware rejects requests without a valid bearer token.
func (a *TokenAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r.Header.Get("Authorization"))
		if err := a.Verify(token); err != nil {
			a.logger.Warn("api token rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
			w.Header().Set("WWW-Authenticate", `Bearer realm="ledgerdesk"`)
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithAPIClient(r.Context(), "token")))
	})
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
