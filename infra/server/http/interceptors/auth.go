package interceptors

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pinboard/event-delivery-service/internal/domain/model"
	"github.com/pinboard/event-delivery-service/internal/service"
)

type contextKey string

const (
	// IdentityContextKey is the key used to store/retrieve the verified identity from context
	IdentityContextKey contextKey = "identity"

	// AccessTokenParam carries the credential when headers cannot be set (browser websockets).
	AccessTokenParam = "access_token"
)

// AuthMiddleware guards a route with bearer credential verification.
type AuthMiddleware func(http.Handler) http.Handler

// NewAuthInterceptor verifies the bearer credential before the request reaches the handler.
// Verification is bounded by timeout; a failure or timeout is answered with 401 and the wrapped
// handler never runs, so no connection state is created for an anonymous caller.
func NewAuthInterceptor(auther service.Auther, timeout time.Duration, logger *slog.Logger) AuthMiddleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// [PRE_AUTH] Validate identity before allowing the session to open
			token := Credential(r)
			if token == "" {
				logger.Debug("HANDSHAKE_REJECTED", "reason", "missing credential", "path", r.URL.Path)
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			identity, err := auther.Inspect(ctx, token)
			cancel()
			if err != nil {
				logger.Debug("HANDSHAKE_REJECTED", "err", err, "path", r.URL.Path)
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}

			// [ENRICHMENT] Inject the identity into the context for downstream handlers
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// Credential extracts the bearer token from the Authorization header or the access_token parameter.
func Credential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get(AccessTokenParam)
}

func WithIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}

// GetIdentity is a helper to extract the identity from context safely.
func GetIdentity(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(model.Identity)
	return identity, ok
}
