package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	goTokens "github.com/MrEthical07/goTokens"
)

type accessClaimsContextKey struct{}

// AccessClaimsFromContext returns the claims injected by [Guard].
func AccessClaimsFromContext(ctx context.Context) (*goTokens.AccessClaims, bool) {
	claims, ok := ctx.Value(accessClaimsContextKey{}).(*goTokens.AccessClaims)
	return claims, ok
}

// Guard rejects requests without a valid bearer access token. Validated
// claims land in the request context; the client IP is attached so engine
// calls further down share the rate-limit and audit dimension.
func Guard(engine *goTokens.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			tokenStr, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := goTokens.WithClientIP(r.Context(), remoteIP(r))
			claims, err := engine.ValidateAccess(ctx, tokenStr)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, accessClaimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	tokenStr := value[len(bearer):]
	if tokenStr == "" {
		return "", false
	}

	return tokenStr, true
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
