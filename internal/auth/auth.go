// Package auth guards the admin API with HS256 bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/emeditor/get-price/internal/apierror"
	"github.com/emeditor/get-price/internal/config"
	"github.com/emeditor/get-price/internal/metrics"
)

type contextKey struct{}

// Claims are the validated token claims stored in the request context.
type Claims struct {
	jwt.RegisteredClaims
}

var errMissingToken = errors.New("missing bearer token")

// FromContext returns the claims of an authenticated admin request.
func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(contextKey{}).(*Claims)
	return c, ok
}

// Middleware returns an HTTP middleware that rejects requests without a
// valid bearer token. With cfg.Enabled false it passes everything through.
func Middleware(cfg config.AuthConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
	)
	key := []byte(cfg.JWTSecret)

	return func(next http.Handler) http.Handler {
		if !cfg.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticate(r, parser, key)
			if errors.Is(err, errMissingToken) {
				metrics.AuthFailures.WithLabelValues("missing_token").Inc()
				apierror.WriteJSON(w, r, http.StatusUnauthorized, apierror.AuthMissingToken, apierror.MsgMissingToken)
				return
			}
			if err != nil {
				logger.Warn("admin auth failure", "error", err, "path", r.URL.Path)
				metrics.AuthFailures.WithLabelValues("invalid_token").Inc()
				apierror.WriteJSON(w, r, http.StatusUnauthorized, apierror.AuthInvalidToken, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, claims)))
		})
	}
}

func authenticate(r *http.Request, parser *jwt.Parser, key []byte) (*Claims, error) {
	tokenStr, ok := extractBearerToken(r)
	if !ok {
		return nil, errMissingToken
	}

	claims := &Claims{}
	_, err := parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}

func extractBearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
