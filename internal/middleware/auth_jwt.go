package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"charagen/internal/domain"
	"charagen/internal/i18n"
)

// TokenClaims is the HS256 payload issued to API callers. The user id is the
// registered subject.
type TokenClaims struct {
	Role   string `json:"role,omitempty"`
	Locale string `json:"locale,omitempty"`
	jwt.RegisteredClaims
}

type userKey string

const (
	userIDKey userKey = "user_id"
	roleKey   userKey = "role"
)

var errMissingSubject = errors.New("token has no subject")

func SignJWT(secret string, claims TokenClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyJWT checks the signature and expiry of an HS256 token. Tokens
// without exp are accepted.
func VerifyJWT(secret, token string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	if !parsed.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errMissingSubject
	}
	return claims, nil
}

// AuthJWT requires a valid bearer token and stores the caller's id, role and
// preferred locale on the request context. Rejections go through deny.
func AuthJWT(secret string, deny func(w http.ResponseWriter, r *http.Request)) func(http.Handler) http.Handler {
	if deny == nil {
		deny = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				deny(w, r)
				return
			}
			claims, err := VerifyJWT(secret, strings.TrimSpace(token))
			if err != nil {
				LoggerFromContext(r.Context()).Debug().Err(err).Msg("auth: token rejected")
				deny(w, r)
				return
			}
			ctx := ContextWithUserID(r.Context(), claims.Subject)
			ctx = context.WithValue(ctx, roleKey, parseRole(claims.Role))
			if claims.Locale != "" && r.Header.Get("X-Locale") == "" {
				ctx = context.WithValue(ctx, LocaleKey, i18n.Normalize(claims.Locale))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseRole(raw string) domain.UserRole {
	if strings.EqualFold(strings.TrimSpace(raw), string(domain.UserRoleAdmin)) {
		return domain.UserRoleAdmin
	}
	return domain.UserRoleUser
}

func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// RoleFromContext defaults to the unprivileged role.
func RoleFromContext(ctx context.Context) domain.UserRole {
	if v, ok := ctx.Value(roleKey).(domain.UserRole); ok {
		return v
	}
	return domain.UserRoleUser
}

func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if strings.TrimSpace(userID) == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, strings.TrimSpace(userID))
}

func ContextWithRole(ctx context.Context, role domain.UserRole) context.Context {
	return context.WithValue(ctx, roleKey, role)
}
