package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"agrichain/crypto"
)

type AuthConfig struct {
	HMACSecret string
	Issuer     string
	Audience   string
	ClockSkew  time.Duration
}

type contextKey string

const (
	contextKeyIdentity contextKey = "gateway.identity"
	contextKeySubject  contextKey = "gateway.subject"
)

// Authenticator validates HS256 bearer tokens and injects the token subject,
// parsed as an identity, into the request context.
type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
	secret []byte
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = time.Minute
	}
	return &Authenticator{cfg: cfg, logger: logger, secret: []byte(strings.TrimSpace(cfg.HMACSecret))}
}

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			WriteError(w, http.StatusUnauthorized, "missing bearer token", "unauthenticated")
			return
		}
		subject, identity, err := a.verify(tokenString)
		if err != nil {
			a.logger.Warn("auth: token rejected", "error", err, "path", r.URL.Path)
			WriteError(w, http.StatusUnauthorized, "invalid token", "unauthenticated")
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyIdentity, identity)
		ctx = context.WithValue(ctx, contextKeySubject, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) verify(tokenString string) (string, [20]byte, error) {
	var identity [20]byte
	if len(a.secret) == 0 {
		return "", identity, errors.New("auth secret not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", identity, err
	}
	if !token.Valid {
		return "", identity, errors.New("token invalid")
	}
	identity, err = crypto.ParseIdentity(claims.Subject)
	if err != nil {
		return "", identity, err
	}
	return claims.Subject, identity, nil
}

// IssueToken signs a bearer token naming identity as its subject.
func IssueToken(cfg AuthConfig, identity [20]byte, ttl time.Duration, now time.Time) (string, error) {
	if len(strings.TrimSpace(cfg.HMACSecret)) == 0 {
		return "", errors.New("auth secret not configured")
	}
	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}
	claims := jwt.RegisteredClaims{
		Subject:   crypto.FormatIdentity(identity),
		Issuer:    cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.TrimSpace(cfg.HMACSecret)))
}

// IdentityFromContext returns the authenticated caller.
func IdentityFromContext(ctx context.Context) ([20]byte, bool) {
	identity, ok := ctx.Value(contextKeyIdentity).([20]byte)
	return identity, ok
}

// SubjectFromContext returns the raw token subject of the caller.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(contextKeySubject).(string)
	return subject
}

// WriteError writes the gateway's JSON error body.
func WriteError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}

func extractBearer(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
