package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"formative-compliance/internal/infra/logging"
)

// ===== Bearer JWT primitives =====

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
)

type AuthConfig struct {
	HMACSecret []byte
	Issuer     string
	Audience   string
	TTL        time.Duration
}

type AuthManager struct {
	cfg AuthConfig
	now func() time.Time
}

func NewAuthManager(secret, issuer, audience string, ttl time.Duration) *AuthManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AuthManager{
		cfg: AuthConfig{
			HMACSecret: []byte(secret),
			Issuer:     issuer,   // "" skips the iss check
			Audience:   audience, // "" skips the aud check
			TTL:        ttl,
		},
		now: time.Now,
	}
}

// UserClaims are issued by the identity provider; Subject carries the user id.
type UserClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Mint signs a token for userID. The API only verifies tokens; Mint exists for tooling and tests.
func (a *AuthManager) Mint(userID, email string) (string, error) {
	now := a.now()
	claims := UserClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.TTL)),
			Subject:   userID,
			Issuer:    a.cfg.Issuer,
		},
	}
	if a.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{a.cfg.Audience}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.cfg.HMACSecret)
}

func (a *AuthManager) ParseFromRequest(r *http.Request) (*UserClaims, error) {
	// Authorization: Bearer <jwt>
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return nil, errMissingToken
	}
	scheme, tok, ok := strings.Cut(hdr, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(tok) == "" {
		return nil, errInvalidToken
	}
	return a.parse(strings.TrimSpace(tok))
}

func (a *AuthManager) parse(tok string) (*UserClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}

	claims := &UserClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.cfg.HMACSecret, nil
	}, opts...)
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

// RequireUser rejects requests without a valid bearer token and stores the user id in the
// request context.
func (a *AuthManager) RequireUser(logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := a.ParseFromRequest(r)
			if err != nil {
				l := logging.With(r.Context(), logger)
				l.Debug().Err(err).Str("path", r.URL.Path).Msg("unauthenticated request")
				writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			ctx := logging.WithUserID(r.Context(), claims.Subject)
			ctx = withEmail(ctx, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
