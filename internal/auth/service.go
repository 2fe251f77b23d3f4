package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jw6ventures/cyclecal/internal/config"
	httperrors "github.com/jw6ventures/cyclecal/internal/http/errors"
)

// ErrInvalidToken covers every reason a bearer token is rejected.
var ErrInvalidToken = errors.New("invalid token")

// UserEnsurer records first-seen users.
type UserEnsurer interface {
	Ensure(ctx context.Context, id string) error
}

// Service validates bearer tokens issued by the identity provider. Login
// itself happens elsewhere; this service only identifies the caller.
type Service struct {
	secret []byte
	issuer string
	users  UserEnsurer
	now    func() time.Time
}

func NewService(cfg *config.Config, users UserEnsurer) *Service {
	return &Service{
		secret: []byte(cfg.Auth.JWTSecret),
		issuer: cfg.Auth.Issuer,
		users:  users,
		now:    time.Now,
	}
}

// Authenticate parses an HS256 token and returns its subject.
func (s *Service) Authenticate(token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// IssueToken signs a token for userID. Used by tooling and tests; production
// tokens come from the identity provider sharing the secret.
func (s *Service) IssueToken(userID string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// RequireBearer rejects requests without a valid bearer token and stores the
// caller's id on the request context.
func (s *Service) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="cyclecal"`)
			httperrors.WriteError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		userID, err := s.Authenticate(strings.TrimSpace(token))
		if err != nil {
			httperrors.LogWarn(r, "rejected bearer token", err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="cyclecal", error="invalid_token"`)
			httperrors.WriteError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		if s.users != nil {
			if err := s.users.Ensure(r.Context(), userID); err != nil {
				httperrors.InternalError(w, r, err, "failed to record user")
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}
