package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/meravakil/meravakil-backend/internal/platform/apierr"
)

// Claims is what the API needs from a verified session token.
type Claims struct {
	Subject         string
	SessionID       string
	AuthorizedParty string
	ExpiresAt       time.Time
}

type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

type VerifierConfig struct {
	// Issuer is the Clerk frontend API URL, e.g. https://clerk.example.com.
	Issuer string
	// JWKSURL defaults to Issuer + "/.well-known/jwks.json".
	JWKSURL           string
	AuthorizedParties []string
	Leeway            time.Duration
	JWKSTTL           time.Duration
	HTTPClient        *http.Client
}

type sessionVerifier struct {
	cfg  VerifierConfig
	jwks *jwksCache
}

func NewVerifier(cfg VerifierConfig) (Verifier, error) {
	cfg.Issuer = strings.TrimRight(strings.TrimSpace(cfg.Issuer), "/")
	cfg.JWKSURL = strings.TrimSpace(cfg.JWKSURL)
	if cfg.JWKSURL == "" {
		if cfg.Issuer == "" {
			return nil, fmt.Errorf("CLERK_ISSUER or CLERK_JWKS_URL is required")
		}
		cfg.JWKSURL = cfg.Issuer + "/.well-known/jwks.json"
	}
	if cfg.Leeway <= 0 {
		cfg.Leeway = 5 * time.Second
	}
	if cfg.JWKSTTL <= 0 {
		cfg.JWKSTTL = 6 * time.Hour
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &sessionVerifier{
		cfg:  cfg,
		jwks: newJWKSCache(cfg.HTTPClient, cfg.JWKSURL, cfg.JWKSTTL),
	}, nil
}

type sessionClaims struct {
	SessionID       string `json:"sid"`
	AuthorizedParty string `json:"azp"`
	jwt.RegisteredClaims
}

func (v *sessionVerifier) Verify(ctx context.Context, token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty session token", apierr.ErrUnauthorized)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}

	var sc sessionClaims
	tok, err := jwt.NewParser(opts...).ParseWithClaims(token, &sc, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("missing kid")
		}
		return v.jwks.getKey(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: invalid session token: %v", apierr.ErrUnauthorized, err)
	}
	if tok == nil || !tok.Valid {
		return nil, fmt.Errorf("%w: invalid session token", apierr.ErrUnauthorized)
	}
	if strings.TrimSpace(sc.Subject) == "" {
		return nil, fmt.Errorf("%w: missing sub", apierr.ErrUnauthorized)
	}
	if len(v.cfg.AuthorizedParties) > 0 && !slices.Contains(v.cfg.AuthorizedParties, sc.AuthorizedParty) {
		return nil, fmt.Errorf("%w: azp %q not authorized", apierr.ErrUnauthorized, sc.AuthorizedParty)
	}

	out := &Claims{
		Subject:         sc.Subject,
		SessionID:       sc.SessionID,
		AuthorizedParty: sc.AuthorizedParty,
	}
	if sc.ExpiresAt != nil {
		out.ExpiresAt = sc.ExpiresAt.Time
	}
	return out, nil
}
