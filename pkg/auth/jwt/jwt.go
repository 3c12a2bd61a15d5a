// Package jwt authenticates HMAC-signed JSON Web Tokens presented as
// bearer tokens. Tokens are verified against a shared secret; issuer and
// audience are checked when configured.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/podexec/pkg/auth"
	"github.com/rhuss/podexec/pkg/debug"
)

// Config holds the verification settings.
type Config struct {
	// Secret is the HMAC key shared with the token issuer.
	Secret []byte

	// Issuer, when set, must equal the iss claim.
	Issuer string

	// Audience, when set, must appear in the aud claim.
	Audience string

	// UserClaim names the subject claim. Default: "sub".
	UserClaim string

	// TenantClaim names the tenant claim. Default: "tenant_id".
	TenantClaim string

	// ScopesClaim names the scopes claim, either a space-separated string
	// or an array. Default: "scope".
	ScopesClaim string

	// TierClaim names the rate-limit tier claim. Default: "tier".
	TierClaim string

	// Leeway tolerates clock skew on exp and nbf.
	Leeway time.Duration
}

func (c *Config) applyDefaults() {
	if c.UserClaim == "" {
		c.UserClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
}

// Authenticator verifies JWT bearer tokens.
type Authenticator struct {
	cfg    Config
	parser *jwtlib.Parser
}

// New creates an authenticator. The secret must not be empty.
func New(cfg Config) (*Authenticator, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("jwt: secret is required")
	}
	cfg.applyDefaults()

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwtlib.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}

	return &Authenticator{cfg: cfg, parser: jwtlib.NewParser(opts...)}, nil
}

// Authenticate abstains for requests without a bearer token and for
// bearer tokens that are not JWTs, so an API key authenticator later in
// the chain can judge them.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	token, ok := auth.BearerToken(r)
	if !ok || strings.Count(token, ".") != 2 {
		return auth.Result{Decision: auth.Abstain}
	}

	claims := jwtlib.MapClaims{}
	_, err := a.parser.ParseWithClaims(token, claims, func(*jwtlib.Token) (any, error) {
		return a.cfg.Secret, nil
	})
	if err != nil {
		debug.Log("auth", "jwt rejected", "error", err)
		return auth.Result{Decision: auth.No, Err: fmt.Errorf("invalid JWT: %w", err)}
	}

	subject := claimString(claims, a.cfg.UserClaim)
	if subject == "" {
		return auth.Result{Decision: auth.No, Err: fmt.Errorf("JWT missing %q claim", a.cfg.UserClaim)}
	}

	return auth.Result{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject: subject,
			Tenant:  claimString(claims, a.cfg.TenantClaim),
			Tier:    claimString(claims, a.cfg.TierClaim),
			Scopes:  claimScopes(claims, a.cfg.ScopesClaim),
		},
	}
}

func claimString(claims jwtlib.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

func claimScopes(claims jwtlib.MapClaims, key string) []string {
	switch v := claims[key].(type) {
	case string:
		if fields := strings.Fields(v); len(fields) > 0 {
			return fields
		}
	case []any:
		var scopes []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				scopes = append(scopes, s)
			}
		}
		return scopes
	}
	return nil
}
