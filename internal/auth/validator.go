// Package auth validates the identity behind an incoming signaling session
// according to the configured auth.type (NONE, XMPP, JWT).
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jitsi/jicofo/internal/logging"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Identity is the authenticated principal behind a signaling session,
// independent of which validator produced it.
type Identity struct {
	Subject string
	Name    string
	Email   string
	Scope   string
	// Moderator is true when the token/XMPP affiliation grants moderator
	// rights irrespective of conference.enable-auto-owner.
	Moderator bool
}

// Validator authenticates a bearer token presented at session-initiate time.
type Validator interface {
	ValidateToken(ctx context.Context, tokenString string) (*Identity, error)
}

// CustomClaims are the JWT claims jicofo understands beyond the registered
// set: scope drives moderator rights, name/email are surfaced for display.
type CustomClaims struct {
	Scope     string `json:"scope"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Moderator bool   `json:"moderator,omitempty"`
	jwt.RegisteredClaims
}

// JWTValidator validates tokens against a JWKS endpoint, used when
// auth.type=JWT.
type JWTValidator struct {
	keyFunc  jwt.Keyfunc
	issuer   string
	audience []string
}

// NewJWTValidator builds a Validator backed by the JWKS exposed at
// https://domain/.well-known/jwks.json, refreshed on an hourly schedule.
func NewJWTValidator(ctx context.Context, domain, audience string, regOpts ...jwk.RegisterOption) (*JWTValidator, error) {
	issuerURL, err := url.Parse("https://" + domain + "/")
	if err != nil {
		return nil, fmt.Errorf("failed to parse issuer URL: %w", err)
	}

	jwksURL := issuerURL.JoinPath(".well-known/jwks.json").String()

	cache := jwk.NewCache(ctx)

	opts := []jwk.RegisterOption{jwk.WithRefreshInterval(1 * time.Hour)}
	opts = append(opts, regOpts...)

	if err := cache.Register(jwksURL, opts...); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL in cache: %w", err)
	}

	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("failed to fetch initial JWKS: %w", err)
	}

	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Method.Alg())
		}

		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("kid header not found")
		}

		keys, err := cache.Get(ctx, jwksURL)
		if err != nil {
			return nil, fmt.Errorf("failed to get keys from cache: %w", err)
		}

		key, found := keys.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("key with kid %s not found", kid)
		}

		var pubKey interface{}
		if err := key.Raw(&pubKey); err != nil {
			return nil, fmt.Errorf("failed to get raw public key: %w", err)
		}

		return pubKey, nil
	}

	return &JWTValidator{
		keyFunc:  keyFunc,
		issuer:   issuerURL.String(),
		audience: []string{audience},
	}, nil
}

// ValidateToken parses and validates a JWT, returning the identity behind it.
func (v *JWTValidator) ValidateToken(_ context.Context, tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, v.keyFunc,
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience[0]),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("token is invalid")
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok {
		return nil, errors.New("failed to cast claims to CustomClaims")
	}

	return &Identity{
		Subject:   claims.Subject,
		Name:      claims.Name,
		Email:     claims.Email,
		Scope:     claims.Scope,
		Moderator: claims.Moderator,
	}, nil
}

// NoneValidator accepts any session with no identity checks, used when
// auth.type=NONE. The token string, if present, is taken as the subject.
type NoneValidator struct{}

func (NoneValidator) ValidateToken(_ context.Context, tokenString string) (*Identity, error) {
	subject := tokenString
	if subject == "" {
		subject = "anonymous"
	}
	return &Identity{Subject: subject}, nil
}

// XMPPValidator trusts the identity already established by the XMPP layer
// (the client authenticated to the transport before reaching jicofo); it
// only asserts the resource it is handed isn't empty. The lower-layer
// stanza framing and SASL exchange are out of scope for this module.
type XMPPValidator struct{}

func (XMPPValidator) ValidateToken(_ context.Context, resource string) (*Identity, error) {
	if resource == "" {
		return nil, errors.New("empty XMPP resource")
	}
	return &Identity{Subject: resource}, nil
}

// LogFallback logs a warning when falling back to a permissive validator;
// kept as a named helper so cmd/jicofo can report it once at startup.
func LogFallback(ctx context.Context, authType string) {
	logging.Warn(ctx, fmt.Sprintf("auth.type=%s: sessions are not cryptographically authenticated", authType))
}
