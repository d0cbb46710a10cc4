package api

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"choreboard/domain"
)

const defaultJWKSCacheTTL = 15 * time.Minute

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

// scopeClaim names the household a token grants access to.
const scopeClaim = "scope"

// modeClaim distinguishes share tokens from full sessions.
const modeClaim = "mode"

// Auth validates incoming tokens and derives the caller's session. Full
// member sessions are RS256 tokens verified against the identity provider's
// JWKS; share-link sessions are HS256 tokens signed with the share secret
// and carry a restricted command surface.
type Auth struct {
	JWKS        *keyfunc.JWKS
	Audience    string
	Issuer      string
	ShareSecret []byte

	fullParser  *jwt.Parser
	shareParser *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth creates an Auth instance. jwks may be nil when only share tokens
// are accepted; shareSecret may be empty when share links are disabled.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string, shareSecret []byte) *Auth {
	return &Auth{
		JWKS:        jwks,
		Audience:    audience,
		Issuer:      issuer,
		ShareSecret: shareSecret,
		fullParser:  jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
		shareParser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
		keyCacheTTL: defaultJWKSCacheTTL,
	}
}

// SessionFromAuthHeader extracts the caller session from the Authorization
// header.
func (a *Auth) SessionFromAuthHeader(h string) (Session, error) {
	token, err := bearerToken(h)
	if err != nil {
		return Session{}, err
	}
	if a.ShareSecret != nil {
		if sess, err := a.shareSession(token); err == nil {
			return sess, nil
		}
	}
	return a.fullSession(token)
}

func (a *Auth) fullSession(token string) (Session, error) {
	if a.JWKS == nil {
		return Session{}, errors.New("jwks not configured")
	}
	parsed, err := a.fullParser.Parse(token, func(t *jwt.Token) (any, error) {
		return a.keyForToken(t)
	})
	if err != nil {
		return Session{}, err
	}
	claims, err := a.verifyClaims(parsed)
	if err != nil {
		return Session{}, err
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Session{}, errors.New("missing sub")
	}
	scope, ok := claims[scopeClaim].(string)
	if !ok || scope == "" {
		return Session{}, errors.New("missing scope claim")
	}
	return Session{UserID: sub, Scope: scope, Mode: domain.SessionFull}, nil
}

func (a *Auth) shareSession(token string) (Session, error) {
	parsed, err := a.shareParser.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return a.ShareSecret, nil
	})
	if err != nil {
		return Session{}, err
	}
	claims, err := a.verifyClaims(parsed)
	if err != nil {
		return Session{}, err
	}
	if mode, _ := claims[modeClaim].(string); mode != string(domain.SessionShare) {
		return Session{}, errors.New("not a share token")
	}
	scope, ok := claims[scopeClaim].(string)
	if !ok || scope == "" {
		return Session{}, errors.New("missing scope claim")
	}
	sub, _ := claims["sub"].(string)
	return Session{UserID: sub, Scope: scope, Mode: domain.SessionShare}, nil
}

func (a *Auth) verifyClaims(token *jwt.Token) (jwt.MapClaims, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return nil, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return nil, errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now, false) {
		return nil, errors.New("token used before issued")
	}
	if a.Audience != "" && !claims.VerifyAudience(a.Audience, false) {
		return nil, errors.New("invalid audience")
	}
	if a.Issuer != "" && token.Method.Alg() == "RS256" && !claims.VerifyIssuer(a.Issuer, false) {
		return nil, errors.New("invalid issuer")
	}
	return claims, nil
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}
	key, err := a.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}
	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(a.keyCacheTTL)})
	}
	return key, nil
}

func bearerToken(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errMissingAuthorization
	}
	token, ok := strings.CutPrefix(trimmed, "Bearer ")
	if !ok || token == "" {
		return "", errBadAuthorization
	}
	if strings.Count(token, ".") != 2 {
		return "", errBadAuthorization
	}
	return token, nil
}
