package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v4"
	"github.com/studymate/backend/config"
	"github.com/studymate/backend/pkg/errorx"
)

const (
	minKeyLength   = 64
	refreshWindow  = 10 * time.Minute
	bearerPrefix   = "Bearer "
	defaultService = time.Hour
)

// Codec issues and validates HS512 signed tokens. It keeps no state besides
// its key, so it is safe for concurrent use.
type Codec struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	serviceTTL time.Duration
	parser     *jwt.Parser

	now func() time.Time
}

func NewCodec(cfg config.AuthConfigs) (*Codec, error) {
	if cfg.TokenSecret == "" {
		return nil, errors.New("empty token secret")
	}

	if !isASCII(cfg.TokenSecret) {
		return nil, errors.New("token secret must be ASCII")
	}

	if cfg.Issuer == "" {
		return nil, errors.New("empty token issuer")
	}

	serviceTTL := cfg.ServiceToken.Expiration
	if serviceTTL <= 0 {
		serviceTTL = defaultService
	}

	return &Codec{
		key:        stretchKey(cfg.TokenSecret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessToken.Expiration,
		serviceTTL: serviceTTL,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
		now: time.Now,
	}, nil
}

// stretchKey repeats the secret until it reaches the HS512 minimum key size,
// then truncates it to exactly that size. Secrets are ASCII, so bytes and
// characters agree and keys stay compatible with already issued tokens.
func stretchKey(secret string) []byte {
	key := []byte(secret)
	for len(key) < minKeyLength {
		key = append(key, key...)
	}

	return key[:minKeyLength]
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > unicode.MaxASCII {
			return false
		}
	}

	return true
}

func (c *Codec) Issue(claims Claims, ttl time.Duration) (string, error) {
	now := c.now()
	claims.Issuer = c.issuer
	claims.IssuedAt = now
	claims.ExpiresAt = now.Add(ttl)

	t := jwt.NewWithClaims(jwt.SigningMethodHS512, toWire(claims))
	return t.SignedString(c.key)
}

func (c *Codec) IssueAccessToken(accountID, email string) (string, error) {
	return c.Issue(NewAccessClaims(accountID, email), c.accessTTL)
}

func (c *Codec) IssueAdminToken(accountID, email, role string) (string, error) {
	return c.Issue(NewAdminClaims(accountID, email, role), c.accessTTL)
}

func (c *Codec) IssueServiceToken(serviceID string) (string, error) {
	return c.Issue(NewServiceClaims(serviceID), c.serviceTTL)
}

func (c *Codec) AccessTokenTTL() time.Duration {
	return c.accessTTL
}

// Validate checks, in order, the encoding, the signature, the expiry and the
// issuer of token. Every failure is an errorx.Error with a distinct code.
func (c *Codec) Validate(token string) (Claims, error) {
	if err := checkSegments(token); err != nil {
		return Claims{}, err
	}

	var wire wireClaims
	_, err := c.parser.ParseWithClaims(token, &wire, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.key, nil
	})
	if err != nil {
		var verr *jwt.ValidationError
		if errors.As(err, &verr) && verr.Errors&jwt.ValidationErrorMalformed != 0 {
			return Claims{}, errorx.New(errorx.MalformedToken, "Malformed token")
		}
		return Claims{}, errorx.New(errorx.InvalidSignature, "Invalid token signature")
	}

	claims, err := fromWire(wire)
	if err != nil {
		return Claims{}, err
	}

	if !c.now().Before(claims.ExpiresAt) {
		return Claims{}, errorx.New(errorx.TokenExpired, "Token is expired")
	}

	if claims.Issuer != c.issuer {
		return Claims{}, errorx.New(errorx.IssuerMismatch, "Token issuer mismatch")
	}

	return claims, nil
}

// checkSegments rejects tokens whose segments are not canonical unpadded
// base64url, which the jwt parser would otherwise decode leniently.
func checkSegments(token string) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return errorx.New(errorx.MalformedToken, "Token must have three segments")
	}

	for _, p := range parts {
		if p == "" {
			return errorx.New(errorx.MalformedToken, "Token has an empty segment")
		}

		if _, err := base64.RawURLEncoding.Strict().DecodeString(p); err != nil {
			return errorx.New(errorx.MalformedToken, "Token segment is not base64url")
		}
	}

	return nil
}

func (c *Codec) AccountID(token string) (string, error) {
	claims, err := c.Validate(token)
	if err != nil {
		return "", err
	}

	return claims.AccountID, nil
}

func (c *Codec) Email(token string) (string, error) {
	claims, err := c.Validate(token)
	if err != nil {
		return "", err
	}

	return claims.Email, nil
}

// MinutesUntilExpiration returns 0 for expired or invalid tokens.
func (c *Codec) MinutesUntilExpiration(token string) int64 {
	claims, err := c.Validate(token)
	if err != nil {
		return 0
	}

	return minutesLeft(claims.ExpiresAt, c.now())
}

func minutesLeft(expiresAt, now time.Time) int64 {
	left := expiresAt.Sub(now)
	if left <= 0 {
		return 0
	}

	return int64(left / time.Minute)
}

func (c *Codec) NeedsRefresh(token string) bool {
	return c.MinutesUntilExpiration(token) <= int64(refreshWindow/time.Minute)
}

func (c *Codec) IsAdminToken(token string) bool {
	claims, err := c.Validate(token)
	return err == nil && claims.IsAdmin
}

func (c *Codec) IsServiceToken(token string) bool {
	claims, err := c.Validate(token)
	return err == nil && claims.Kind == KindService
}

type Summary struct {
	Valid                  bool
	Claims                 Claims
	MinutesUntilExpiration int64
	NeedsRefresh           bool
	Error                  string
}

// Summarize never fails; an invalid token yields Valid=false with the
// validation error message.
func (c *Codec) Summarize(token string) Summary {
	claims, err := c.Validate(token)
	if err != nil {
		return Summary{Valid: false, NeedsRefresh: true, Error: err.Error()}
	}

	minutes := minutesLeft(claims.ExpiresAt, c.now())
	return Summary{
		Valid:                  true,
		Claims:                 claims,
		MinutesUntilExpiration: minutes,
		NeedsRefresh:           minutes <= int64(refreshWindow/time.Minute),
	}
}

// ExtractBearer returns the token of an "Authorization: Bearer <token>"
// header value, or false when the header has another form.
func ExtractBearer(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}

	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}
