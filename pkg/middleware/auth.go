package middleware

import (
	"errors"
	"strings"
	"time"

	"flyerportal/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

const (
	RoleUser    = "user"
	RoleStaff   = "staff"
	RoleService = "service"
	RoleAdmin   = "admin"

	principalKey = "principal"
)

// Principal is the authenticated caller resolved from the bearer token.
type Principal struct {
	UserID    string
	CompanyID string
	Role      string
}

type customClaims struct {
	Role      string `json:"role"`
	CompanyID string `json:"company_id,omitempty"`
}

// Authenticate verifies an HS256 bearer token and stores the Principal on the context.
func Authenticate(secret []byte, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			abortWith(c, errutil.Unauthorized("Access token required", nil))
			return
		}

		p, err := ParseToken(secret, issuer, raw)
		if err != nil {
			abortWith(c, errutil.Forbidden("Invalid or expired token", err))
			return
		}

		c.Set(principalKey, p)
		c.Next()
	}
}

// ParseToken validates signature, expiry and issuer of a compact JWT.
func ParseToken(secret []byte, issuer, raw string) (*Principal, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, err
	}

	var (
		claims jwt.Claims
		custom customClaims
	)
	if err := tok.Claims(secret, &claims, &custom); err != nil {
		return nil, err
	}

	if err := claims.ValidateWithLeeway(jwt.Expected{
		Issuer: issuer,
		Time:   time.Now(),
	}, time.Minute); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	role := custom.Role
	if role == "" {
		role = RoleUser
	}

	return &Principal{
		UserID:    claims.Subject,
		CompanyID: custom.CompanyID,
		Role:      role,
	}, nil
}

// SignToken issues a token for p. The portal only verifies tokens; this is used
// by internal tooling and tests.
func SignToken(secret []byte, issuer string, p Principal, ttl time.Duration) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", err
	}

	now := time.Now()
	return jwt.Signed(signer).
		Claims(jwt.Claims{
			Subject:  p.UserID,
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(ttl)),
		}).
		Claims(customClaims{Role: p.Role, CompanyID: p.CompanyID}).
		Serialize()
}

// GetPrincipal returns the caller set by Authenticate.
func GetPrincipal(c *gin.Context) (*Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok
}

// SetPrincipal stores p on the context; handlers mounted without Authenticate use it in tests.
func SetPrincipal(c *gin.Context, p *Principal) {
	c.Set(principalKey, p)
}

func abortWith(c *gin.Context, err error) {
	be, _ := errutil.As(err)
	c.AbortWithStatusJSON(be.Code.HTTPStatus(), be.JSON())
}
