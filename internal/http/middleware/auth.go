package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// userIDKey holds the authenticated admin id. The rate limiter and the
	// access log read it too.
	userIDKey = "userID"
	// AuthCookie is the cookie the dashboard stores its session token in.
	AuthCookie = "sb-auth-token"
)

var errNoToken = errors.New("missing bearer token")

// AdminID returns the admin id set by AdminAuth, or "".
func AdminID(c *gin.Context) string {
	v, _ := c.Get(userIDKey)
	return asString(v)
}

// AdminAuth admits requests carrying an HS256 token signed with secret, from
// the Authorization header or the dashboard cookie. The token subject becomes
// the admin id. An empty secret rejects everything.
func AdminAuth(secret string) gin.HandlerFunc {
	key := []byte(secret)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	return func(c *gin.Context) {
		if len(key) == 0 {
			unauthorized(c, "admin authentication is not configured")
			return
		}
		raw, err := bearerToken(c)
		if err != nil {
			unauthorized(c, err.Error())
			return
		}

		var claims jwt.RegisteredClaims
		_, err = parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err != nil {
			LoggerFrom(c).Debug().Err(err).Msg("admin token rejected")
			unauthorized(c, "invalid token")
			return
		}
		if strings.TrimSpace(claims.Subject) == "" {
			unauthorized(c, "token has no subject")
			return
		}

		c.Set(userIDKey, claims.Subject)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, error) {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, tok, found := strings.Cut(h, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tok) == "" {
			return "", errors.New("malformed Authorization header")
		}
		return strings.TrimSpace(tok), nil
	}
	if ck, err := c.Cookie(AuthCookie); err == nil && ck != "" {
		return ck, nil
	}
	return "", errNoToken
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="admin"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "unauthorized",
		"message":    msg,
		"error":      msg,
	})
}
