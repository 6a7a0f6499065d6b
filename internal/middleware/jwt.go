package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/canvas-sync/internal/utils"
)

// JWTProtected returns a middleware that validates HMAC-signed bearer tokens. An empty secret
// disables the check, which is the single-user local deployment.
func JWTProtected(secret string) fiber.Handler {
	if strings.TrimSpace(secret) == "" {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	return func(c *fiber.Ctx) error {
		tokenString, err := bearerToken(c)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token claims")
		}

		if subject := subjectFromClaims(claims); subject != "" {
			c.Locals("user_id", subject)
		}

		return c.Next()
	}
}

// bearerToken reads the token from the Authorization header, falling back to the access_token query
// parameter because browsers cannot set headers on EventSource and WebSocket requests.
func bearerToken(c *fiber.Ctx) (string, error) {
	authorization := c.Get("Authorization")
	if authorization == "" {
		if token := strings.TrimSpace(c.Query("access_token")); token != "" {
			return token, nil
		}
		return "", fmt.Errorf("authorization header missing")
	}

	const bearer = "Bearer "
	if !strings.HasPrefix(strings.ToLower(authorization), strings.ToLower(bearer)) {
		return "", fmt.Errorf("invalid authorization header")
	}

	token := strings.TrimSpace(authorization[len(bearer):])
	if token == "" {
		return "", fmt.Errorf("invalid token")
	}
	return token, nil
}

func subjectFromClaims(claims jwt.MapClaims) string {
	for _, key := range []string{"sub", "user_id", "id"} {
		switch v := claims[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		case float64:
			if v >= 0 {
				return fmt.Sprintf("%.0f", v)
			}
		}
	}
	return ""
}
