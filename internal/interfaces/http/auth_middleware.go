package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/grocy-autobuy/internal/application/dto"
	"github.com/jhoicas/grocy-autobuy/pkg/jwt"
)

// Locals keys para subject y scope en Fiber.
const (
	LocalSubject = "subject"
	LocalScope   = "scope"
)

// AuthMiddleware valida el Bearer Token JWT y extrae subject y scope a c.Locals.
func AuthMiddleware(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "MISSING_TOKEN", Message: "Authorization header requerido"})
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "INVALID_TOKEN", Message: "formato: Bearer <token>"})
		}
		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "MISSING_TOKEN", Message: "token vacío"})
		}
		subject, scope, err := jwt.Parse(jwtSecret, tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "INVALID_TOKEN", Message: "token inválido o expirado"})
		}
		c.Locals(LocalSubject, subject)
		c.Locals(LocalScope, scope)
		return c.Next()
	}
}

// RequireScope exige que el token tenga alguno de los scopes indicados; admin los cubre todos.
// Debe usarse DESPUÉS de AuthMiddleware.
func RequireScope(allowed ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope := GetScope(c)
		if scope == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "MISSING_SCOPE", Message: "el token no incluye scope"})
		}
		if scope == jwt.ScopeAdmin {
			return c.Next()
		}
		for _, s := range allowed {
			if s == scope {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "scope insuficiente"})
	}
}

// GetSubject devuelve el subject del contexto (después del middleware de auth).
func GetSubject(c *fiber.Ctx) string {
	s, _ := c.Locals(LocalSubject).(string)
	return s
}

// GetScope devuelve el scope del contexto (después del middleware de auth).
func GetScope(c *fiber.Ctx) string {
	s, _ := c.Locals(LocalScope).(string)
	return s
}
