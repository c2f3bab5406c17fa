package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/grocy-autobuy/pkg/jwt"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Status    StatusReader
	Trigger   CycleTrigger
	JWTSecret string // vacío = API sin autenticación
	Version   string
	Log       zerolog.Logger
}

// Router registra las rutas de la API de control.
func Router(app *fiber.App, deps RouterDeps) {
	started := time.Now()
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"version": deps.Version,
			"uptime":  time.Since(started).Round(time.Second).String(),
		})
	})

	read, admin := noop, noop
	var auth []fiber.Handler
	if deps.JWTSecret != "" {
		auth = append(auth, AuthMiddleware(deps.JWTSecret))
		read = RequireScope(jwt.ScopeRead)
		admin = RequireScope(jwt.ScopeAdmin)
	}

	h := NewReorderHandler(deps.Status, deps.Trigger, deps.Log)
	group := app.Group("/api/reorder", auth...)
	group.Get("/status", read, h.Status)
	group.Get("/pending", read, h.Pending)
	group.Get("/history", read, h.History)
	group.Delete("/pending/:productId", admin, h.ClearPending)
	group.Post("/run", admin, h.Run)
}

func noop(c *fiber.Ctx) error { return c.Next() }
