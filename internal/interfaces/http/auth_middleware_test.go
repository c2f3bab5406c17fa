package http_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apphttp "github.com/jhoicas/grocy-autobuy/internal/interfaces/http"
	pkgjwt "github.com/jhoicas/grocy-autobuy/pkg/jwt"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

const (
	testJWTSecret = "test-secret-key-for-unit-tests"
	testSubject   = "home-dashboard"
	testIssuer    = "grocy-autobuy-test"
	testExpMin    = 60
)

// buildTestApp construye una aplicación Fiber mínima con:
//   - AuthMiddleware para parsear el JWT y cargar locals
//   - RequireScope para autorizar el acceso
//   - Un handler dummy que devuelve 200 si pasa los middlewares
func buildTestApp(allowed ...string) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})
	app.Get("/protected",
		apphttp.AuthMiddleware(testJWTSecret),
		apphttp.RequireScope(allowed...),
		func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{
				"ok":    true,
				"scope": apphttp.GetScope(c),
			})
		},
	)
	return app
}

// tokenForScope genera un JWT con el scope indicado.
func tokenForScope(t *testing.T, scope string) string {
	t.Helper()
	tok, err := pkgjwt.Generate(testJWTSecret, testSubject, scope, testIssuer, testExpMin)
	require.NoError(t, err, "debe generarse un token JWT válido")
	return "Bearer " + tok
}

// doRequest lanza una petición GET /protected y devuelve la respuesta.
func doRequest(t *testing.T, app *fiber.App, authHeader string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests RequireScope
// ──────────────────────────────────────────────────────────────────────────────

func TestRequireScope_LecturaAccedeRutaDeLectura(t *testing.T) {
	app := buildTestApp(pkgjwt.ScopeRead)
	resp := doRequest(t, app, tokenForScope(t, pkgjwt.ScopeRead))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "read", body["scope"])
}

func TestRequireScope_AdminCubreTodo(t *testing.T) {
	app := buildTestApp(pkgjwt.ScopeRead)
	resp := doRequest(t, app, tokenForScope(t, pkgjwt.ScopeAdmin))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode, "admin debe acceder a rutas de lectura")
}

func TestRequireScope_LecturaBloqueadaEnRutaAdmin(t *testing.T) {
	app := buildTestApp(pkgjwt.ScopeAdmin)
	resp := doRequest(t, app, tokenForScope(t, pkgjwt.ScopeRead))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "FORBIDDEN")
}

func TestRequireScope_TokenSinScope_Retorna401(t *testing.T) {
	app := buildTestApp(pkgjwt.ScopeRead)
	resp := doRequest(t, app, tokenForScope(t, ""))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "MISSING_SCOPE")
}

func TestRequireScope_SinAuthHeader_Retorna401(t *testing.T) {
	app := buildTestApp(pkgjwt.ScopeRead)
	resp := doRequest(t, app, "")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "MISSING_TOKEN")
}

func TestRequireScope_TokenInvalido_Retorna401(t *testing.T) {
	app := buildTestApp(pkgjwt.ScopeRead)
	resp := doRequest(t, app, "Bearer token.invalido.aqui")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "INVALID_TOKEN")
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests JWT pkg
// ──────────────────────────────────────────────────────────────────────────────

func TestJWT_GenerateAndParse(t *testing.T) {
	tok, err := pkgjwt.Generate(testJWTSecret, testSubject, pkgjwt.ScopeAdmin, testIssuer, testExpMin)
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	subject, scope, err := pkgjwt.Parse(testJWTSecret, tok)
	require.NoError(t, err)
	assert.Equal(t, testSubject, subject)
	assert.Equal(t, pkgjwt.ScopeAdmin, scope)
}

func TestJWT_TokenExpirado_RetornaError(t *testing.T) {
	tok, err := pkgjwt.Generate(testJWTSecret, testSubject, pkgjwt.ScopeRead, testIssuer, -1)
	require.NoError(t, err)

	_, _, err = pkgjwt.Parse(testJWTSecret, tok)
	assert.Error(t, err, "token expirado debe retornar error")
}

func TestJWT_SecretIncorrecto_RetornaError(t *testing.T) {
	tok, err := pkgjwt.Generate(testJWTSecret, testSubject, pkgjwt.ScopeRead, testIssuer, testExpMin)
	require.NoError(t, err)

	_, _, err = pkgjwt.Parse("otro-secret-completamente-distinto", tok)
	assert.Error(t, err, "secret incorrecto debe invalidar el token")
}
