package homeassistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/grocy-autobuy/internal/application/ports"
	"github.com/jhoicas/grocy-autobuy/internal/domain"
	"github.com/jhoicas/grocy-autobuy/internal/domain/entity"
	"github.com/jhoicas/grocy-autobuy/pkg/config"
)

// Verificar en tiempo de compilación que Client implementa OrderChannel y Notifier.
var (
	_ ports.OrderChannel = (*Client)(nil)
	_ ports.Notifier     = (*Client)(nil)
)

// asinLength largo de un ASIN de Amazon; solo así se intenta el pedido por ASIN.
const asinLength = 10

// Client adaptador de la API REST de Home Assistant (Alexa Media Player y listas todo).
type Client struct {
	http                *resty.Client
	alexaEntityID       string
	shoppingListEntity  string
	notificationService string
	orderPhrase         string
	log                 zerolog.Logger
}

// New construye el cliente. Todas las rutas cuelgan de {url}/api con token bearer.
func New(cfg config.HomeAssistantConfig, log zerolog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")+"/api").
		SetAuthToken(cfg.Token).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)
	phrase := cfg.OrderPhrase
	if phrase == "" {
		phrase = "Bestelle"
	}
	return &Client{
		http:                httpClient,
		alexaEntityID:       cfg.AlexaEntityID,
		shoppingListEntity:  cfg.ShoppingListEntity,
		notificationService: cfg.NotificationService,
		orderPhrase:         phrase,
		log:                 log,
	}
}

// ── Llamadas HTTP ─────────────────────────────────────────────────────────────

// apiError cuerpo de error de la API REST de Home Assistant.
type apiError struct {
	Message string `json:"message"`
}

// entityState respuesta de GET /states/{entity_id}.
type entityState struct {
	EntityID string `json:"entity_id"`
	State    string `json:"state"`
}

// do ejecuta la llamada; result, si no es nil, recibe el cuerpo JSON de una respuesta exitosa.
func (c *Client) do(ctx context.Context, method, path string, body, result any) (*resty.Response, error) {
	var apiErr apiError
	req := c.http.R().SetContext(ctx).SetError(&apiErr)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result).ForceContentType("application/json")
	}
	resp, err := req.Execute(method, path)
	if err != nil && (resp == nil || resp.RawResponse == nil) {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("home assistant %s: timeout o cancelación: %w", path, ctx.Err())
		}
		return nil, fmt.Errorf("home assistant %s: conexión fallida: %w", path, err)
	}
	// Con respuesta recibida, err solo puede venir de decodificar el cuerpo.
	if err != nil && resp.IsSuccess() {
		return resp, fmt.Errorf("home assistant %s: respuesta JSON inválida: %w", path, err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return resp, fmt.Errorf("home assistant %s: token rechazado: %w", path, domain.ErrUnauthorized)
	}
	if resp.IsError() {
		msg := apiErr.Message
		if msg == "" {
			msg = resp.String()
		}
		return resp, fmt.Errorf("home assistant %s: HTTP %d: %s", path, resp.StatusCode(), msg)
	}
	return resp, nil
}

// CallService invoca POST /services/{domain}/{service}. target se agrega como "target" si no es nil.
func (c *Client) CallService(ctx context.Context, svcDomain, service string, data map[string]any, target map[string]any) error {
	payload := make(map[string]any, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	if target != nil {
		payload["target"] = target
	}
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/services/%s/%s", svcDomain, service), payload, nil)
	return err
}

// TestConnection comprueba la API con GET /api/.
func (c *Client) TestConnection(ctx context.Context) error {
	if _, err := c.do(ctx, http.MethodGet, "/", nil, nil); err != nil {
		return err
	}
	c.log.Info().Msg("conexión con Home Assistant correcta")
	return nil
}

// EntityAvailable indica si la entidad existe y no está "unavailable".
func (c *Client) EntityAvailable(ctx context.Context, entityID string) (bool, error) {
	var state entityState
	if _, err := c.do(ctx, http.MethodGet, "/states/"+entityID, nil, &state); err != nil {
		return false, err
	}
	c.log.Debug().Str("entity_id", entityID).Str("state", state.State).Msg("estado de entidad")
	return state.State != "" && state.State != "unavailable", nil
}

// AlexaEntityID entidad del dispositivo Alexa configurado.
func (c *Client) AlexaEntityID() string { return c.alexaEntityID }

// ShoppingListEntity entidad todo de la lista de compras.
func (c *Client) ShoppingListEntity() string { return c.shoppingListEntity }

// ── Canal de pedido ───────────────────────────────────────────────────────────

// AddToShoppingList agrega "{n}x {nombre}" a la lista todo de Alexa.
func (c *Client) AddToShoppingList(ctx context.Context, product entity.Product, packages int) error {
	item := entity.PurchaseAction{Product: product, Packages: packages}.Description()
	err := c.CallService(ctx, "todo", "add_item",
		map[string]any{"item": item},
		map[string]any{"entity_id": c.shoppingListEntity},
	)
	if err != nil {
		return err
	}
	c.log.Info().Str("item", item).Msg("agregado a la lista de compras de Alexa")
	return nil
}

// PlaceVoiceOrder envía el comando de voz de compra. Con un ASIN válido intenta primero
// "Bestelle ASIN X"; si falla, usa el nombre del producto.
func (c *Client) PlaceVoiceOrder(ctx context.Context, product entity.Product, packages int) error {
	var asinErr error
	asin := strings.TrimSpace(product.CatalogRef)
	if len(asin) == asinLength {
		asinErr = c.announce(ctx, fmt.Sprintf("%s ASIN %s", c.orderPhrase, asin))
		if asinErr == nil {
			c.log.Info().Str("asin", asin).Msg("pedido por ASIN enviado a Alexa")
			return nil
		}
		c.log.Warn().Err(asinErr).Str("asin", asin).Msg("pedido por ASIN fallido, se intenta por nombre")
	}

	command := fmt.Sprintf("%s %s", c.orderPhrase, product.Name)
	if packages > 1 {
		command = fmt.Sprintf("%s %d %s", c.orderPhrase, packages, product.Name)
	}
	if err := c.announce(ctx, command); err != nil {
		return errors.Join(asinErr, err)
	}
	c.log.Info().Str("command", command).Msg("pedido por voz enviado a Alexa")
	return nil
}

func (c *Client) announce(ctx context.Context, message string) error {
	return c.CallService(ctx, "notify", "alexa_media", map[string]any{
		"message": message,
		"target":  c.alexaEntityID,
		"data":    map[string]any{"type": "announce"},
	}, nil)
}

// ── Notificaciones ────────────────────────────────────────────────────────────

// Notify envía el aviso al servicio configurado ("dominio.servicio" o solo "servicio" de notify).
func (c *Client) Notify(ctx context.Context, n ports.Notification) error {
	if c.notificationService == "" {
		return nil
	}
	svcDomain, service, ok := strings.Cut(c.notificationService, ".")
	if !ok {
		svcDomain, service = "notify", c.notificationService
	}
	message := n.Message
	if n.CartURL != "" && !strings.Contains(message, n.CartURL) {
		message += "\n" + n.CartURL
	}
	return c.CallService(ctx, svcDomain, service, map[string]any{
		"title":   n.Title,
		"message": message,
	}, nil)
}
