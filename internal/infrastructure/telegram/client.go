package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/grocy-autobuy/internal/application/ports"
	"github.com/jhoicas/grocy-autobuy/pkg/config"
)

// Verificar en tiempo de compilación que Client implementa Notifier.
var _ ports.Notifier = (*Client)(nil)

// Client notificador vía Bot API de Telegram (mensajes HTML con enlaces clicables).
type Client struct {
	http   *resty.Client
	chatID string
	log    zerolog.Logger
}

// New construye el cliente. La URL base queda como {base}/bot{token}.
func New(cfg config.TelegramConfig, log zerolog.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	return &Client{
		http: resty.New().
			SetBaseURL(base + "/bot" + cfg.BotToken).
			SetTimeout(cfg.Timeout),
		chatID: cfg.ChatID,
		log:    log,
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// call invoca un método de la Bot API. result, si no es nil, recibe el campo "result" de la respuesta.
func (c *Client) call(ctx context.Context, method string, body, result any) error {
	var ok, fail apiResponse
	req := c.http.R().
		SetContext(ctx).
		SetResult(&ok).
		SetError(&fail).
		ForceContentType("application/json")
	var (
		resp *resty.Response
		err  error
	)
	if body != nil {
		resp, err = req.SetBody(body).Post("/" + method)
	} else {
		resp, err = req.Get("/" + method)
	}
	if err != nil && (resp == nil || resp.RawResponse == nil || resp.IsSuccess()) {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	if resp.IsError() {
		if fail.Description != "" {
			return fmt.Errorf("telegram %s: HTTP %d: %s", method, resp.StatusCode(), fail.Description)
		}
		return fmt.Errorf("telegram %s: HTTP %d", method, resp.StatusCode())
	}
	if !ok.OK {
		return fmt.Errorf("telegram %s: %s", method, ok.Description)
	}
	if result != nil && len(ok.Result) > 0 {
		if err := json.Unmarshal(ok.Result, result); err != nil {
			return fmt.Errorf("telegram %s: resultado inválido: %w", method, err)
		}
	}
	return nil
}

// SendMessage envía texto HTML al chat configurado.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	err := c.call(ctx, "sendMessage", map[string]any{
		"chat_id":                  c.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": false,
	}, nil)
	if err != nil {
		return err
	}
	c.log.Debug().Msg("mensaje de Telegram enviado")
	return nil
}

// Notify formatea el aviso en HTML. Los avisos de pedido incluyen el enlace al carrito.
func (c *Client) Notify(ctx context.Context, n ports.Notification) error {
	return c.SendMessage(ctx, FormatNotification(n))
}

// FormatNotification arma el mensaje HTML de un aviso.
func FormatNotification(n ports.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n\n", html.EscapeString(n.Title))
	if a := n.Action; a != nil && n.Kind != ports.NotifyOrderFailed {
		p := a.Product
		fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(p.Name))
		fmt.Fprintf(&b, "Cantidad: %dx\n", a.Packages)
		if p.CatalogRef != "" {
			fmt.Fprintf(&b, "ASIN: <code>%s</code>\n", html.EscapeString(p.CatalogRef))
		}
		fmt.Fprintf(&b, "\n📊 Stock: %s/%s %s", p.CurrentStock, p.MinimumStock, html.EscapeString(p.QuantityUnit))
		if n.CartURL != "" {
			fmt.Fprintf(&b, "\n\n👉 <a href=\"%s\">Agregar al carrito</a>", html.EscapeString(n.CartURL))
		}
		return b.String()
	}
	b.WriteString(html.EscapeString(n.Message))
	return b.String()
}

// TestConnection valida el token con getMe.
func (c *Client) TestConnection(ctx context.Context) error {
	var bot struct {
		Username string `json:"username"`
	}
	if err := c.call(ctx, "getMe", nil, &bot); err != nil {
		return err
	}
	c.log.Info().Str("bot", bot.Username).Msg("conexión con Telegram correcta")
	return nil
}
