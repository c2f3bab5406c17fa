package grocy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/grocy-autobuy/internal/application/ports"
	"github.com/jhoicas/grocy-autobuy/internal/domain"
	"github.com/jhoicas/grocy-autobuy/internal/domain/entity"
	"github.com/jhoicas/grocy-autobuy/pkg/config"
)

// Verificar en tiempo de compilación que Client implementa InventoryProvider.
var _ ports.InventoryProvider = (*Client)(nil)

const defaultQuantityUnit = "Stück"

// Client adaptador de la API REST de Grocy.
type Client struct {
	http            *resty.Client
	asinField       string
	orderUnitsField string
	log             zerolog.Logger
}

// New construye el cliente. Todas las rutas cuelgan de {url}/api.
func New(cfg config.GrocyConfig, log zerolog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")+"/api").
		SetHeader("GROCY-API-KEY", cfg.APIKey).
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.Timeout)
	return &Client{
		http:            httpClient,
		asinField:       cfg.ASINField,
		orderUnitsField: cfg.OrderUnitsField,
		log:             log,
	}
}

// ── Estructuras del protocolo Grocy ───────────────────────────────────────────

// flexID acepta IDs numéricos o en texto (Grocy cambió el tipo entre versiones).
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	*f = flexID(s)
	return nil
}

type productInfo struct {
	ID             flexID          `json:"id"`
	Name           string          `json:"name"`
	MinStockAmount decimal.Decimal `json:"min_stock_amount"`
	QuIDStock      flexID          `json:"qu_id_stock"`
}

type stockEntry struct {
	ProductID flexID          `json:"product_id"`
	Amount    decimal.Decimal `json:"amount"`
	Product   productInfo     `json:"product"`
}

type volatileStock struct {
	MissingProducts []struct {
		ID            flexID          `json:"id"`
		Name          string          `json:"name"`
		AmountMissing decimal.Decimal `json:"amount_missing"`
	} `json:"missing_products"`
}

type productDetails struct {
	Product           productInfo     `json:"product"`
	StockAmount       decimal.Decimal `json:"stock_amount"`
	QuantityUnitStock *struct {
		Name string `json:"name"`
	} `json:"quantity_unit_stock"`
}

type quantityUnit struct {
	ID   flexID `json:"id"`
	Name string `json:"name"`
}

// ── Llamadas HTTP ─────────────────────────────────────────────────────────────

func (c *Client) get(ctx context.Context, path string, out any) error {
	resp, err := c.http.R().SetContext(ctx).Get(path)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("grocy %s: timeout o cancelación: %w", path, ctx.Err())
		}
		return fmt.Errorf("grocy %s: conexión fallida: %w", path, err)
	}
	switch resp.StatusCode() {
	case http.StatusNotFound:
		return fmt.Errorf("grocy %s: %w", path, domain.ErrNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("grocy %s: API key rechazada: %w", path, domain.ErrUnauthorized)
	}
	if resp.IsError() {
		return fmt.Errorf("grocy %s: HTTP %d: %s", path, resp.StatusCode(), truncate(resp.String(), 200))
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("grocy %s: respuesta JSON inválida: %w", path, err)
	}
	return nil
}

// TestConnection comprueba la API con /system/info.
func (c *Client) TestConnection(ctx context.Context) error {
	var info map[string]any
	if err := c.get(ctx, "/system/info", &info); err != nil {
		return err
	}
	c.log.Info().Msg("conexión con Grocy correcta")
	return nil
}

// ListUnderstockedProducts devuelve los productos con stock bajo el mínimo, en el orden de /stock,
// seguidos de los productos sin existencias que Grocy reporta como faltantes.
func (c *Client) ListUnderstockedProducts(ctx context.Context) ([]entity.Product, error) {
	var stock []stockEntry
	if err := c.get(ctx, "/stock", &stock); err != nil {
		return nil, err
	}
	units, err := c.quantityUnits(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("no se pudieron leer las unidades de medida; se usa la unidad por defecto")
		units = map[string]string{}
	}

	seen := make(map[string]struct{}, len(stock))
	var out []entity.Product
	for _, item := range stock {
		id := string(item.Product.ID)
		if id == "" {
			id = string(item.ProductID)
		}
		if id == "" {
			continue
		}
		seen[id] = struct{}{}
		min := item.Product.MinStockAmount
		if !min.IsPositive() || !item.Amount.LessThan(min) {
			continue
		}
		out = append(out, c.toProduct(ctx, id, item.Product, item.Amount, units[string(item.Product.QuIDStock)]))
	}

	// /stock no incluye productos con existencia cero.
	var volatile volatileStock
	if err := c.get(ctx, "/stock/volatile", &volatile); err != nil {
		c.log.Warn().Err(err).Msg("no se pudo leer /stock/volatile; se omiten productos sin existencias")
		return out, nil
	}
	for _, missing := range volatile.MissingProducts {
		id := string(missing.ID)
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		p, err := c.GetProduct(ctx, id)
		if err != nil {
			c.log.Warn().Err(err).Str("product_id", id).Msg("producto faltante no consultable")
			continue
		}
		if p.IsUnderstocked() {
			out = append(out, *p)
		}
	}

	c.log.Debug().Int("entries", len(stock)).Int("understocked", len(out)).Msg("stock de Grocy procesado")
	return out, nil
}

// GetProduct devuelve el estado actual de un producto; domain.ErrNotFound si Grocy no lo conoce.
func (c *Client) GetProduct(ctx context.Context, productID string) (*entity.Product, error) {
	var details productDetails
	if err := c.get(ctx, "/stock/products/"+productID, &details); err != nil {
		return nil, err
	}
	unit := ""
	if details.QuantityUnitStock != nil {
		unit = details.QuantityUnitStock.Name
	}
	p := c.toProduct(ctx, productID, details.Product, details.StockAmount, unit)
	return &p, nil
}

func (c *Client) toProduct(ctx context.Context, id string, info productInfo, amount decimal.Decimal, unit string) entity.Product {
	fields, fieldsErr := c.userfields(ctx, id)
	if fieldsErr != nil {
		c.log.Warn().Err(fieldsErr).Str("product_id", id).Msg("userfields no disponibles")
	}
	name := info.Name
	if name == "" {
		name = "Producto " + id
	}
	if unit == "" {
		unit = defaultQuantityUnit
	}
	p := entity.Product{
		ID:           id,
		Name:         name,
		CurrentStock: amount,
		MinimumStock: info.MinStockAmount,
		CatalogRef:   strings.TrimSpace(fields[c.asinField]),
		PackageSize:  parseUnits(fields[c.orderUnitsField]),
		QuantityUnit: unit,
	}
	if fieldsErr != nil {
		p.DetailsErr = fieldsErr.Error()
	}
	return p
}

// userfields devuelve los campos personalizados del producto como texto.
func (c *Client) userfields(ctx context.Context, productID string) (map[string]string, error) {
	var raw map[string]any
	if err := c.get(ctx, "/userfields/products/"+productID, &raw); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return map[string]string{}, nil
		}
		return map[string]string{}, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		}
	}
	return out, nil
}

func (c *Client) quantityUnits(ctx context.Context) (map[string]string, error) {
	var units []quantityUnit
	if err := c.get(ctx, "/objects/quantity_units", &units); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(units))
	for _, u := range units {
		out[string(u.ID)] = u.Name
	}
	return out, nil
}

// parseUnits interpreta el userfield de unidades por paquete; valores inválidos valen 1.
func parseUnits(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 1
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return n
	}
	if d, err := decimal.NewFromString(raw); err == nil {
		if n := int(d.IntPart()); n > 0 {
			return n
		}
	}
	return 1
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
