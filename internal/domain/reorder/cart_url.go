package reorder

import (
	"net/url"
	"strconv"
)

// DefaultCartBaseURL endpoint de Amazon que agrega un ASIN directamente al carrito.
const DefaultCartBaseURL = "https://www.amazon.de/gp/aws/cart/add.html"

// CartURL construye el enlace "agregar al carrito" para un ASIN y una cantidad.
func CartURL(baseURL, asin string, quantity int) string {
	if baseURL == "" {
		baseURL = DefaultCartBaseURL
	}
	if quantity < 1 {
		quantity = 1
	}
	q := url.Values{}
	q.Set("ASIN.1", asin)
	q.Set("Quantity.1", strconv.Itoa(quantity))
	return baseURL + "?" + q.Encode()
}
