package entity

import "time"

// DateLayout formato del día calendario persistido en el contador.
const DateLayout = "2006-01-02"

// DailyOrderCounter cuenta los pedidos realizados en un día calendario.
// El reinicio es perezoso: al observar un día distinto el contador vale cero.
type DailyOrderCounter struct {
	Date         string `json:"date"`
	OrdersPlaced int    `json:"orders_placed"`
}

// PlacedOn devuelve los pedidos del día de t; cero si el contador pertenece a otro día.
func (c DailyOrderCounter) PlacedOn(t time.Time) int {
	if c.Date != t.Format(DateLayout) {
		return 0
	}
	return c.OrdersPlaced
}

// Normalize reinicia el contador si pertenece a un día distinto al de t.
func (c *DailyOrderCounter) Normalize(t time.Time) {
	day := t.Format(DateLayout)
	if c.Date != day {
		c.Date = day
		c.OrdersPlaced = 0
	}
}
