package entity

import "time"

// MaxOrderHistory cantidad de ejecuciones que conserva el historial.
const MaxOrderHistory = 100

// LedgerState es el documento persistido completo: entregas pendientes por producto,
// contador diario e historial reciente. Se lee y escribe entero en cada operación.
type LedgerState struct {
	PendingDeliveries map[string]PendingDelivery `json:"pending_deliveries"`
	DailyCounter      DailyOrderCounter          `json:"daily_counter"`
	Orders            []OrderRecord              `json:"orders"`
	LastUpdated       time.Time                  `json:"last_updated"`
}

// NewLedgerState estado vacío: sin entregas pendientes y cero pedidos.
func NewLedgerState() *LedgerState {
	return &LedgerState{PendingDeliveries: map[string]PendingDelivery{}}
}

// EnsureInit completa los campos nulos tras deserializar un documento parcial.
func (s *LedgerState) EnsureInit() {
	if s.PendingDeliveries == nil {
		s.PendingDeliveries = map[string]PendingDelivery{}
	}
}

// AppendOrder agrega una ejecución al historial recortando a MaxOrderHistory.
func (s *LedgerState) AppendOrder(rec OrderRecord) {
	s.Orders = append(s.Orders, rec)
	if over := len(s.Orders) - MaxOrderHistory; over > 0 {
		s.Orders = append([]OrderRecord(nil), s.Orders[over:]...)
	}
}

// Clone copia profunda del estado.
func (s *LedgerState) Clone() *LedgerState {
	out := &LedgerState{
		PendingDeliveries: make(map[string]PendingDelivery, len(s.PendingDeliveries)),
		DailyCounter:      s.DailyCounter,
		Orders:            append([]OrderRecord(nil), s.Orders...),
		LastUpdated:       s.LastUpdated,
	}
	for k, v := range s.PendingDeliveries {
		out.PendingDeliveries[k] = v
	}
	return out
}
