package reorder

import (
	"context"
	"errors"

	"github.com/jhoicas/grocy-autobuy/internal/application/ports"
)

// NopNotifier descarta los avisos.
type NopNotifier struct{}

// Notify no hace nada.
func (NopNotifier) Notify(context.Context, ports.Notification) error { return nil }

// FanoutNotifier reparte cada aviso a todos los canales configurados.
// Un canal que falla no impide intentar los demás.
type FanoutNotifier []ports.Notifier

// Notify envía a todos y devuelve los errores unidos.
func (f FanoutNotifier) Notify(ctx context.Context, n ports.Notification) error {
	var errs []error
	for _, notifier := range f {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
