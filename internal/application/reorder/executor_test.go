package reorder_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/grocy-autobuy/internal/application/ports"
	"github.com/jhoicas/grocy-autobuy/internal/application/reorder"
	"github.com/jhoicas/grocy-autobuy/internal/domain"
	"github.com/jhoicas/grocy-autobuy/internal/domain/entity"
)

func pastaAction() entity.PurchaseAction {
	return entity.PurchaseAction{Product: product("1", "Pasta", "5", "10", "B000PASTA1", 20), Packages: 2}
}

func TestExecutor_ModoVoz(t *testing.T) {
	ch := &fakeChannel{failFor: map[string]error{}}
	notifier := &recordingNotifier{}
	x, err := reorder.NewExecutor(ch, notifier, reorder.ExecutorConfig{Mode: entity.ModeVoiceOrder, NotifyOnOrder: true}, zerolog.Nop())
	require.NoError(t, err)

	status, err := x.Execute(context.Background(), pastaAction())

	require.NoError(t, err)
	assert.Equal(t, entity.OrderVoiceOrdered, status)
	assert.Equal(t, []string{"1"}, ch.voice)
	assert.Empty(t, ch.list)
	assert.Equal(t, []ports.NotificationKind{ports.NotifyOrderPlaced}, notifier.kinds())
}

func TestExecutor_ListaDeComprasSinAviso(t *testing.T) {
	ch := &fakeChannel{failFor: map[string]error{}}
	notifier := &recordingNotifier{}
	x, err := reorder.NewExecutor(ch, notifier, reorder.ExecutorConfig{Mode: entity.ModeShoppingList}, zerolog.Nop())
	require.NoError(t, err)

	status, err := x.Execute(context.Background(), pastaAction())

	require.NoError(t, err)
	assert.Equal(t, entity.OrderAddedToList, status)
	assert.Equal(t, []string{"1"}, ch.list)
	assert.Empty(t, notifier.kinds())
}

func TestExecutor_SoloAvisoNoUsaCanal(t *testing.T) {
	notifier := &recordingNotifier{}
	x, err := reorder.NewExecutor(nil, notifier, reorder.ExecutorConfig{Mode: entity.ModeNotifyOnly}, zerolog.Nop())
	require.NoError(t, err)

	status, err := x.Execute(context.Background(), pastaAction())

	require.NoError(t, err)
	assert.Equal(t, entity.OrderNotified, status)
	require.Len(t, notifier.sent, 1)
	assert.Contains(t, notifier.sent[0].CartURL, "ASIN.1=B000PASTA1")
	assert.Contains(t, notifier.sent[0].CartURL, "Quantity.1=2")
}

func TestExecutor_AvisoFallidoNoRompeElPedido(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("telegram caído")}
	x, err := reorder.NewExecutor(nil, notifier, reorder.ExecutorConfig{Mode: entity.ModeNotifyOnly}, zerolog.Nop())
	require.NoError(t, err)

	status, err := x.Execute(context.Background(), pastaAction())

	require.NoError(t, err)
	assert.Equal(t, entity.OrderNotified, status)
}

func TestExecutor_FalloDelCanal(t *testing.T) {
	ch := &fakeChannel{failFor: map[string]error{"1": errors.New("timeout")}}
	notifier := &recordingNotifier{}
	x, err := reorder.NewExecutor(ch, notifier, reorder.ExecutorConfig{Mode: entity.ModeShoppingList, NotifyOnOrder: true}, zerolog.Nop())
	require.NoError(t, err)

	status, err := x.Execute(context.Background(), pastaAction())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOrderChannel))
	assert.Equal(t, entity.OrderFailed, status)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, ports.NotifyOrderFailed, notifier.sent[0].Kind)
	assert.Contains(t, notifier.sent[0].Message, "timeout")
}

func TestExecutor_PreviewSoloAvisa(t *testing.T) {
	ch := &fakeChannel{failFor: map[string]error{}}
	notifier := &recordingNotifier{}
	x, err := reorder.NewExecutor(ch, notifier, reorder.ExecutorConfig{Mode: entity.ModeVoiceOrder, NotifyOnOrder: true}, zerolog.Nop())
	require.NoError(t, err)

	x.Preview(context.Background(), pastaAction())

	assert.Zero(t, ch.calls())
	assert.Equal(t, []ports.NotificationKind{ports.NotifyDryRun}, notifier.kinds())
}

func TestNewExecutor_CanalRequerido(t *testing.T) {
	_, err := reorder.NewExecutor(nil, nil, reorder.ExecutorConfig{Mode: entity.ModeShoppingList}, zerolog.Nop())
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))

	_, err = reorder.NewExecutor(nil, nil, reorder.ExecutorConfig{Mode: "sms"}, zerolog.Nop())
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
}

func TestBuildNotification_MensajesPorModo(t *testing.T) {
	action := pastaAction()
	cart := "https://example.test/cart?ASIN.1=B000PASTA1"

	n := reorder.BuildNotification(entity.ModeShoppingList, ports.NotifyOrderPlaced, action, cart, "")
	assert.Contains(t, n.Message, "2x Pasta")
	assert.Contains(t, n.Message, "lista de compras")

	n = reorder.BuildNotification(entity.ModeNotifyOnly, ports.NotifyOrderPlaced, action, cart, "")
	assert.Contains(t, n.Message, cart)

	n = reorder.BuildNotification(entity.ModeVoiceOrder, ports.NotifyOrderFailed, action, cart, "sin conexión")
	assert.Contains(t, n.Message, "sin conexión")
	require.NotNil(t, n.Action)
	assert.Equal(t, 2, n.Action.Packages)
}

func TestFanoutNotifier_IntentaTodos(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("boom")}
	ok := &recordingNotifier{}
	fan := reorder.FanoutNotifier{failing, nil, ok}

	err := fan.Notify(context.Background(), ports.Notification{Kind: ports.NotifyInfo, Title: "t"})

	require.Error(t, err)
	assert.Len(t, failing.sent, 1)
	assert.Len(t, ok.sent, 1)
}
