package payments_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"audit-portal/internal/ledger"
	"audit-portal/internal/payments"
	"audit-portal/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu        sync.Mutex
	payments  map[string]payments.Payment
	checkouts []payments.CheckoutRequest
	lookups   int
}

func (g *fakeGateway) CreateCheckout(ctx context.Context, req payments.CheckoutRequest) (payments.Checkout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checkouts = append(g.checkouts, req)
	return payments.Checkout{ID: "pref-1", RedirectURL: "https://pay.example/pref-1"}, nil
}

func (g *fakeGateway) GetPayment(ctx context.Context, id string) (payments.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookups++
	p, ok := g.payments[id]
	if !ok {
		return payments.Payment{}, payments.ErrPaymentNotFound
	}
	return p, nil
}

type heldDeduper struct {
	mu   sync.Mutex
	held map[string]bool
}

func (d *heldDeduper) Claim(ctx context.Context, key string) (func(), bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.held[key] {
		return func() {}, false, nil
	}
	d.held[key] = true
	return func() {}, true, nil
}

func newService(t *testing.T, gw *fakeGateway, dedupe payments.Deduper) (*payments.Service, *ledger.Service) {
	t.Helper()
	led := ledger.NewService(store.NewMemory().Ledger(), nil)
	return payments.NewService(gw, led, payments.Options{HourPrice: 150, Dedupe: dedupe}), led
}

func TestReference_RoundTrip(t *testing.T) {
	ref := payments.Reference("user|with|pipes", 250)
	id, h, err := payments.ParseReference(ref)
	require.NoError(t, err)
	assert.Equal(t, "user|with|pipes", id)
	assert.Equal(t, ledger.Hours(250), h)

	for _, bad := range []string{"", "abc", "|100", "abc|", "abc|x", "abc|0", "abc|-5"} {
		_, _, err := payments.ParseReference(bad)
		require.ErrorIs(t, err, payments.ErrInvalidReference, bad)
	}
}

func TestStartCheckout(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newService(t, gw, nil)

	_, err := svc.StartCheckout(context.Background(), "c1", 0)
	require.ErrorIs(t, err, payments.ErrInvalidCheckout)
	_, err = svc.StartCheckout(context.Background(), "", ledger.Hour)
	require.ErrorIs(t, err, payments.ErrInvalidCheckout)

	co, err := svc.StartCheckout(context.Background(), "c1", 5*ledger.Hour)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/pref-1", co.RedirectURL)

	require.Len(t, gw.checkouts, 1)
	req := gw.checkouts[0]
	assert.Equal(t, "BRL", req.Currency)
	assert.Equal(t, 150.0, req.UnitPrice)
	assert.Equal(t, "c1|500", req.ExternalReference)
}

func TestHandleNotification_CreditsOnce(t *testing.T) {
	gw := &fakeGateway{payments: map[string]payments.Payment{
		"42": {ID: "42", Status: payments.StatusApproved, Amount: 750, ExternalReference: payments.Reference("c1", 5*ledger.Hour)},
	}}
	svc, led := newService(t, gw, nil)

	res, err := svc.HandleNotification(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, 5*ledger.Hour, res.Credited)
	assert.False(t, res.Duplicate)

	res, err = svc.HandleNotification(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, res.Duplicate)

	b, err := led.GetBalance(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 5*ledger.Hour, b.Available)

	entries, err := led.Entries(context.Background(), "c1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "42", entries[0].ExternalRef)
}

func TestHandleNotification_IgnoresUnapproved(t *testing.T) {
	gw := &fakeGateway{payments: map[string]payments.Payment{
		"7": {ID: "7", Status: "pending", ExternalReference: payments.Reference("c1", ledger.Hour)},
	}}
	svc, led := newService(t, gw, nil)

	res, err := svc.HandleNotification(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "pending", res.Status)
	assert.Equal(t, ledger.Hours(0), res.Credited)

	b, err := led.GetBalance(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, ledger.Hours(0), b.Available)
}

func TestHandleNotification_Errors(t *testing.T) {
	gw := &fakeGateway{payments: map[string]payments.Payment{
		"9": {ID: "9", Status: payments.StatusApproved, ExternalReference: "garbage"},
	}}
	svc, _ := newService(t, gw, nil)

	_, err := svc.HandleNotification(context.Background(), "missing")
	require.True(t, errors.Is(err, payments.ErrPaymentNotFound))

	_, err = svc.HandleNotification(context.Background(), "9")
	require.ErrorIs(t, err, payments.ErrInvalidReference)

	_, err = svc.HandleNotification(context.Background(), "")
	require.ErrorIs(t, err, payments.ErrPaymentNotFound)
}

func TestHandleNotification_RefusesWrongAmount(t *testing.T) {
	gw := &fakeGateway{payments: map[string]payments.Payment{
		"short": {ID: "short", Status: payments.StatusApproved, Amount: 1, ExternalReference: payments.Reference("c1", 5*ledger.Hour)},
		"cents": {ID: "cents", Status: payments.StatusApproved, Amount: 225.004, ExternalReference: payments.Reference("c1", 150)},
	}}
	svc, led := newService(t, gw, nil)

	_, err := svc.HandleNotification(context.Background(), "short")
	require.ErrorIs(t, err, payments.ErrAmountMismatch)

	b, err := led.GetBalance(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, ledger.Hours(0), b.Available)

	res, err := svc.HandleNotification(context.Background(), "cents")
	require.NoError(t, err)
	assert.Equal(t, ledger.Hours(150), res.Credited)

	free := payments.NewService(gw, led, payments.Options{})
	res, err = free.HandleNotification(context.Background(), "short")
	require.NoError(t, err)
	assert.Equal(t, 5*ledger.Hour, res.Credited)
}

func TestHandleNotification_DropsHeldClaims(t *testing.T) {
	gw := &fakeGateway{payments: map[string]payments.Payment{
		"42": {ID: "42", Status: payments.StatusApproved, Amount: 150, ExternalReference: payments.Reference("c1", ledger.Hour)},
	}}
	svc, _ := newService(t, gw, &heldDeduper{held: map[string]bool{"42": true}})

	res, err := svc.HandleNotification(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, 0, gw.lookups)
}

func TestMercadoPagoGateway_Mock(t *testing.T) {
	gw, err := payments.NewMercadoPagoGateway(payments.MercadoPagoOptions{Mock: true, SuccessURL: "https://app.example/ok"})
	require.NoError(t, err)

	svc := payments.NewService(gw, ledger.NewService(store.NewMemory().Ledger(), nil), payments.Options{HourPrice: 100})
	co, err := svc.StartCheckout(context.Background(), "c1", 2*ledger.Hour)
	require.NoError(t, err)
	assert.Equal(t, "https://app.example/ok", co.RedirectURL)

	p, err := gw.GetPayment(context.Background(), co.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusApproved, p.Status)
	assert.Equal(t, 200.0, p.Amount)

	res, err := svc.HandleNotification(context.Background(), co.ID)
	require.NoError(t, err)
	assert.Equal(t, 2*ledger.Hour, res.Credited)
}

func TestMercadoPagoGateway_RequiresToken(t *testing.T) {
	_, err := payments.NewMercadoPagoGateway(payments.MercadoPagoOptions{})
	require.ErrorIs(t, err, payments.ErrMissingAccessToken)
}
