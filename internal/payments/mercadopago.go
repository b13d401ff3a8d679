package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"audit-portal/pkg/logger"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
)

var (
	ErrMissingAccessToken = errors.New("missing MERCADOPAGO_ACCESS_TOKEN")
	ErrPaymentNotFound    = errors.New("payments: payment not found")
)

type MercadoPagoOptions struct {
	AccessToken     string
	NotificationURL string
	SuccessURL      string
	FailureURL      string
	// Mock approves every checkout locally without calling the API.
	Mock bool
}

// MercadoPagoGateway creates checkout preferences and looks up payments.
type MercadoPagoGateway struct {
	prefs    preference.Client
	payments payment.Client
	opts     MercadoPagoOptions

	mockMode bool
	mu       sync.Mutex
	mocked   map[string]Payment
}

func NewMercadoPagoGateway(opts MercadoPagoOptions) (*MercadoPagoGateway, error) {
	if opts.Mock {
		return &MercadoPagoGateway{opts: opts, mockMode: true, mocked: map[string]Payment{}}, nil
	}
	if opts.AccessToken == "" {
		return nil, ErrMissingAccessToken
	}
	cfg, err := config.New(opts.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("mercadopago config: %w", err)
	}
	return &MercadoPagoGateway{
		prefs:    preference.NewClient(cfg),
		payments: payment.NewClient(cfg),
		opts:     opts,
	}, nil
}

func (g *MercadoPagoGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	log := logger.From(ctx)
	if g == nil {
		return Checkout{}, ErrGatewayNotConfigured
	}
	if g.mockMode {
		id := strconv.FormatInt(time.Now().UTC().UnixNano(), 10)
		g.mu.Lock()
		g.mocked[id] = Payment{
			ID:                id,
			Status:            StatusApproved,
			ExternalReference: req.ExternalReference,
			Amount:            req.UnitPrice * req.Hours.Float64(),
		}
		g.mu.Unlock()
		log.Info("mock checkout created", "checkout_id", id, "collaborator_id", req.CollaboratorID)
		return Checkout{ID: id, RedirectURL: g.opts.SuccessURL}, nil
	}
	if g.prefs == nil {
		return Checkout{}, ErrGatewayNotConfigured
	}

	pr := preference.Request{
		Items: []preference.ItemRequest{{
			ID:         "hours",
			Title:      fmt.Sprintf("Advisory hours (%s)", req.Hours),
			Quantity:   1,
			UnitPrice:  req.UnitPrice * req.Hours.Float64(),
			CurrencyID: req.Currency,
		}},
		ExternalReference: req.ExternalReference,
		NotificationURL:   g.opts.NotificationURL,
	}
	if g.opts.SuccessURL != "" || g.opts.FailureURL != "" {
		pr.BackURLs = &preference.BackURLsRequest{
			Success: g.opts.SuccessURL,
			Failure: g.opts.FailureURL,
			Pending: g.opts.SuccessURL,
		}
	}

	resp, err := g.prefs.Create(ctx, pr)
	if err != nil {
		log.Error("create preference failed", "err", err, "collaborator_id", req.CollaboratorID)
		return Checkout{}, fmt.Errorf("create preference: %w", err)
	}
	log.Info("checkout created", "checkout_id", resp.ID, "collaborator_id", req.CollaboratorID)
	return Checkout{ID: resp.ID, RedirectURL: resp.InitPoint}, nil
}

func (g *MercadoPagoGateway) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	if g == nil {
		return Payment{}, ErrGatewayNotConfigured
	}
	if g.mockMode {
		g.mu.Lock()
		defer g.mu.Unlock()
		p, ok := g.mocked[paymentID]
		if !ok {
			return Payment{}, ErrPaymentNotFound
		}
		return p, nil
	}
	if g.payments == nil {
		return Payment{}, ErrGatewayNotConfigured
	}

	id, err := strconv.Atoi(paymentID)
	if err != nil {
		return Payment{}, fmt.Errorf("%w: %q", ErrPaymentNotFound, paymentID)
	}
	resp, err := g.payments.Get(ctx, id)
	if err != nil {
		return Payment{}, fmt.Errorf("get payment: %w", err)
	}
	return Payment{
		ID:                strconv.Itoa(resp.ID),
		Status:            resp.Status,
		ExternalReference: resp.ExternalReference,
		Amount:            resp.TransactionAmount,
	}, nil
}
