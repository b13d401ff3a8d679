package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"audit-portal/internal/ledger"
)

var (
	ErrInvalidCheckout      = errors.New("payments: invalid checkout")
	ErrInvalidReference     = errors.New("payments: invalid external reference")
	ErrGatewayNotConfigured = errors.New("payments: gateway not configured")
	ErrAmountMismatch       = errors.New("payments: paid amount does not match the hours ordered")
)

// StatusApproved is the only provider status that credits hours.
const StatusApproved = "approved"

// CheckoutRequest is an hour package the collaborator wants to buy.
type CheckoutRequest struct {
	CollaboratorID string
	Hours          ledger.Hours
	UnitPrice      float64
	Currency       string
	// ExternalReference round-trips through the provider back to the webhook.
	ExternalReference string
}

// Checkout is the provider-side session the collaborator is redirected to.
type Checkout struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirect_url"`
}

// Payment is the provider's view of a payment, fetched when notified.
type Payment struct {
	ID                string
	Status            string
	ExternalReference string
	Amount            float64
}

// Gateway abstracts the payment provider.
type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error)
	GetPayment(ctx context.Context, paymentID string) (Payment, error)
}

// Reference encodes who is buying how many hours as "<collaborator>|<hundredths>".
func Reference(collaboratorID string, hours ledger.Hours) string {
	return collaboratorID + "|" + strconv.FormatInt(int64(hours), 10)
}

// ParseReference reverses Reference.
func ParseReference(ref string) (string, ledger.Hours, error) {
	i := strings.LastIndex(ref, "|")
	if i <= 0 || i == len(ref)-1 {
		return "", 0, ErrInvalidReference
	}
	n, err := strconv.ParseInt(ref[i+1:], 10, 64)
	if err != nil || n <= 0 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	return ref[:i], ledger.Hours(n), nil
}
