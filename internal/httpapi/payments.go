package httpapi

import (
	"errors"
	"net/http"

	"audit-portal/internal/ledger"
	"audit-portal/internal/payments"
	"audit-portal/pkg/logger"

	"github.com/gin-gonic/gin"
)

type checkoutRequest struct {
	Hours ledger.Hours `json:"hours"`
}

// StartCheckout opens a hosted checkout for an hour package.
func (h Handlers) StartCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	out, err := h.Payments.StartCheckout(c.Request.Context(), caller(c).ID, req.Hours)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"checkout_id": out.ID, "redirect_url": out.RedirectURL})
}

type mercadoPagoNotification struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
}

// notificationPaymentID reads the payment id from either the JSON body or the
// query string; the gateway uses both shapes depending on notification version.
func notificationPaymentID(c *gin.Context) (string, bool) {
	var body mercadoPagoNotification
	_ = c.ShouldBindJSON(&body)

	typ := body.Type
	if typ == "" {
		typ = c.Query("type")
	}
	if typ == "" {
		typ = c.Query("topic")
	}
	if typ != "" && typ != "payment" {
		return "", false
	}

	id := body.Data.ID
	if id == "" {
		id = c.Query("data.id")
	}
	if id == "" {
		id = c.Query("id")
	}
	return id, id != ""
}

// MercadoPagoWebhook credits purchased hours. Deliveries for unknown or malformed
// payments are acknowledged so the gateway stops retrying them.
func (h Handlers) MercadoPagoWebhook(c *gin.Context) {
	log := logger.FromGin(c)
	id, ok := notificationPaymentID(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	res, err := h.Payments.HandleNotification(c.Request.Context(), id)
	switch {
	case errors.Is(err, payments.ErrInvalidReference), errors.Is(err, payments.ErrPaymentNotFound),
		errors.Is(err, payments.ErrAmountMismatch):
		log.Warn("payment notification ignored", "payment_id", id, "err", err)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	case err != nil:
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "processed", "result": res})
}
