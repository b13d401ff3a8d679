package httpapi

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"audit-portal/internal/auth"
	"audit-portal/internal/consultation"
	"audit-portal/internal/ledger"
	"audit-portal/internal/payments"
	"audit-portal/internal/quoting"
	"audit-portal/internal/reporting"
	"audit-portal/internal/rbac"
	"audit-portal/internal/storage"
	"audit-portal/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// CategoryLister lists the quoting catalog.
type CategoryLister interface {
	ListCategories(ctx context.Context) ([]quoting.Category, error)
}

// FileStore keeps attachment bytes. The consultation core only sees descriptors.
type FileStore interface {
	Save(ctx context.Context, ownerID, originalName string, r io.Reader) (storage.Descriptor, error)
	Resolve(rel string) (string, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth          *auth.Manager
	Consultations *consultation.Service
	Ledger        *ledger.Service
	Categories    CategoryLister
	Payments      *payments.Service
	Reports       *reporting.Service
	Files         FileStore
	Hub           *ws.Hub
	Upgrader      websocket.Upgrader
	// MaxUploadSize bounds multipart bodies.
	MaxUploadSize int64
}

// caller is the zero Caller on unauthenticated routes; services reject it.
func caller(c *gin.Context) consultation.Caller {
	id, _ := auth.FromContext(c.Request.Context())
	return consultation.Caller{ID: id.UserID, Role: id.Role}
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: Local development only. Credentials are validated by the identity provider in deployed environments.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if req.UserID == "" || !rbac.IsKnown(req.Role) {
		badRequest(c, "user_id and a known role required")
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

func (h Handlers) Me(c *gin.Context) {
	who := caller(c)
	c.JSON(http.StatusOK, gin.H{"user_id": who.ID, "role": who.Role})
}

func (h Handlers) ListCategories(c *gin.Context) {
	cats, err := h.Categories.ListCategories(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	type categoryView struct {
		ID       string       `json:"id"`
		Name     string       `json:"name"`
		Hours    ledger.Hours `json:"hours"`
		IsCustom bool         `json:"is_custom"`
	}
	out := make([]categoryView, 0, len(cats))
	for _, cat := range cats {
		out = append(out, categoryView{ID: cat.ID, Name: cat.Name, Hours: cat.Hours, IsCustom: cat.IsCustom})
	}
	c.JSON(http.StatusOK, gin.H{"categories": out})
}

// --- Ledger ---

func (h Handlers) GetBalance(c *gin.Context) {
	bal, err := h.Ledger.GetBalance(c.Request.Context(), caller(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bal)
}

func (h Handlers) ListEntries(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.Ledger.Entries(c.Request.Context(), caller(c).ID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type adminCreditRequest struct {
	Hours          ledger.Hours `json:"hours"`
	Reason         string       `json:"reason"`
	IdempotencyKey string       `json:"idempotency_key"`
}

// AdminCredit performs an admin-only manual top-up.
func (h Handlers) AdminCredit(c *gin.Context) {
	var req adminCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	admin := caller(c)
	m, err := h.Ledger.AdminCredit(c.Request.Context(), c.Param("collaborator_id"), admin.ID, admin.Role, ledger.AdminCreditRequest{
		Hours:          req.Hours,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": m.Entry, "balance": m.Balance, "replayed": m.Replayed})
}

// --- Reports ---

// reportRange reads from/to as RFC 3339. The default window is the last 30 days.
func reportRange(c *gin.Context) (reporting.TimeRange, bool) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return reporting.TimeRange{}, false
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return reporting.TimeRange{}, false
		}
		to = t
	}
	return reporting.TimeRange{From: from, To: to}, true
}

func (h Handlers) HoursReport(c *gin.Context) {
	rng, ok := reportRange(c)
	if !ok {
		badRequest(c, "from/to must be RFC 3339")
		return
	}
	sum, err := h.Reports.HoursSummary(c.Request.Context(), reporting.HoursSummaryRequest{
		CollaboratorID: c.Query("collaborator_id"),
		Range:          rng,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h Handlers) ConsultationsReport(c *gin.Context) {
	rng, ok := reportRange(c)
	if !ok {
		badRequest(c, "from/to must be RFC 3339")
		return
	}
	sum, err := h.Reports.ConsultationsSummary(c.Request.Context(), reporting.ConsultationsSummaryRequest{
		OwnerID: c.Query("owner_id"),
		Range:   rng,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}
