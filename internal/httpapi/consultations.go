package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"audit-portal/internal/consultation"
	"audit-portal/pkg/logger"

	"github.com/gin-gonic/gin"
)

const attachmentField = "attachment"

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// attachment stores the optional multipart file and returns its descriptor.
func (h Handlers) attachment(c *gin.Context, ownerID string) (*consultation.Attachment, error) {
	fh, err := c.FormFile(attachmentField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, consultation.ErrInvalidArgument
	}
	if h.Files == nil {
		return nil, consultation.ErrInvalidArgument
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d, err := h.Files.Save(c.Request.Context(), ownerID, fh.Filename, f)
	if err != nil {
		return nil, err
	}
	logger.FromGin(c).Info("attachment stored", "url", d.URL, "mime", d.MimeType, "size", d.Size)
	return &consultation.Attachment{URL: d.URL, Name: d.Name, MimeType: d.MimeType, Size: d.Size}, nil
}

func (h Handlers) limitBody(c *gin.Context) {
	if h.MaxUploadSize > 0 && isMultipart(c) {
		// room for the form fields around the file
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadSize+1<<20)
	}
}

func (h Handlers) CreateConsultation(c *gin.Context) {
	who := caller(c)
	var in consultation.NewConsultation
	if isMultipart(c) {
		h.limitBody(c)
		in.Title = c.PostForm("title")
		in.Description = c.PostForm("description")
		in.Urgent, _ = strconv.ParseBool(c.PostForm("urgent"))
		if v := c.PostForm("category_id"); v != "" {
			in.CategoryID = &v
		}
		att, err := h.attachment(c, who.ID)
		if err != nil {
			writeError(c, err)
			return
		}
		in.Attachment = att
	} else {
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, "invalid json")
			return
		}
		// descriptors only come from our own storage
		in.Attachment = nil
	}

	out, err := h.Consultations.Create(c.Request.Context(), who, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h Handlers) ListConsultations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	out, err := h.Consultations.List(c.Request.Context(), caller(c), consultation.Filter{
		OwnerID: c.Query("owner_id"),
		Status:  consultation.Status(strings.ToUpper(c.Query("status"))),
		Limit:   limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"consultations": out})
}

func (h Handlers) GetConsultation(c *gin.Context) {
	out, err := h.Consultations.Get(c.Request.Context(), caller(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) QuoteConsultation(c *gin.Context) {
	var in consultation.QuoteInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid json")
		return
	}
	out, err := h.Consultations.Quote(c.Request.Context(), caller(c), c.Param("id"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// transition adapts a body-less lifecycle operation to a handler.
func (h Handlers) transition(op func(c *gin.Context, s *consultation.Service) (consultation.Consultation, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := op(c, h.Consultations)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func (h Handlers) AcceptConsultation() gin.HandlerFunc {
	return h.transition(func(c *gin.Context, s *consultation.Service) (consultation.Consultation, error) {
		return s.Accept(c.Request.Context(), caller(c), c.Param("id"))
	})
}

func (h Handlers) RejectConsultation() gin.HandlerFunc {
	return h.transition(func(c *gin.Context, s *consultation.Service) (consultation.Consultation, error) {
		return s.Reject(c.Request.Context(), caller(c), c.Param("id"))
	})
}

func (h Handlers) StartConsultation() gin.HandlerFunc {
	return h.transition(func(c *gin.Context, s *consultation.Service) (consultation.Consultation, error) {
		return s.Start(c.Request.Context(), caller(c), c.Param("id"))
	})
}

func (h Handlers) CompleteConsultation() gin.HandlerFunc {
	return h.transition(func(c *gin.Context, s *consultation.Service) (consultation.Consultation, error) {
		return s.Complete(c.Request.Context(), caller(c), c.Param("id"))
	})
}

func (h Handlers) CancelConsultation() gin.HandlerFunc {
	return h.transition(func(c *gin.Context, s *consultation.Service) (consultation.Consultation, error) {
		return s.Cancel(c.Request.Context(), caller(c), c.Param("id"))
	})
}

func (h Handlers) CompleteMeeting() gin.HandlerFunc {
	return h.transition(func(c *gin.Context, s *consultation.Service) (consultation.Consultation, error) {
		return s.CompleteMeeting(c.Request.Context(), caller(c), c.Param("id"))
	})
}

func (h Handlers) CancelMeeting() gin.HandlerFunc {
	return h.transition(func(c *gin.Context, s *consultation.Service) (consultation.Consultation, error) {
		return s.CancelMeeting(c.Request.Context(), caller(c), c.Param("id"))
	})
}

type feedbackRequest struct {
	Feedback string `json:"feedback"`
}

func (h Handlers) SetFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	out, err := h.Consultations.SetFeedback(c.Request.Context(), caller(c), c.Param("id"), req.Feedback)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) ScheduleMeeting(c *gin.Context) {
	var in consultation.ScheduleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "meeting_date must be RFC 3339")
		return
	}
	out, err := h.Consultations.ScheduleMeeting(c.Request.Context(), caller(c), c.Param("id"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// MeetingWidgetCallback is hit by the scheduling widget once the owner books a slot.
func (h Handlers) MeetingWidgetCallback(c *gin.Context) {
	out, err := h.Consultations.MeetingWidgetScheduled(c.Request.Context(), caller(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Messages ---

type messageRequest struct {
	Body string `json:"body"`
}

func (h Handlers) ListMessages(c *gin.Context) {
	out, err := h.Consultations.ListMessages(c.Request.Context(), caller(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

func (h Handlers) PostMessage(c *gin.Context) {
	who := caller(c)
	id := c.Param("id")

	var body string
	var att *consultation.Attachment
	if isMultipart(c) {
		h.limitBody(c)
		body = c.PostForm("body")
		// authorize before writing any file
		cons, err := h.Consultations.Get(c.Request.Context(), who, id)
		if err != nil {
			writeError(c, err)
			return
		}
		att, err = h.attachment(c, cons.OwnerID)
		if err != nil {
			writeError(c, err)
			return
		}
	} else {
		var req messageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid json")
			return
		}
		body = req.Body
	}

	out, err := h.Consultations.AppendMessage(c.Request.Context(), who, id, body, att)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}
