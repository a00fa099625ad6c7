package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/skillspot-settlement/internal/http/middleware"
	"github.com/nurpe/skillspot-settlement/internal/model"
	"github.com/nurpe/skillspot-settlement/internal/service"
)

type Handler struct {
	contracts   *service.ContractService
	timeEntries *service.TimeEntryService
	payments    *service.PaymentService
	log         zerolog.Logger
}

func NewHandler(
	contracts *service.ContractService,
	timeEntries *service.TimeEntryService,
	payments *service.PaymentService,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		contracts:   contracts,
		timeEntries: timeEntries,
		payments:    payments,
		log:         log,
	}
}

func (h *Handler) Register(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	router.POST("/webhooks/stripe", h.stripeWebhook)

	protected := router.Group("/")
	protected.Use(authMiddleware)

	protected.GET("/contracts", h.listContracts)
	protected.POST("/contracts", h.createContract)
	protected.GET("/contracts/:id", h.getContract)
	protected.PATCH("/contracts/:id", h.updateContract)
	protected.POST("/contracts/:id/status", h.updateContractStatus)
	protected.DELETE("/contracts/:id", h.deleteContract)
	protected.POST("/contracts/:id/sign", h.signContract)
	protected.GET("/contracts/:id/signatures", h.listSignatures)
	protected.GET("/contracts/:id/document", h.contractDocument)
	protected.GET("/contracts/:id/milestones", h.listMilestones)
	protected.POST("/contracts/:id/milestones", h.createMilestone)
	protected.PATCH("/milestones/:id", h.updateMilestone)

	protected.GET("/contracts/:id/time-entries", h.listTimeEntries)
	protected.POST("/contracts/:id/time-entries", h.submitTimeEntry)
	protected.POST("/contracts/:id/time-entries/checkout", h.batchCheckout)
	protected.PATCH("/time-entries/:id", h.updateTimeEntry)
	protected.POST("/time-entries/:id/review", h.reviewTimeEntry)

	protected.GET("/contracts/:id/payments/export", h.exportLedger)
	protected.GET("/payments", h.listPayments)
	protected.POST("/payments", h.createPayment)
	protected.GET("/payments/history", h.paymentHistory)
	protected.GET("/payments/:id", h.getPayment)
	protected.POST("/payments/:id/intent", h.createIntent)
	protected.POST("/payments/:id/checkout", h.createCheckout)
	protected.POST("/payments/:id/confirm", h.confirmPayment)
}

func (h *Handler) principal(c *gin.Context) (model.Principal, bool) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
	}
	return principal, ok
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrPreconditionFailed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrGateway):
		h.log.Warn().Err(err).Str("request_id", middleware.GetRequestID(c)).Msg("payment gateway call failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).
			Str("request_id", middleware.GetRequestID(c)).
			Str("path", c.FullPath()).
			Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func sendFile(c *gin.Context, file *service.FileResult) {
	c.Header("Content-Type", file.ContentType)
	c.Header("Content-Disposition", "attachment; filename=\""+file.FileName+"\"")
	c.Data(http.StatusOK, file.ContentType, file.Content)
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalUUID(raw string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, service.ErrInvalidInput
	}
	return &id, nil
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, service.ErrInvalidInput
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, service.ErrInvalidInput
}

func parseOptionalDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	parsed, err := parseDate(*raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
