package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nurpe/skillspot-settlement/internal/model"
	"github.com/nurpe/skillspot-settlement/internal/service"
)

func (h *Handler) listTimeEntries(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var status *model.TimeEntryStatus
	if raw := strings.ToUpper(strings.TrimSpace(c.Query("status"))); raw != "" {
		s := model.TimeEntryStatus(raw)
		status = &s
	}

	entries, err := h.timeEntries.List(c.Request.Context(), principal, id, status)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

type timeEntryRequest struct {
	Date        string          `json:"date" binding:"required"`
	Hours       decimal.Decimal `json:"hours"`
	Description string          `json:"description"`
}

func (h *Handler) submitTimeEntry(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req timeEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
		return
	}

	entry, err := h.timeEntries.Submit(c.Request.Context(), service.SubmitTimeEntryInput{
		Principal:   principal,
		ContractID:  id,
		Date:        date,
		Hours:       req.Hours,
		Description: req.Description,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

type updateTimeEntryRequest struct {
	Date        *string          `json:"date"`
	Hours       *decimal.Decimal `json:"hours"`
	Description *string          `json:"description"`
}

func (h *Handler) updateTimeEntry(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req updateTimeEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := parseOptionalDate(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
		return
	}

	entry, err := h.timeEntries.Update(c.Request.Context(), service.UpdateTimeEntryInput{
		Principal:   principal,
		EntryID:     id,
		Date:        date,
		Hours:       req.Hours,
		Description: req.Description,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *Handler) reviewTimeEntry(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.timeEntries.Review(c.Request.Context(), principal, id,
		model.TimeEntryStatus(strings.ToUpper(strings.TrimSpace(req.Status))))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

type checkoutRequest struct {
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func (h *Handler) batchCheckout(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req checkoutRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	result, err := h.payments.BatchCheckout(c.Request.Context(), principal, id, service.CheckoutInput{
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) exportLedger(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	file, err := h.payments.ExportLedger(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	sendFile(c, file)
}

type createPaymentRequest struct {
	ContractID    string          `json:"contract_id" binding:"required"`
	MilestoneID   string          `json:"milestone_id"`
	TimeEntryID   string          `json:"time_entry_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"payment_method"`
	Description   string          `json:"description"`
}

func (h *Handler) createPayment(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	contractID, err := uuid.Parse(strings.TrimSpace(req.ContractID))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract_id"})
		return
	}
	milestoneID, err := parseOptionalUUID(req.MilestoneID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid milestone_id"})
		return
	}
	timeEntryID, err := parseOptionalUUID(req.TimeEntryID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid time_entry_id"})
		return
	}

	payment, err := h.payments.CreatePayment(c.Request.Context(), service.CreatePaymentInput{
		Principal:     principal,
		ContractID:    contractID,
		MilestoneID:   milestoneID,
		TimeEntryID:   timeEntryID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		PaymentMethod: model.PaymentMethod(strings.ToUpper(strings.TrimSpace(req.PaymentMethod))),
		Description:   req.Description,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

func (h *Handler) listPayments(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	input := service.ListPaymentsInput{
		Principal: principal,
		Mine:      parseBool(c.Query("mine")),
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status, ok := model.ParsePaymentStatus(strings.ToUpper(raw))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		input.Status = &status
	}
	var err error
	if input.ContractID, err = parseOptionalUUID(c.Query("contract")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract"})
		return
	}
	if input.MilestoneID, err = parseOptionalUUID(c.Query("milestone")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid milestone"})
		return
	}
	if input.TimeEntryID, err = parseOptionalUUID(c.Query("time_entry")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid time_entry"})
		return
	}

	payments, err := h.payments.List(c.Request.Context(), input)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payments})
}

func (h *Handler) paymentHistory(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	payments, err := h.payments.History(c.Request.Context(), principal)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payments})
}

func (h *Handler) getPayment(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	payment, err := h.payments.Get(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (h *Handler) createIntent(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	result, err := h.payments.StartIntent(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) createCheckout(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req checkoutRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	result, err := h.payments.StartCheckout(c.Request.Context(), principal, id, service.CheckoutInput{
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) confirmPayment(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	result, err := h.payments.Confirm(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
