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

type createContractRequest struct {
	ProviderID       string           `json:"provider_id" binding:"required"`
	JobID            string           `json:"job_id"`
	JobApplicationID string           `json:"job_application_id"`
	Title            string           `json:"title" binding:"required"`
	Description      string           `json:"description"`
	Terms            string           `json:"terms"`
	TotalAmount      decimal.Decimal  `json:"total_amount"`
	Currency         string           `json:"currency"`
	PaymentSchedule  string           `json:"payment_schedule"`
	HourlyRate       *decimal.Decimal `json:"hourly_rate"`
	StartDate        string           `json:"start_date" binding:"required"`
	EndDate          *string          `json:"end_date"`
}

func (h *Handler) createContract(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req createContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	providerID, err := uuid.Parse(strings.TrimSpace(req.ProviderID))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid provider_id"})
		return
	}
	jobID, err := parseOptionalUUID(req.JobID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job_id"})
		return
	}
	applicationID, err := parseOptionalUUID(req.JobApplicationID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job_application_id"})
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date"})
		return
	}
	end, err := parseOptionalDate(req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_date"})
		return
	}

	var hourlyRate decimal.NullDecimal
	if req.HourlyRate != nil {
		hourlyRate = decimal.NewNullDecimal(*req.HourlyRate)
	}

	contract, err := h.contracts.Create(c.Request.Context(), service.CreateContractInput{
		Principal:        principal,
		ProviderID:       providerID,
		JobID:            jobID,
		JobApplicationID: applicationID,
		Title:            req.Title,
		Description:      req.Description,
		Terms:            req.Terms,
		TotalAmount:      req.TotalAmount,
		Currency:         req.Currency,
		PaymentSchedule:  model.PaymentSchedule(strings.ToUpper(strings.TrimSpace(req.PaymentSchedule))),
		HourlyRate:       hourlyRate,
		StartDate:        start,
		EndDate:          end,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, contract)
}

func (h *Handler) listContracts(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	input := service.ListContractsInput{
		Principal: principal,
		Mine:      parseBool(c.Query("mine")),
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status, ok := model.ParseContractStatus(strings.ToUpper(raw))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		input.Status = &status
	}
	var err error
	if input.ClientID, err = parseOptionalUUID(c.Query("client")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client"})
		return
	}
	if input.ProviderID, err = parseOptionalUUID(c.Query("provider")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid provider"})
		return
	}

	contracts, err := h.contracts.List(c.Request.Context(), input)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": contracts})
}

func (h *Handler) getContract(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	view, err := h.contracts.Get(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type updateContractRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Terms       *string          `json:"terms"`
	TotalAmount *decimal.Decimal `json:"total_amount"`
	Currency    *string          `json:"currency"`
	StartDate   *string          `json:"start_date"`
	EndDate     *string          `json:"end_date"`
}

func (h *Handler) updateContract(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req updateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, err := parseOptionalDate(req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date"})
		return
	}
	end, err := parseOptionalDate(req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_date"})
		return
	}

	contract, err := h.contracts.Update(c.Request.Context(), service.UpdateContractInput{
		Principal:   principal,
		ContractID:  id,
		Title:       req.Title,
		Description: req.Description,
		Terms:       req.Terms,
		TotalAmount: req.TotalAmount,
		Currency:    req.Currency,
		StartDate:   start,
		EndDate:     end,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) updateContractStatus(c *gin.Context) {
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
	status, ok := model.ParseContractStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	contract, err := h.contracts.UpdateStatus(c.Request.Context(), principal, id, status)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

func (h *Handler) deleteContract(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.contracts.Delete(c.Request.Context(), principal, id); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type signRequest struct {
	SignatureData string `json:"signature_data" binding:"required"`
	SignatureType string `json:"signature_type"`
}

func (h *Handler) signContract(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req signRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.contracts.Sign(c.Request.Context(), service.SignInput{
		Principal:     principal,
		ContractID:    id,
		SignatureData: req.SignatureData,
		SignatureType: model.SignatureType(strings.ToUpper(strings.TrimSpace(req.SignatureType))),
		IPAddress:     c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"contract":  result.Contract,
		"signature": result.Signature,
		"activated": result.Activated,
	})
}

func (h *Handler) listSignatures(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	signatures, err := h.contracts.Signatures(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": signatures})
}

func (h *Handler) contractDocument(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	file, err := h.contracts.Document(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	sendFile(c, file)
}

func (h *Handler) listMilestones(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	milestones, err := h.contracts.ListMilestones(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": milestones})
}

type createMilestoneRequest struct {
	Title       string          `json:"title" binding:"required"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     *string         `json:"due_date"`
	Order       int             `json:"order"`
}

func (h *Handler) createMilestone(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req createMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	due, err := parseOptionalDate(req.DueDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid due_date"})
		return
	}

	milestone, err := h.contracts.CreateMilestone(c.Request.Context(), service.CreateMilestoneInput{
		Principal:   principal,
		ContractID:  id,
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.Amount,
		DueDate:     due,
		Order:       req.Order,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, milestone)
}

func (h *Handler) updateMilestone(c *gin.Context) {
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
	status, ok := model.ParseMilestoneStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	milestone, err := h.contracts.UpdateMilestoneStatus(c.Request.Context(), principal, id, status)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, milestone)
}
