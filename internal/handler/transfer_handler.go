package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
	appErrors "github.com/noah-isme/teacher-transfer-api/pkg/errors"
	"github.com/noah-isme/teacher-transfer-api/pkg/response"
)

type transferWorkflow interface {
	RequestTransfer(ctx context.Context, requesterID string, req models.RequestTransferRequest) (*models.TransferAck, error)
	ApproveTransfer(ctx context.Context, teacherID string) (*models.TransferAck, error)
	RejectTransfer(ctx context.Context, teacherID string) (*models.TransferAck, error)
	ListPending(ctx context.Context) ([]models.Teacher, error)
}

// TransferHandler exposes the transfer request workflow.
type TransferHandler struct {
	transfers transferWorkflow
}

// NewTransferHandler constructs a TransferHandler.
func NewTransferHandler(transfers transferWorkflow) *TransferHandler {
	return &TransferHandler{transfers: transfers}
}

// Request godoc
// @Summary Request a transfer to an open vacancy
// @Tags Transfers
// @Accept json
// @Produce json
// @Param payload body models.RequestTransferRequest true "Reference token from the vacancy listing"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope "Replay of the pending request"
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /transfers [post]
func (h *TransferHandler) Request(c *gin.Context) {
	claims, err := requireClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req models.RequestTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid transfer payload"))
		return
	}
	ack, err := h.transfers.RequestTransfer(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if ack.Replayed {
		response.JSON(c, http.StatusOK, ack, nil)
		return
	}
	response.Created(c, ack)
}

// Pending godoc
// @Summary List teachers with a pending transfer request
// @Tags Transfers
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /transfers/pending [get]
func (h *TransferHandler) Pending(c *gin.Context) {
	teachers, err := h.transfers.ListPending(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teachers, nil)
}

// Approve godoc
// @Summary Approve a teacher's pending transfer
// @Description A 409 VACANCY_ALREADY_FILLED still carries the committed acknowledgement in data.
// @Tags Transfers
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /transfers/{id}/approve [post]
func (h *TransferHandler) Approve(c *gin.Context) {
	ack, err := h.transfers.ApproveTransfer(c.Request.Context(), c.Param("id"))
	if err != nil {
		if ack != nil {
			response.ErrorWithData(c, err, ack)
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ack, nil)
}

// Reject godoc
// @Summary Reject a teacher's pending transfer
// @Tags Transfers
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /transfers/{id}/reject [post]
func (h *TransferHandler) Reject(c *gin.Context) {
	ack, err := h.transfers.RejectTransfer(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ack, nil)
}
