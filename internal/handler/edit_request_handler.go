package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
	"github.com/noah-isme/teacher-transfer-api/internal/service"
	appErrors "github.com/noah-isme/teacher-transfer-api/pkg/errors"
	"github.com/noah-isme/teacher-transfer-api/pkg/response"
)

// EditRequestHandler exposes the profile edit review flow.
type EditRequestHandler struct {
	edits *service.EditRequestService
}

// NewEditRequestHandler constructs an EditRequestHandler.
func NewEditRequestHandler(edits *service.EditRequestService) *EditRequestHandler {
	return &EditRequestHandler{edits: edits}
}

// Submit godoc
// @Summary Propose profile changes
// @Tags Edit Requests
// @Accept json
// @Produce json
// @Param payload body models.SubmitEditRequest true "Requested changes"
// @Success 201 {object} response.Envelope
// @Router /edit-requests [post]
func (h *EditRequestHandler) Submit(c *gin.Context) {
	claims, err := requireClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req models.SubmitEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid edit request payload"))
		return
	}
	edit, err := h.edits.Submit(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, edit)
}

// Pending godoc
// @Summary List edit requests awaiting review
// @Tags Edit Requests
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /edit-requests/pending [get]
func (h *EditRequestHandler) Pending(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	edits, err := h.edits.ListPending(c.Request.Context(), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, edits, nil)
}

// Latest godoc
// @Summary Latest edit request for an email
// @Description Teachers may only look up their own email.
// @Tags Edit Requests
// @Produce json
// @Param email query string false "Requester email, defaults to the caller"
// @Success 200 {object} response.Envelope
// @Router /edit-requests/latest [get]
func (h *EditRequestHandler) Latest(c *gin.Context) {
	claims, err := requireClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		email = claims.Email
	}
	if claims.Role == models.RoleTeacher && !strings.EqualFold(email, claims.Email) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	edit, err := h.edits.GetLatestByEmail(c.Request.Context(), email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, edit, nil)
}

// Approve godoc
// @Summary Approve an edit request and apply it
// @Tags Edit Requests
// @Accept json
// @Produce json
// @Param id path string true "Edit request ID"
// @Param payload body models.ReviewEditRequest false "Review note"
// @Success 200 {object} response.Envelope
// @Router /edit-requests/{id}/approve [post]
func (h *EditRequestHandler) Approve(c *gin.Context) {
	h.review(c, h.edits.Approve)
}

// Reject godoc
// @Summary Reject an edit request
// @Tags Edit Requests
// @Accept json
// @Produce json
// @Param id path string true "Edit request ID"
// @Param payload body models.ReviewEditRequest false "Review note"
// @Success 200 {object} response.Envelope
// @Router /edit-requests/{id}/reject [post]
func (h *EditRequestHandler) Reject(c *gin.Context) {
	h.review(c, h.edits.Reject)
}

type reviewFunc func(ctx context.Context, id, reviewerID string, review models.ReviewEditRequest) (*models.EditRequest, error)

func (h *EditRequestHandler) review(c *gin.Context, decide reviewFunc) {
	claims, err := requireClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req models.ReviewEditRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
			return
		}
	}
	edit, err := decide(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, edit, nil)
}
