package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/teacher-transfer-api/internal/middleware"
	"github.com/noah-isme/teacher-transfer-api/internal/models"
	"github.com/noah-isme/teacher-transfer-api/internal/service"
	appErrors "github.com/noah-isme/teacher-transfer-api/pkg/errors"
	"github.com/noah-isme/teacher-transfer-api/pkg/response"
)

// VacancyHandler exposes vacancy postings.
type VacancyHandler struct {
	vacancies *service.VacancyService
}

// NewVacancyHandler constructs a VacancyHandler.
func NewVacancyHandler(vacancies *service.VacancyService) *VacancyHandler {
	return &VacancyHandler{vacancies: vacancies}
}

// ListOpen godoc
// @Summary List open vacancies with their reference tokens
// @Tags Vacancies
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /vacancies [get]
func (h *VacancyHandler) ListOpen(c *gin.Context) {
	listings, hit, err := h.vacancies.ListOpenCached(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.MarkCacheHit(c, hit)
	response.JSON(c, http.StatusOK, listings, nil, middleware.Meta(c))
}

// Get godoc
// @Summary Get vacancy
// @Tags Vacancies
// @Produce json
// @Param id path string true "Vacancy ID"
// @Success 200 {object} response.Envelope
// @Router /vacancies/{id} [get]
func (h *VacancyHandler) Get(c *gin.Context) {
	vacancy, err := h.vacancies.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, vacancy, nil)
}

// Create godoc
// @Summary Open a vacancy
// @Tags Vacancies
// @Accept json
// @Produce json
// @Param payload body models.CreateVacancyRequest true "Vacancy payload"
// @Success 201 {object} response.Envelope
// @Router /vacancies [post]
func (h *VacancyHandler) Create(c *gin.Context) {
	var req models.CreateVacancyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid vacancy payload"))
		return
	}
	listing, err := h.vacancies.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, listing)
}

// Delete godoc
// @Summary Delete vacancy
// @Tags Vacancies
// @Param id path string true "Vacancy ID"
// @Success 204 {string} string "No Content"
// @Failure 409 {object} response.Envelope
// @Router /vacancies/{id} [delete]
func (h *VacancyHandler) Delete(c *gin.Context) {
	if err := h.vacancies.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
