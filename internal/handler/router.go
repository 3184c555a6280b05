package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/teacher-transfer-api/internal/middleware"
	"github.com/noah-isme/teacher-transfer-api/internal/models"
)

// Handlers groups every route owner mounted by RegisterRoutes.
type Handlers struct {
	Auth         *AuthHandler
	Teachers     *TeacherHandler
	Schools      *SchoolHandler
	Vacancies    *VacancyHandler
	Transfers    *TransferHandler
	EditRequests *EditRequestHandler
	Metrics      *MetricsHandler
}

// RouteOptions tunes which optional routes are mounted.
type RouteOptions struct {
	APIPrefix string
	// ExposeTokenIssuer mounts POST /auth/token. Keep it off in production.
	ExposeTokenIssuer bool
}

// RegisterRoutes mounts health endpoints at the root and the API under opts.APIPrefix.
func RegisterRoutes(r *gin.Engine, h Handlers, auth middleware.TokenValidator, opts RouteOptions) {
	if h.Metrics != nil {
		r.GET("/health", h.Metrics.Health)
		r.GET("/ready", h.Metrics.Ready)
		r.GET("/metrics", h.Metrics.Prometheus)
	}

	api := r.Group(opts.APIPrefix)
	if opts.ExposeTokenIssuer && h.Auth != nil {
		api.POST("/auth/token", h.Auth.IssueToken)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(auth))

	reviewers := middleware.RequireRoles(models.RoleHeadmaster, models.RoleDEO)
	headmaster := middleware.RequireRoles(models.RoleHeadmaster)
	deo := middleware.RequireRoles(models.RoleDEO)
	teacher := middleware.RequireRoles(models.RoleTeacher)

	if h.Auth != nil {
		secured.GET("/auth/me", h.Auth.Me)
	}
	if h.Metrics != nil {
		secured.GET("/metrics/summary", reviewers, h.Metrics.Summary)
	}

	if h.Teachers != nil {
		teachers := secured.Group("/teachers")
		teachers.GET("", reviewers, h.Teachers.List)
		teachers.POST("", reviewers, h.Teachers.Register)
		teachers.GET("/me", h.Teachers.Me)
		teachers.GET("/national-id/:nationalId", reviewers, h.Teachers.ByNationalID)
		teachers.GET("/:id", middleware.RequireRoles(models.RoleHeadmaster, models.RoleDEO, middleware.RoleSelf), h.Teachers.Get)
		teachers.PUT("/:id", middleware.RequireRoles(models.RoleDEO, middleware.RoleSelf), h.Teachers.UpdateProfile)
		teachers.DELETE("/:id", deo, h.Teachers.Delete)
	}

	if h.Schools != nil {
		schools := secured.Group("/schools")
		schools.GET("", h.Schools.List)
		schools.GET("/:id", h.Schools.Get)
		schools.POST("", reviewers, h.Schools.Create)
		schools.PUT("/:id", reviewers, h.Schools.Update)
		schools.DELETE("/:id", deo, h.Schools.Delete)
	}

	if h.Vacancies != nil {
		vacancies := secured.Group("/vacancies")
		vacancies.GET("", h.Vacancies.ListOpen)
		vacancies.GET("/:id", h.Vacancies.Get)
		vacancies.POST("", reviewers, h.Vacancies.Create)
		vacancies.DELETE("/:id", reviewers, h.Vacancies.Delete)
	}

	if h.Transfers != nil {
		transfers := secured.Group("/transfers")
		transfers.POST("", teacher, h.Transfers.Request)
		transfers.GET("/pending", headmaster, h.Transfers.Pending)
		transfers.POST("/:id/approve", headmaster, h.Transfers.Approve)
		transfers.POST("/:id/reject", headmaster, h.Transfers.Reject)
	}

	if h.EditRequests != nil {
		edits := secured.Group("/edit-requests")
		edits.POST("", teacher, h.EditRequests.Submit)
		edits.GET("/latest", h.EditRequests.Latest)
		edits.GET("/pending", deo, h.EditRequests.Pending)
		edits.POST("/:id/approve", deo, h.EditRequests.Approve)
		edits.POST("/:id/reject", deo, h.EditRequests.Reject)
	}
}
