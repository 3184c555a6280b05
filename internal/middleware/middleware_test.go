package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
	appErrors "github.com/noah-isme/teacher-transfer-api/pkg/errors"
)

type staticValidator struct {
	claims *models.JWTClaims
	err    error
}

func (v staticValidator) ValidateToken(string) (*models.JWTClaims, error) {
	return v.claims, v.err
}

func serve(r *gin.Engine, target, auth string) int {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec.Code
}

func TestJWTAndRBAC(t *testing.T) {
	gin.SetMode(gin.TestMode)
	teacher := staticValidator{claims: &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher}}

	r := gin.New()
	r.Use(JWT(teacher))
	r.GET("/teachers/:id", RequireRoles(models.RoleHeadmaster, RoleSelf), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/pending", RequireRoles(models.RoleHeadmaster), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusUnauthorized, serve(r, "/pending", ""))
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/pending", "Token abc"))
	assert.Equal(t, http.StatusForbidden, serve(r, "/pending", "Bearer abc"))
	assert.Equal(t, http.StatusOK, serve(r, "/teachers/t1", "Bearer abc"))
	assert.Equal(t, http.StatusForbidden, serve(r, "/teachers/t2", "Bearer abc"))

	deo := gin.New()
	deo.Use(JWT(staticValidator{claims: &models.JWTClaims{UserID: "d1", Role: models.RoleDEO}}))
	deo.GET("/teachers/:id", RequireRoles(models.RoleHeadmaster, RoleSelf), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusForbidden, serve(deo, "/teachers/d1", "Bearer abc"))

	anonymous := gin.New()
	anonymous.GET("/pending", RequireRoles(models.RoleHeadmaster), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, serve(anonymous, "/pending", ""))

	rejected := gin.New()
	rejected.Use(JWT(staticValidator{err: appErrors.Clone(appErrors.ErrUnauthorized, "token expired")}))
	rejected.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, serve(rejected, "/", "Bearer abc"))
}

func TestResponseMetaRecordsCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ResponseMeta())
	var meta map[string]interface{}
	r.GET("/", func(c *gin.Context) {
		MarkCacheHit(c, true)
		meta = Meta(c)
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, serve(r, "/", ""))
	assert.Equal(t, true, meta[cacheHitKey])
	assert.Contains(t, meta, processingTimeMs)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, Meta(c))
	MarkCacheHit(c, false)
	assert.Equal(t, false, Meta(c)[cacheHitKey])
}

type recordedRequest struct {
	method, route string
	status        int
}

type requestLog struct{ seen []recordedRequest }

func (l *requestLog) ObserveHTTPRequest(method, route string, status int, _ time.Duration) {
	l.seen = append(l.seen, recordedRequest{method: method, route: route, status: status})
}

func TestMetricsLabelsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := &requestLog{}
	r := gin.New()
	r.Use(Metrics(log))
	r.GET("/vacancies/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, "/vacancies/v1", "")
	serve(r, "/vacancies/v2", "")
	serve(r, "/no/such/path", "")

	assert.Equal(t, []recordedRequest{
		{method: http.MethodGet, route: "/vacancies/:id", status: http.StatusOK},
		{method: http.MethodGet, route: "/vacancies/:id", status: http.StatusOK},
		{method: http.MethodGet, route: unmatchedRoute, status: http.StatusNotFound},
	}, log.seen)
}
