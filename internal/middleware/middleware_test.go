package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/timetable-api/internal/models"
)

type tokenFunc func(string) (*models.JWTClaims, error)

func (f tokenFunc) ValidateToken(token string) (*models.JWTClaims, error) { return f(token) }

type observation struct {
	method, path string
	status       int
}

type recordingObserver struct {
	seen []observation
}

func (r *recordingObserver) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	r.seen = append(r.seen, observation{method: method, path: path, status: status})
}

func TestJWTHeaderParsing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var presented string
	validator := tokenFunc(func(token string) (*models.JWTClaims, error) {
		presented = token
		if token != "good" {
			return nil, errors.New("bad token")
		}
		return &models.JWTClaims{UserID: "u1", Role: models.RoleViewer}, nil
	})
	r := gin.New()
	r.GET("/me", JWT(validator), RequireRoles(models.RoleViewer), func(c *gin.Context) {
		claims := c.MustGet(ContextUserKey).(*models.JWTClaims)
		c.String(http.StatusOK, claims.UserID)
	})

	cases := map[string]struct {
		header string
		status int
	}{
		"valid":          {header: "Bearer good", status: http.StatusOK},
		"lowercase":      {header: "bearer  good ", status: http.StatusOK},
		"missing":        {header: "", status: http.StatusUnauthorized},
		"basic scheme":   {header: "Basic good", status: http.StatusUnauthorized},
		"empty token":    {header: "Bearer ", status: http.StatusUnauthorized},
		"rejected token": {header: "Bearer forged", status: http.StatusUnauthorized},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "u1", w.Body.String())
				assert.Equal(t, "good", presented)
			}
		})
	}
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMetricsGroupsUnmatchedRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &recordingObserver{}
	r := gin.New()
	r.Use(Metrics(observer))
	r.GET("/jobs/:id", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	for _, path := range []string{"/jobs/42", "/scan/wp-admin"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, []observation{
		{method: http.MethodGet, path: "/jobs/:id", status: http.StatusAccepted},
		{method: http.MethodGet, path: "unmatched", status: http.StatusNotFound},
	}, observer.seen)
}
