package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/commercetrack/attribution/internal/api"
	"github.com/commercetrack/attribution/internal/handlers"
	"github.com/commercetrack/attribution/internal/testhelpers"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := testhelpers.NewTestLogger()

	return api.NewRouter(api.Deps{
		Sessions: handlers.NewSessionHandler(nil, nil, nil, log),
		Funnel:   handlers.NewFunnelHandler(nil, log),
		Logger:   log,
	})
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_UnknownRoute(t *testing.T) {
	router := newTestRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
