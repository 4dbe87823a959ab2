package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/cachebound/cachebound/internal/api"
	"github.com/cachebound/cachebound/internal/service"
	"github.com/cachebound/cachebound/internal/service/mocks"
)

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	router := api.NewServer(mocks.NewMockService(ctrl))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestVersionEndpoint(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	router := api.NewServer(mocks.NewMockService(ctrl))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version"`)
	assert.Contains(t, w.Body.String(), `"go_version"`)
}

func TestMetricsEndpointMountedOnlyWhenConfigured(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)

	bare := api.NewServer(mocks.NewMockService(ctrl))
	w := httptest.NewRecorder()
	bare.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	withMetrics := api.NewServer(mocks.NewMockService(ctrl),
		api.WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		})))
	w = httptest.NewRecorder()
	withMetrics.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# metrics")
}

func TestAPIRoutesMounted(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mockSvc := mocks.NewMockService(ctrl)
	mockSvc.EXPECT().ListResources(gomock.Any()).Return([]service.ResourceInfo{})

	router := api.NewServer(mockSvc, api.WithMiddlewares(api.LoggingMiddleware))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v0/resources", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
