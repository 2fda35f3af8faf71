package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"rewards-engine/services/testutil"
)

func serve(t *testing.T, h HealthService, path string) (*httptest.ResponseRecorder, Health) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestLiveness(t *testing.T) {
	w, body := serve(t, ProvideHealth(HealthParams{}), "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, StatusHealthy, body.Status)
}

func TestReadiness(t *testing.T) {
	db := testutil.NewTestDB(t)
	h := ProvideHealth(HealthParams{DB: db})

	w, body := serve(t, h, "/readyz")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body.Deps, 1)
	require.Equal(t, "sqlite", body.Deps[0].Name)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w, body = serve(t, h, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, StatusUnhealthy, body.Status)
	require.Equal(t, StatusUnhealthy, body.Deps[0].Status)
}
