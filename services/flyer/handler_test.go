package flyer

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"flyerportal/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, svc *Service, principal *middleware.Principal) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(middleware.Error())
	api := r.Group("/api", func(c *gin.Context) {
		middleware.SetPrincipal(c, principal)
		c.Next()
	})
	NewHandler(svc).Register(api)
	return r
}

func post(t *testing.T, r http.Handler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/flyer", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestHandlerCreateFlyer(t *testing.T) {
	f := newFixture(t, nil)
	staff := &middleware.Principal{UserID: "staff-1", CompanyID: "company-1", Role: middleware.RoleStaff}
	r := newTestRouter(t, f.svc, staff)

	rec, body := post(t, r, `{
		"type": "qr",
		"title": "Grand Opening",
		"budget": 5000,
		"data": {"url": "https://example.com"},
		"couponType": "voucher",
		"termsConditions": "One per customer"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, true, body["success"])
	require.Equal(t, "qr flyer created successfully", body["message"])
	require.NotEmpty(t, body["flyerId"])

	data := body["data"].(map[string]any)
	require.Equal(t, "company-1", data["companyId"])
	require.Equal(t, "staff-1", data["createdBy"])
	require.Equal(t, "voucher", data["couponType"])
	require.Equal(t, map[string]any{"url": "https://example.com"}, data["data"])
}

func TestHandlerCreateFlyerErrors(t *testing.T) {
	f := newFixture(t, nil)

	t.Run("bad body", func(t *testing.T) {
		r := newTestRouter(t, f.svc, &middleware.Principal{UserID: "s", CompanyID: "c", Role: middleware.RoleStaff})
		rec, body := post(t, r, `{"type":`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "Invalid request body", body["message"])
	})

	t.Run("unknown type", func(t *testing.T) {
		r := newTestRouter(t, f.svc, &middleware.Principal{UserID: "s", CompanyID: "c", Role: middleware.RoleStaff})
		rec, _ := post(t, r, `{"type":"poster","budget":100}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no company", func(t *testing.T) {
		r := newTestRouter(t, f.svc, &middleware.Principal{UserID: "s", Role: middleware.RoleStaff})
		rec, body := post(t, r, `{"type":"leaflet","budget":100}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "Company ID is required", body["message"])
	})
}
