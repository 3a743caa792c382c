package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"flyerportal/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, svc *Service, userID string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(middleware.Error())
	api := r.Group("/api", func(c *gin.Context) {
		middleware.SetPrincipal(c, &middleware.Principal{UserID: userID, Role: middleware.RoleUser})
		c.Next()
	})
	NewHandler(svc).Register(api)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestHandlerAddAndDeduct(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.OpenWallet(context.Background(), "user-1")
	require.NoError(t, err)
	r := newTestRouter(t, svc, "user-1")

	rec, body := doJSON(t, r, http.MethodPost, "/api/payment/add-tokens", gin.H{"amount": 100, "idempotencyKey": "k1"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["success"])
	require.Equal(t, "Tokens added successfully", body["message"])
	data := body["data"].(map[string]any)
	require.NotEmpty(t, data["transactionId"])
	require.Equal(t, StatusCompleted, data["status"])

	rec, body = doJSON(t, r, http.MethodPost, "/api/payment/add-tokens", gin.H{"amount": 100, "idempotencyKey": "k1"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Transaction already processed (idempotent)", body["message"])

	rec, body = doJSON(t, r, http.MethodPost, "/api/payment/deduct-tokens", gin.H{"amount": 500, "idempotencyKey": "k2"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, false, body["success"])
	require.Equal(t, "Insufficient balance in wallet", body["message"])
}

func TestHandlerValidation(t *testing.T) {
	svc, _ := newTestService(t, nil)
	r := newTestRouter(t, svc, "user-1")

	rec, body := doJSON(t, r, http.MethodPost, "/api/payment/add-tokens", gin.H{"amount": 10})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Amount and idempotencyKey are required", body["message"])

	rec, body = doJSON(t, r, http.MethodPost, "/api/payment/deduct-tokens", gin.H{"amount": -1, "idempotencyKey": "k"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Amount must be positive", body["message"])

	rec, body = doJSON(t, r, http.MethodPost, "/api/payment/add-tokens", gin.H{"amount": 10.999, "idempotencyKey": "k"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Amount must have at most 2 decimal places", body["message"])

	rec, _ = doJSON(t, r, http.MethodGet, "/api/payment/wallet", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerTransactions(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.OpenWallet(ctx, "user-1")
	require.NoError(t, err)
	res, err := svc.AddTokens(ctx, AddTokensRequest{UserID: "user-1", Amount: dec("3"), IdempotencyKey: "k"})
	require.NoError(t, err)
	r := newTestRouter(t, svc, "user-1")

	rec, body := doJSON(t, r, http.MethodGet, "/api/payment/transactions?limit=5000&type=ADD", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["data"], 1)
	page := body["pagination"].(map[string]any)
	require.EqualValues(t, MaxListLimit, page["limit"])
	require.EqualValues(t, 1, page["count"])

	rec, _ = doJSON(t, r, http.MethodGet, "/api/payment/transaction/"+res.Transaction.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = doJSON(t, r, http.MethodGet, "/api/payment/transaction/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Transaction not found", body["message"])
}

func TestHandlerOpenWallet(t *testing.T) {
	svc, _ := newTestService(t, nil)
	r := newTestRouter(t, svc, "account-service")

	rec, body := doJSON(t, r, http.MethodPost, "/api/internal/wallets", gin.H{"userId": "user-9"})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "user-9", body["data"].(map[string]any)["userId"])

	rec, _ = doJSON(t, r, http.MethodPost, "/api/internal/wallets", gin.H{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
