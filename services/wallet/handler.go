package wallet

import (
	"flyerportal/pkg/db/pagination"
	"flyerportal/pkg/errutil"
	"flyerportal/pkg/httpapi"
	"flyerportal/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(api *gin.RouterGroup) {
	payment := api.Group("/payment")
	payment.POST("/add-tokens", h.AddTokens)
	payment.POST("/deduct-tokens", h.DeductTokens)
	payment.GET("/wallet", h.GetWallet)
	payment.GET("/transactions", h.ListTransactions)
	payment.GET("/transaction/:transactionId", h.GetTransaction)

	api.POST("/internal/wallets", h.OpenWallet)
}

type tokensRequest struct {
	Amount         *decimal.Decimal `json:"amount"`
	Description    string           `json:"description"`
	IdempotencyKey string           `json:"idempotencyKey"`
}

func (r tokensRequest) validate() error {
	if r.Amount == nil || r.IdempotencyKey == "" {
		return errutil.BadRequest("Amount and idempotencyKey are required", nil)
	}
	if !r.Amount.IsPositive() {
		return errutil.BadRequest("Amount must be positive", nil)
	}
	if !HasCentPrecision(*r.Amount) {
		return ErrAmountPrecision
	}
	return nil
}

type transactionSummary struct {
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	NewBalance    decimal.Decimal `json:"newBalance"`
	Status        string          `json:"status"`
}

func summarize(t *Transaction) transactionSummary {
	return transactionSummary{
		TransactionID: t.ID,
		Amount:        t.Amount,
		NewBalance:    t.NewBalance,
		Status:        t.Status,
	}
}

func (h *Handler) AddTokens(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)

	var req tokensRequest
	if !httpapi.BindJSON(c, &req) {
		return
	}
	if err := req.validate(); err != nil {
		httpapi.Error(c, err)
		return
	}

	result, err := h.service.AddTokens(c.Request.Context(), AddTokensRequest{
		UserID:         p.UserID,
		Amount:         *req.Amount,
		IdempotencyKey: req.IdempotencyKey,
		Description:    req.Description,
	})
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	h.respond(c, result, "Tokens added successfully")
}

func (h *Handler) DeductTokens(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)

	var req tokensRequest
	if !httpapi.BindJSON(c, &req) {
		return
	}
	if err := req.validate(); err != nil {
		httpapi.Error(c, err)
		return
	}

	result, err := h.service.DeductTokens(c.Request.Context(), DeductTokensRequest{
		UserID:         p.UserID,
		Amount:         *req.Amount,
		IdempotencyKey: req.IdempotencyKey,
		Description:    req.Description,
	})
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	h.respond(c, result, "Tokens deducted successfully")
}

func (h *Handler) respond(c *gin.Context, result *TransactionResult, completed string) {
	switch result.Outcome {
	case TransactionOutcomeInsufficientBalance:
		httpapi.Error(c, errutil.BadRequest("Insufficient balance in wallet", nil))
	case TransactionOutcomeReplayed:
		httpapi.OK(c, "Transaction already processed (idempotent)", summarize(result.Transaction))
	default:
		httpapi.OK(c, completed, summarize(result.Transaction))
	}
}

func (h *Handler) GetWallet(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)

	w, err := h.service.GetBalance(c.Request.Context(), p.UserID)
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	httpapi.OK(c, "", gin.H{
		"walletId":  w.ID,
		"userId":    w.UserID,
		"balance":   w.Balance,
		"currency":  w.Currency,
		"createdAt": w.CreatedAt,
		"updatedAt": w.UpdatedAt,
		"isActive":  w.IsActive,
	})
}

type listTransactionsQuery struct {
	pagination.OffsetPagination
	Type string `form:"type"`
}

func (h *Handler) ListTransactions(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)

	var q listTransactionsQuery
	if !httpapi.BindQuery(c, &q) {
		return
	}

	// Unknown types are ignored rather than rejected.
	typ := TransactionType(q.Type)
	if !typ.Valid() {
		typ = ""
	}

	txs, err := h.service.ListTransactions(c.Request.Context(), p.UserID, ListTransactionsFilter{
		Type:   typ,
		Limit:  q.Limit,
		Offset: q.Offset,
	})
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	page := q.OffsetPagination.Normalize(DefaultListLimit, MaxListLimit)
	httpapi.Page(c, txs, httpapi.OffsetPage{
		Limit:  page.Limit,
		Offset: page.Offset,
		Count:  len(txs),
	})
}

func (h *Handler) GetTransaction(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)

	record, err := h.service.GetTransaction(c.Request.Context(), p.UserID, c.Param("transactionId"))
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	httpapi.OK(c, "", record)
}

type openWalletRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// OpenWallet is called by the account service right after a user registers.
func (h *Handler) OpenWallet(c *gin.Context) {
	var req openWalletRequest
	if !httpapi.BindJSON(c, &req) {
		return
	}

	w, err := h.service.OpenWallet(c.Request.Context(), req.UserID)
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	httpapi.Created(c, "Wallet ready", w)
}
