package flyer

import (
	"encoding/json"
	"fmt"
	"net/http"

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
	api.POST("/flyer", h.CreateFlyer)
}

type createFlyerRequest struct {
	Type   Type            `json:"type"`
	Title  string          `json:"title"`
	Budget decimal.Decimal `json:"budget"`
	Data   json.RawMessage `json:"data"`
	Coupon
}

type createFlyerResponse struct {
	Success bool   `json:"success"`
	FlyerID string `json:"flyerId"`
	Type    Type   `json:"type"`
	Message string `json:"message"`
	Data    *Flyer `json:"data"`
}

func (h *Handler) CreateFlyer(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)

	var req createFlyerRequest
	if !httpapi.BindJSON(c, &req) {
		return
	}

	f, err := h.service.CreateFlyer(c.Request.Context(), CreateFlyerRequest{
		CompanyID: p.CompanyID,
		CreatedBy: p.UserID,
		Type:      req.Type,
		Title:     req.Title,
		Budget:    req.Budget,
		Payload:   req.Data,
		Coupon:    req.Coupon,
	})
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, createFlyerResponse{
		Success: true,
		FlyerID: f.ID,
		Type:    f.Type,
		Message: fmt.Sprintf("%s flyer created successfully", f.Type),
		Data:    f,
	})
}
