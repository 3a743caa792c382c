package coupon

import (
	"flyerportal/pkg/httpapi"
	"flyerportal/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(api *gin.RouterGroup) {
	coupon := api.Group("/coupon")
	coupon.POST("/claim", h.Claim)
	coupon.GET("/my-coupons", h.ListMine)
}

type claimRequest struct {
	FlyerID string `json:"flyerId"`
}

func (h *Handler) Claim(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)

	var req claimRequest
	if !httpapi.BindJSON(c, &req) {
		return
	}

	coupon, err := h.service.Claim(c.Request.Context(), p.UserID, req.FlyerID)
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	httpapi.Created(c, "Coupon claimed successfully", coupon)
}

func (h *Handler) ListMine(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)

	coupons, err := h.service.ListMine(c.Request.Context(), p.UserID, c.Query("status"))
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	httpapi.OK(c, "", coupons)
}
