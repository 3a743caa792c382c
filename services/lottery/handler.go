package lottery

import (
	"net/http"
	"time"

	"flyerportal/pkg/errutil"
	"flyerportal/pkg/featureflags"
	"flyerportal/pkg/httpapi"
	"flyerportal/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const MessagePoolDepleted = "All lottery rewards have been claimed"

type Handler struct {
	service *Service
	flags   featureflags.FeatureFlag
}

func NewHandler(service *Service, flags featureflags.FeatureFlag) *Handler {
	return &Handler{service: service, flags: flags}
}

func (h *Handler) Register(api *gin.RouterGroup) {
	api.GET("/lottery", h.Claim)
	api.GET("/lottery/summary", h.Summary)
}

type claimResponse struct {
	Success         bool            `json:"success"`
	Message         string          `json:"message"`
	UserID          string          `json:"userId"`
	FlyerID         string          `json:"flyerId"`
	Reward          decimal.Decimal `json:"reward"`
	ClaimedAt       time.Time       `json:"claimedAt"`
	ClaimNumber     int64           `json:"claimNumber"`
	RemainingAfter  decimal.Decimal `json:"remainingAfter"`
	AvgMoneyPerUser decimal.Decimal `json:"avgMoneyPerUser"`
	MaxUsers        int64           `json:"maxUsers"`
}

type depletedResponse struct {
	Success         bool            `json:"success"`
	Message         string          `json:"message"`
	AvgMoneyPerUser decimal.Decimal `json:"avgMoneyPerUser"`
	MaxUsers        int64           `json:"maxUsers"`
}

// Claim answers every business outcome with 200; only caller and system
// errors use error statuses.
func (h *Handler) Claim(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)

	if h.flags != nil && !h.flags.IsEnabled(c.Request.Context(), p.UserID, featureflags.LotteryClaimsEnabled) {
		httpapi.Error(c, errutil.ServiceUnavailable("Lottery claims are currently disabled", nil))
		return
	}

	flyerID := c.Query("flyerId")
	if flyerID == "" {
		httpapi.Error(c, ErrFlyerIDRequired)
		return
	}

	result, err := h.service.Claim(c.Request.Context(), p.UserID, flyerID)
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	switch result.Outcome {
	case ClaimOutcomePoolDepleted:
		c.JSON(http.StatusOK, depletedResponse{
			Success:         false,
			Message:         MessagePoolDepleted,
			AvgMoneyPerUser: result.Summary.AvgMoneyPerUser,
			MaxUsers:        result.Summary.MaxUsers,
		})
	case ClaimOutcomeAlreadyClaimed:
		c.JSON(http.StatusOK, newClaimResponse("Already claimed", result))
	default:
		c.JSON(http.StatusOK, newClaimResponse("Lottery reward claimed", result))
	}
}

func newClaimResponse(message string, result *ClaimResult) claimResponse {
	return claimResponse{
		Success:         true,
		Message:         message,
		UserID:          result.Claim.UserID,
		FlyerID:         result.Claim.FlyerID,
		Reward:          result.Claim.Reward,
		ClaimedAt:       result.Claim.ClaimedAt,
		ClaimNumber:     result.Claim.ClaimNumber,
		RemainingAfter:  result.Claim.RemainingAfter,
		AvgMoneyPerUser: result.Summary.AvgMoneyPerUser,
		MaxUsers:        result.Summary.MaxUsers,
	}
}

func (h *Handler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context(), c.Query("flyerId"))
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	httpapi.OK(c, "", summary)
}
