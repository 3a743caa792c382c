package coupon

import (
	"context"
	"errors"
	"time"

	"flyerportal/pkg/db/option"
	"flyerportal/pkg/errutil"
	"flyerportal/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrUserIDRequired  = errutil.BadRequest("User ID is required", nil)
	ErrFlyerIDRequired = errutil.BadRequest("Flyer ID is required", nil)
	ErrFlyerNotFound   = errutil.NotFound("Flyer not found", nil)
	ErrNoCoupon        = errutil.BadRequest("This flyer does not have a coupon", nil)
	ErrAlreadyClaimed  = errutil.Conflict("You have already claimed this coupon", nil)
)

type Service struct {
	node *snowflake.Node
	now  func() time.Time

	coupon repository.Repository[Coupon]
	flyer  repository.Repository[flyer]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node:   p.Node,
		now:    func() time.Time { return time.Now().UTC() },
		coupon: repository.ProvideStore[Coupon](p.DB),
		flyer:  repository.ProvideStore[flyer](p.DB),
	}
}

// Claim copies the flyer's coupon to the user. The unique (user, flyer) index
// rejects a second claim even when two requests race past the lookup.
func (s *Service) Claim(ctx context.Context, userID, flyerID string) (*Coupon, error) {
	zapLog := zap.L().With(zap.String("user_id", userID), zap.String("flyer_id", flyerID))

	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if flyerID == "" {
		return nil, ErrFlyerIDRequired
	}

	f, err := s.flyer.FindOne(ctx, &flyer{ID: flyerID})
	if err != nil {
		zapLog.Error("failed to read flyer", zap.Error(err))
		return nil, err
	}
	if f == nil {
		return nil, ErrFlyerNotFound
	}
	if f.CouponType == "" {
		return nil, ErrNoCoupon
	}

	existing, err := s.coupon.FindOne(ctx, &Coupon{UserID: userID, FlyerID: flyerID})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyClaimed
	}

	c := &Coupon{
		ID:              s.node.Generate().String(),
		UserID:          userID,
		FlyerID:         flyerID,
		CompanyIcon:     f.CompanyIcon,
		CouponType:      f.CouponType,
		CouponFile:      f.CouponFile,
		TermsConditions: f.TermsConditions,
		ExpiredDate:     f.ExpiredDate,
		DiscountValue:   f.DiscountValue,
		ItemDescription: f.ItemDescription,
		Status:          StatusActive,
		ClaimedAt:       s.now(),
	}
	if err := s.coupon.Create(ctx, c); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyClaimed
		}
		zapLog.Error("failed to store coupon", zap.Error(err))
		return nil, err
	}

	zapLog.Info("coupon claimed", zap.String("coupon_id", c.ID))
	return c, nil
}

// ListMine returns the user's coupons, newest first, optionally filtered by status.
func (s *Service) ListMine(ctx context.Context, userID, status string) ([]*Coupon, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	return s.coupon.Find(ctx, &Coupon{UserID: userID, Status: status},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "claimed_at",
			OrderBy: "desc",
			Allow:   map[string]bool{"claimed_at": true},
		}),
	)
}
