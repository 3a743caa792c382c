package coupon

import "time"

const (
	StatusActive  = "active"
	StatusUsed    = "used"
	StatusExpired = "expired"
)

// Coupon is a user's copy of a flyer's coupon, taken at claim time.
type Coupon struct {
	ID              string    `gorm:"column:id;primaryKey" json:"id"`
	UserID          string    `gorm:"column:user_id;uniqueIndex:idx_coupons_user_flyer,priority:1" json:"userId"`
	FlyerID         string    `gorm:"column:flyer_id;uniqueIndex:idx_coupons_user_flyer,priority:2" json:"flyerId"`
	CompanyIcon     string    `gorm:"column:company_icon" json:"companyIcon"`
	CouponType      string    `gorm:"column:coupon_type" json:"couponType"`
	CouponFile      string    `gorm:"column:coupon_file" json:"couponFile"`
	TermsConditions string    `gorm:"column:terms_conditions" json:"termsConditions"`
	ExpiredDate     string    `gorm:"column:expired_date" json:"expiredDate"`
	DiscountValue   string    `gorm:"column:discount_value" json:"discountValue"`
	ItemDescription string    `gorm:"column:item_description" json:"itemDescription"`
	Status          string    `gorm:"column:status;index" json:"status"`
	IsUsed          bool      `gorm:"column:is_used" json:"isUsed"`
	ClaimedAt       time.Time `gorm:"column:claimed_at;index" json:"claimedAt"`
}

func (Coupon) TableName() string { return "coupons" }

// flyer is the coupon-bearing slice of the flyers table.
type flyer struct {
	ID              string `gorm:"column:id;primaryKey"`
	CompanyIcon     string `gorm:"column:company_icon"`
	CouponType      string `gorm:"column:coupon_type"`
	CouponFile      string `gorm:"column:coupon_file"`
	TermsConditions string `gorm:"column:terms_conditions"`
	ExpiredDate     string `gorm:"column:expired_date"`
	DiscountValue   string `gorm:"column:discount_value"`
	ItemDescription string `gorm:"column:item_description"`
}

func (flyer) TableName() string { return "flyers" }
