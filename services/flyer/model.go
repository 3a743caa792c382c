package flyer

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Type string

const (
	TypeLeaflet Type = "leaflet"
	TypeQuery   Type = "query"
	TypeQR      Type = "qr"
)

func (t Type) Valid() bool {
	switch t {
	case TypeLeaflet, TypeQuery, TypeQR:
		return true
	}
	return false
}

const StatusActive = "active"

type Flyer struct {
	ID        string          `gorm:"column:id;primaryKey" json:"id"`
	Code      string          `gorm:"column:code;uniqueIndex" json:"code"`
	Slug      string          `gorm:"column:slug;index" json:"slug"`
	Title     string          `gorm:"column:title" json:"title"`
	Type      Type            `gorm:"column:type" json:"type"`
	CompanyID string          `gorm:"column:company_id;index" json:"companyId"`
	CreatedBy string          `gorm:"column:created_by" json:"createdBy"`
	Status    string          `gorm:"column:status" json:"status"`
	Budget    decimal.Decimal `gorm:"column:budget;type:decimal(20,2)" json:"budget"`
	Payload   datatypes.JSON  `gorm:"column:payload" json:"data,omitempty"`

	CouponType      string `gorm:"column:coupon_type" json:"couponType,omitempty"`
	CouponFile      string `gorm:"column:coupon_file" json:"couponFile,omitempty"`
	TermsConditions string `gorm:"column:terms_conditions" json:"termsConditions,omitempty"`
	ExpiredDate     string `gorm:"column:expired_date" json:"expiredDate,omitempty"`
	DiscountValue   string `gorm:"column:discount_value" json:"discountValue,omitempty"`
	ItemDescription string `gorm:"column:item_description" json:"itemDescription,omitempty"`
	CompanyIcon     string `gorm:"column:company_icon" json:"companyIcon,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

func (Flyer) TableName() string { return "flyers" }

// Coupon holds the optional coupon a flyer hands out.
type Coupon struct {
	CouponType      string `json:"couponType"`
	CouponFile      string `json:"couponFile"`
	TermsConditions string `json:"termsConditions"`
	ExpiredDate     string `json:"expiredDate"`
	DiscountValue   string `json:"discountValue"`
	ItemDescription string `json:"itemDescription"`
	CompanyIcon     string `json:"companyIcon"`
}

type CreateFlyerRequest struct {
	CompanyID string
	CreatedBy string
	Type      Type
	Title     string
	Budget    decimal.Decimal
	Payload   []byte
	Coupon    Coupon
}

type DistributePayload struct {
	FlyerID string `json:"flyer_id"`
}
