package statistic

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const periodLayout = "2006-01"

// CompanyStatistic is a monthly rollup per company. It is derived data and can
// always be rebuilt from flyers and lottery claims.
type CompanyStatistic struct {
	ID              string          `gorm:"column:id;primaryKey" json:"id"`
	CompanyID       string          `gorm:"column:company_id;uniqueIndex:idx_company_statistics_period,priority:1" json:"companyId"`
	Period          string          `gorm:"column:period;uniqueIndex:idx_company_statistics_period,priority:2" json:"period"`
	Year            int             `gorm:"column:year" json:"year"`
	Month           int             `gorm:"column:month" json:"month"`
	ClaimCount      int64           `gorm:"column:claim_count;not null;default:0" json:"claimCount"`
	TotalReward     decimal.Decimal `gorm:"column:total_reward;type:decimal(20,2);not null;default:0" json:"totalReward"`
	FlyerCount      int64           `gorm:"column:flyer_count;not null;default:0" json:"flyerCount"`
	TotalMaxUsers   int64           `gorm:"column:total_max_users;not null;default:0" json:"totalMaxUsers"`
	TotalEventMoney decimal.Decimal `gorm:"column:total_event_money;type:decimal(20,2);not null;default:0" json:"totalEventMoney"`
	CreatedAt       time.Time       `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt       time.Time       `gorm:"column:updated_at" json:"updatedAt"`
}

func (CompanyStatistic) TableName() string { return "company_statistics" }

// Period formats the month bucket of t in UTC, e.g. "2026-01".
func Period(t time.Time) string {
	return t.UTC().Format(periodLayout)
}

// PeriodRange returns the half-open [start, end) interval of a "YYYY-MM" period.
func PeriodRange(period string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(periodLayout, period, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid period %q: %w", period, err)
	}
	return start, start.AddDate(0, 1, 0), nil
}

// Delta is an additive change applied to one company month.
type Delta struct {
	ClaimCount      int64
	TotalReward     decimal.Decimal
	FlyerCount      int64
	TotalMaxUsers   int64
	TotalEventMoney decimal.Decimal
}

type RebuildPayload struct {
	CompanyID string `json:"company_id"`
	Period    string `json:"period"`
}
