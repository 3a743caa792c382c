package lottery

import (
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
)

var (
	SpreadingCoefficient = decimal.RequireFromString("0.6")
	LotteryFactor        = decimal.NewFromInt(20)
	EventCostPercent     = decimal.RequireFromString("0.2")
	EventUsagePercent    = decimal.RequireFromString("0.8")

	fluctuationLow  = decimal.RequireFromString("0.5")
	fluctuationHigh = decimal.RequireFromString("1.5")
)

const (
	PoolStatusActive   = "active"
	PoolStatusDepleted = "depleted"
)

// RandomSource returns a float64 in [0, 1).
type RandomSource func() float64

func DefaultRandomSource() RandomSource {
	return rand.Float64
}

// Pool is the depleting reward fund of one flyer, keyed by the flyer id.
type Pool struct {
	FlyerID              string          `gorm:"column:flyer_id;primaryKey" json:"flyerId"`
	Pool                 decimal.Decimal `gorm:"column:pool;type:decimal(20,2)" json:"pool"`
	SpreadingCoefficient decimal.Decimal `gorm:"column:spreading_coefficient;type:decimal(20,4)" json:"spreadingCoefficient"`
	LotteryFactor        decimal.Decimal `gorm:"column:lottery_factor;type:decimal(20,4)" json:"lotteryFactor"`
	FinalPool            decimal.Decimal `gorm:"column:final_pool;type:decimal(20,2)" json:"finalPool"`
	MaxUsers             int64           `gorm:"column:max_users" json:"maxUsers"`
	EventCostPercent     decimal.Decimal `gorm:"column:event_cost_percent;type:decimal(20,4)" json:"eventCostPercent"`
	EventUsagePercent    decimal.Decimal `gorm:"column:event_usage_percent;type:decimal(20,4)" json:"eventUsagePercent"`
	EventMoney           decimal.Decimal `gorm:"column:event_money;type:decimal(20,2)" json:"eventMoney"`
	LotteryMoney         decimal.Decimal `gorm:"column:lottery_money;type:decimal(20,2)" json:"lotteryMoney"`
	Claims               int64           `gorm:"column:claims;not null" json:"claims"`
	Remaining            decimal.Decimal `gorm:"column:remaining;type:decimal(20,2)" json:"remaining"`
	Status               string          `gorm:"column:status" json:"status"`
	CreatedAt            time.Time       `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt            time.Time       `gorm:"column:updated_at" json:"updatedAt"`
}

func (Pool) TableName() string { return "lottery_pools" }

// NewPool derives a pool from the declared budget. The result depends on the
// budget only, so concurrent initializers produce identical rows.
// Stored amounts are truncated to cents, and lotteryMoney is taken from the
// truncated eventMoney so the two columns always agree.
func NewPool(flyerID string, budget decimal.Decimal, now time.Time) *Pool {
	finalPool := budget.Div(SpreadingCoefficient)
	maxUsers := finalPool.Div(LotteryFactor).Floor().IntPart()
	eventMoney := budget.Mul(decimal.NewFromInt(1).Sub(EventCostPercent)).Truncate(2)
	lotteryMoney := eventMoney.Mul(EventUsagePercent).Truncate(2)

	status := PoolStatusActive
	if maxUsers <= 0 || !lotteryMoney.IsPositive() {
		status = PoolStatusDepleted
	}

	return &Pool{
		FlyerID:              flyerID,
		Pool:                 budget,
		SpreadingCoefficient: SpreadingCoefficient,
		LotteryFactor:        LotteryFactor,
		FinalPool:            finalPool.Truncate(2),
		MaxUsers:             maxUsers,
		EventCostPercent:     EventCostPercent,
		EventUsagePercent:    EventUsagePercent,
		EventMoney:           eventMoney,
		LotteryMoney:         lotteryMoney,
		Claims:               0,
		Remaining:            lotteryMoney,
		Status:               status,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// AvgMoneyPerUser is lotteryMoney / maxUsers, unrounded.
func (p *Pool) AvgMoneyPerUser() decimal.Decimal {
	if p.MaxUsers <= 0 {
		return decimal.Zero
	}
	return p.LotteryMoney.Div(decimal.NewFromInt(p.MaxUsers))
}

func (p *Pool) Depleted() bool {
	return p.Claims >= p.MaxUsers || !p.Remaining.IsPositive()
}

// DrawReward computes the next claimant's reward from the current state.
// The last eligible claimant takes everything that is left; everyone else gets
// a uniform draw within ±50% of the average, floored to cents and never more
// than what remains.
func (p *Pool) DrawReward(rng RandomSource) decimal.Decimal {
	if p.Claims == p.MaxUsers-1 {
		return p.Remaining
	}

	avg := p.AvgMoneyPerUser()
	lo := decimal.Max(decimal.Zero, avg.Mul(fluctuationLow))
	hi := decimal.Min(p.Remaining, avg.Mul(fluctuationHigh))

	reward := decimal.NewFromFloat(rng()).Mul(hi.Sub(lo)).Add(lo).Truncate(2)
	if reward.GreaterThan(p.Remaining) {
		reward = p.Remaining
	}
	if reward.IsNegative() {
		reward = decimal.Zero
	}
	return reward
}

// Settle applies a drawn reward to the in-memory state.
func (p *Pool) Settle(reward decimal.Decimal, now time.Time) {
	p.Claims++
	p.Remaining = decimal.Max(decimal.Zero, p.Remaining.Sub(reward))
	p.UpdatedAt = now
	if p.Depleted() {
		p.Status = PoolStatusDepleted
	}
}

// Claim is the idempotency marker of one (flyer, user) pair.
type Claim struct {
	ID             string          `gorm:"column:id;primaryKey" json:"id"`
	FlyerID        string          `gorm:"column:flyer_id;uniqueIndex:idx_lottery_claims_flyer_user,priority:1" json:"flyerId"`
	UserID         string          `gorm:"column:user_id;uniqueIndex:idx_lottery_claims_flyer_user,priority:2" json:"userId"`
	WalletID       string          `gorm:"column:wallet_id" json:"walletId"`
	Reward         decimal.Decimal `gorm:"column:reward;type:decimal(20,2)" json:"reward"`
	ClaimNumber    int64           `gorm:"column:claim_number" json:"claimNumber"`
	RemainingAfter decimal.Decimal `gorm:"column:remaining_after;type:decimal(20,2)" json:"remainingAfter"`
	ClaimedAt      time.Time       `gorm:"column:claimed_at;index" json:"claimedAt"`
}

func (Claim) TableName() string { return "lottery_claims" }

// flyer is the slice of the flyers table the lottery needs.
type flyer struct {
	ID        string          `gorm:"column:id;primaryKey"`
	CompanyID string          `gorm:"column:company_id"`
	Budget    decimal.Decimal `gorm:"column:budget;type:decimal(20,2)"`
}

func (flyer) TableName() string { return "flyers" }

type ClaimOutcome string

const (
	ClaimOutcomeClaimed        ClaimOutcome = "CLAIMED"
	ClaimOutcomeAlreadyClaimed ClaimOutcome = "ALREADY_CLAIMED"
	ClaimOutcomePoolDepleted   ClaimOutcome = "POOL_DEPLETED"
)

// Summary is the display view of a pool.
type Summary struct {
	FlyerID         string          `json:"flyerId"`
	MaxUsers        int64           `json:"maxUsers"`
	AvgMoneyPerUser decimal.Decimal `json:"avgMoneyPerUser"`
	LotteryMoney    decimal.Decimal `json:"lotteryMoney"`
	Claims          int64           `json:"claims"`
	Remaining       decimal.Decimal `json:"remaining"`
	Depleted        bool            `json:"depleted"`
}

func (p *Pool) Summary() Summary {
	return Summary{
		FlyerID:         p.FlyerID,
		MaxUsers:        p.MaxUsers,
		AvgMoneyPerUser: p.AvgMoneyPerUser().Round(2),
		LotteryMoney:    p.LotteryMoney,
		Claims:          p.Claims,
		Remaining:       p.Remaining,
		Depleted:        p.Depleted(),
	}
}

// ClaimResult carries the claim record for Claimed and AlreadyClaimed; it is
// nil for PoolDepleted.
type ClaimResult struct {
	Outcome ClaimOutcome
	Claim   *Claim
	Summary Summary
}
