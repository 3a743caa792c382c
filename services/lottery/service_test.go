package lottery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"flyerportal/pkg/errutil"
	"flyerportal/pkg/events"
	eventsmock "flyerportal/pkg/events/mock"
	"flyerportal/services/statistic"
	"flyerportal/services/testutil"
	"flyerportal/services/wallet"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	svc     *Service
	db      *gorm.DB
	wallets *wallet.Service
	stats   *statistic.Service
}

func newFixture(t *testing.T, rng RandomSource, publisher events.Publisher) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t,
		&flyer{}, &Pool{}, &Claim{},
		&wallet.Wallet{}, &wallet.Transaction{},
		&statistic.CompanyStatistic{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	wallets := wallet.NewService(wallet.ServiceParams{DB: db, Node: node})
	stats := statistic.NewService(statistic.ServiceParams{DB: db, Node: node})

	svc := NewService(ServiceParams{
		DB:         db,
		Node:       node,
		Wallets:    wallets,
		Statistics: stats,
		Publisher:  publisher,
		Random:     rng,
	})

	return &fixture{svc: svc, db: db, wallets: wallets, stats: stats}
}

func fixed(v float64) RandomSource {
	return func() float64 { return v }
}

func (f *fixture) seedFlyer(t *testing.T, id, companyID, budget string) {
	t.Helper()
	require.NoError(t, f.db.Create(&flyer{ID: id, CompanyID: companyID, Budget: dec(budget)}).Error)
}

func (f *fixture) seedUser(t *testing.T, userID string) *wallet.Wallet {
	t.Helper()
	w, err := f.wallets.OpenWallet(context.Background(), userID)
	require.NoError(t, err)
	return w
}

func (f *fixture) provision(t *testing.T, flyerID, budget string) {
	t.Helper()
	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.Provision(context.Background(), tx, flyerID, dec(budget))
		return err
	})
	require.NoError(t, err)
}

func (f *fixture) pool(t *testing.T, flyerID string) *Pool {
	t.Helper()
	var p Pool
	require.NoError(t, f.db.Where("flyer_id = ?", flyerID).Take(&p).Error)
	return &p
}

func (f *fixture) balance(t *testing.T, userID string) decimal.Decimal {
	t.Helper()
	w, err := f.wallets.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return w.Balance
}

func TestClaimCreditsWallet(t *testing.T) {
	f := newFixture(t, fixed(0.5), nil)
	ctx := context.Background()
	f.seedFlyer(t, "flyer-1", "company-1", "240")
	f.provision(t, "flyer-1", "240")
	w := f.seedUser(t, "user-1")

	res, err := f.svc.Claim(ctx, "user-1", "flyer-1")
	require.NoError(t, err)
	require.Equal(t, ClaimOutcomeClaimed, res.Outcome)
	requireDecimal(t, "7.68", res.Claim.Reward)
	require.Equal(t, int64(1), res.Claim.ClaimNumber)
	requireDecimal(t, "145.92", res.Claim.RemainingAfter)
	require.Equal(t, w.ID, res.Claim.WalletID)
	require.Equal(t, int64(20), res.Summary.MaxUsers)
	requireDecimal(t, "7.68", res.Summary.AvgMoneyPerUser)

	requireDecimal(t, "7.68", f.balance(t, "user-1"))

	p := f.pool(t, "flyer-1")
	require.Equal(t, int64(1), p.Claims)
	requireDecimal(t, "145.92", p.Remaining)

	stat, err := f.stats.Get(ctx, "company-1", statistic.Period(res.Claim.ClaimedAt))
	require.NoError(t, err)
	require.Equal(t, int64(1), stat.ClaimCount)
	requireDecimal(t, "7.68", stat.TotalReward)
}

func TestClaimIsIdempotent(t *testing.T) {
	f := newFixture(t, DefaultRandomSource(), nil)
	ctx := context.Background()
	f.seedFlyer(t, "flyer-1", "company-1", "240")
	f.provision(t, "flyer-1", "240")
	f.seedUser(t, "user-1")

	first, err := f.svc.Claim(ctx, "user-1", "flyer-1")
	require.NoError(t, err)
	require.Equal(t, ClaimOutcomeClaimed, first.Outcome)

	second, err := f.svc.Claim(ctx, "user-1", "flyer-1")
	require.NoError(t, err)
	require.Equal(t, ClaimOutcomeAlreadyClaimed, second.Outcome)
	require.True(t, first.Claim.Reward.Equal(second.Claim.Reward))
	require.Equal(t, first.Claim.ClaimNumber, second.Claim.ClaimNumber)
	require.Equal(t, first.Claim.ID, second.Claim.ID)

	p := f.pool(t, "flyer-1")
	require.Equal(t, int64(1), p.Claims)
	require.True(t, p.Remaining.Equal(first.Claim.RemainingAfter))
	require.True(t, f.balance(t, "user-1").Equal(first.Claim.Reward))

	stat, err := f.stats.Get(ctx, "company-1", statistic.Period(first.Claim.ClaimedAt))
	require.NoError(t, err)
	require.Equal(t, int64(1), stat.ClaimCount)
}

func TestClaimDepletionBoundary(t *testing.T) {
	f := newFixture(t, DefaultRandomSource(), nil)
	ctx := context.Background()
	f.seedFlyer(t, "flyer-1", "company-1", "240")
	f.provision(t, "flyer-1", "240")

	lotteryMoney := dec("153.60")
	total := decimal.Zero
	var claimed []*ClaimResult
	for i := 0; i < 20; i++ {
		user := fmt.Sprintf("user-%02d", i)
		f.seedUser(t, user)

		before := f.pool(t, "flyer-1")
		res, err := f.svc.Claim(ctx, user, "flyer-1")
		require.NoError(t, err)
		if res.Outcome == ClaimOutcomePoolDepleted {
			// Draws exhausted the money before maxUsers; nothing is credited.
			require.True(t, before.Remaining.IsZero())
			require.True(t, f.balance(t, user).IsZero())
			break
		}
		require.Equal(t, ClaimOutcomeClaimed, res.Outcome)
		require.Equal(t, int64(i+1), res.Claim.ClaimNumber)
		require.True(t, res.Claim.Reward.LessThanOrEqual(before.Remaining))
		if i == 19 {
			require.True(t, res.Claim.Reward.Equal(before.Remaining))
		}

		total = total.Add(res.Claim.Reward)
		after := f.pool(t, "flyer-1")
		require.True(t, total.Equal(lotteryMoney.Sub(after.Remaining)), "total %s remaining %s", total, after.Remaining)
		claimed = append(claimed, res)
	}

	p := f.pool(t, "flyer-1")
	require.True(t, p.Remaining.IsZero())
	require.Equal(t, PoolStatusDepleted, p.Status)
	require.True(t, total.Equal(lotteryMoney))

	f.seedUser(t, "late")
	res, err := f.svc.Claim(ctx, "late", "flyer-1")
	require.NoError(t, err)
	require.Equal(t, ClaimOutcomePoolDepleted, res.Outcome)
	require.Nil(t, res.Claim)
	require.Equal(t, int64(20), res.Summary.MaxUsers)
	require.True(t, f.balance(t, "late").IsZero())

	var claims int64
	require.NoError(t, f.db.Model(&Claim{}).Where("flyer_id = ?", "flyer-1").Count(&claims).Error)
	require.Equal(t, int64(len(claimed)), claims)

	// Earlier claimants still see their claim after depletion.
	again, err := f.svc.Claim(ctx, "user-00", "flyer-1")
	require.NoError(t, err)
	require.Equal(t, ClaimOutcomeAlreadyClaimed, again.Outcome)
	require.True(t, again.Claim.Reward.Equal(claimed[0].Claim.Reward))
}

func TestLazyProvisioningMatchesCreation(t *testing.T) {
	f := newFixture(t, fixed(0), nil)
	ctx := context.Background()
	f.seedFlyer(t, "lazy", "", "5000")
	f.seedFlyer(t, "eager", "", "5000")
	f.provision(t, "eager", "5000")
	f.seedUser(t, "user-1")

	res, err := f.svc.Claim(ctx, "user-1", "lazy")
	require.NoError(t, err)
	require.Equal(t, ClaimOutcomeClaimed, res.Outcome)
	requireDecimal(t, "3.84", res.Claim.Reward)

	lazy := f.pool(t, "lazy")
	eager := f.pool(t, "eager")
	require.Equal(t, eager.MaxUsers, lazy.MaxUsers)
	require.True(t, eager.LotteryMoney.Equal(lazy.LotteryMoney))
	require.True(t, eager.FinalPool.Equal(lazy.FinalPool))
	require.True(t, eager.EventMoney.Equal(lazy.EventMoney))
	require.Equal(t, int64(1), lazy.Claims)

	// Provisioning twice keeps the first row.
	f.provision(t, "lazy", "9999")
	require.Equal(t, int64(1), f.pool(t, "lazy").Claims)
	require.Equal(t, int64(416), f.pool(t, "lazy").MaxUsers)
}

func TestClaimCallerErrors(t *testing.T) {
	f := newFixture(t, fixed(0.5), nil)
	ctx := context.Background()
	f.seedFlyer(t, "no-budget", "", "0")
	f.seedFlyer(t, "flyer-1", "company-1", "240")
	f.provision(t, "flyer-1", "240")

	cases := []struct {
		name    string
		userID  string
		flyerID string
		status  errutil.CoreStatus
	}{
		{"missing user id", "", "flyer-1", errutil.StatusBadRequest},
		{"missing flyer id", "user-1", "", errutil.StatusBadRequest},
		{"unknown flyer", "user-1", "nope", errutil.StatusNotFound},
		{"missing budget", "user-1", "no-budget", errutil.StatusBadRequest},
		{"no wallet", "ghost", "flyer-1", errutil.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := f.svc.Claim(ctx, tc.userID, tc.flyerID)
			require.Nil(t, res)
			require.True(t, errutil.IsStatus(err, tc.status), fmt.Sprint(err))
		})
	}

	// The failed wallet lookup rolled everything back.
	p := f.pool(t, "flyer-1")
	require.Equal(t, int64(0), p.Claims)
	var claims int64
	require.NoError(t, f.db.Model(&Claim{}).Count(&claims).Error)
	require.Zero(t, claims)
}

func TestClaimRequiresUser(t *testing.T) {
	f := newFixture(t, fixed(0.5), nil)
	ctx := context.Background()
	f.seedFlyer(t, "flyer-1", "company-1", "240")
	f.seedUser(t, "alice")

	_, err := f.svc.Claim(ctx, "alice", "flyer-1")
	require.NoError(t, err)

	res, err := f.svc.Claim(ctx, "", "flyer-1")
	require.Nil(t, res)
	require.ErrorIs(t, err, ErrUserIDRequired)
}

func TestConcurrentClaims(t *testing.T) {
	f := newFixture(t, DefaultRandomSource(), nil)
	ctx := context.Background()
	f.seedFlyer(t, "flyer-1", "company-1", "240")

	const users = 25
	for i := range users {
		f.seedUser(t, fmt.Sprintf("user-%d", i))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*ClaimResult
		errs    []error
	)
	for i := range users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			res, err := f.svc.Claim(ctx, userID, "flyer-1")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			results = append(results, res)
		}(fmt.Sprintf("user-%d", i))
	}
	wg.Wait()
	require.Empty(t, errs)

	numbers := make(map[int64]bool)
	total := decimal.Zero
	var claimed, depleted int
	for _, res := range results {
		switch res.Outcome {
		case ClaimOutcomeClaimed:
			claimed++
			require.False(t, numbers[res.Claim.ClaimNumber], "duplicate claim number %d", res.Claim.ClaimNumber)
			numbers[res.Claim.ClaimNumber] = true
			total = total.Add(res.Claim.Reward)
		case ClaimOutcomePoolDepleted:
			depleted++
		}
	}

	require.Equal(t, 20, claimed)
	require.Equal(t, users-20, depleted)
	for n := int64(1); n <= 20; n++ {
		require.True(t, numbers[n], "missing claim number %d", n)
	}

	p := f.pool(t, "flyer-1")
	require.Equal(t, int64(20), p.Claims)
	requireDecimal(t, "0", p.Remaining)
	requireDecimal(t, "153.60", total)
}

func TestClaimWithoutCompanySkipsStatistics(t *testing.T) {
	f := newFixture(t, fixed(0.5), nil)
	f.seedFlyer(t, "flyer-1", "", "240")
	f.seedUser(t, "user-1")

	res, err := f.svc.Claim(context.Background(), "user-1", "flyer-1")
	require.NoError(t, err)
	require.Equal(t, ClaimOutcomeClaimed, res.Outcome)

	var n int64
	require.NoError(t, f.db.Model(&statistic.CompanyStatistic{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestClaimPublishesEventAndInvalidatesSummary(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := eventsmock.NewMockPublisher(ctrl)

	f := newFixture(t, fixed(0.5), publisher)
	ctx := context.Background()
	f.seedFlyer(t, "flyer-1", "", "240")
	f.seedUser(t, "user-1")

	before, err := f.svc.Summary(ctx, "flyer-1")
	require.NoError(t, err)
	require.Equal(t, int64(0), before.Claims)
	requireDecimal(t, "153.6", before.Remaining)

	publisher.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e events.Event) error {
			require.Equal(t, events.SubjectLotteryClaimed, e.Subject)
			require.Equal(t, "flyer-1", e.Key)
			return errors.New("broker down")
		}).
		Times(1)

	res, err := f.svc.Claim(ctx, "user-1", "flyer-1")
	require.NoError(t, err)
	require.Equal(t, ClaimOutcomeClaimed, res.Outcome)

	after, err := f.svc.Summary(ctx, "flyer-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), after.Claims)
	requireDecimal(t, "145.92", after.Remaining)
}

func TestSummaryUnknownFlyer(t *testing.T) {
	f := newFixture(t, fixed(0.5), nil)

	_, err := f.svc.Summary(context.Background(), "nope")
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))

	_, err = f.svc.Summary(context.Background(), "")
	require.True(t, errutil.IsStatus(err, errutil.StatusBadRequest))
}
