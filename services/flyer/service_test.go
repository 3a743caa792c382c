package flyer

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"flyerportal/pkg/errutil"
	"flyerportal/pkg/featureflags"
	"flyerportal/pkg/taskname"
	"flyerportal/services/lottery"
	"flyerportal/services/statistic"
	"flyerportal/services/testutil"
	"flyerportal/services/wallet"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeSequence struct {
	n int
}

func (f *fakeSequence) NextFlyerCode(_ context.Context, _ string) (string, error) {
	f.n++
	return fmt.Sprintf("FLY-260301-%03dAB", f.n), nil
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: task.Type()}, nil
}

type fixture struct {
	svc      *Service
	db       *gorm.DB
	lottery  *lottery.Service
	wallets  *wallet.Service
	stats    *statistic.Service
	enqueuer *fakeEnqueuer
}

func newFixture(t *testing.T, flags featureflags.FeatureFlag) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t,
		&Flyer{}, &lottery.Pool{}, &lottery.Claim{},
		&wallet.Wallet{}, &wallet.Transaction{},
		&statistic.CompanyStatistic{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	wallets := wallet.NewService(wallet.ServiceParams{DB: db, Node: node})
	stats := statistic.NewService(statistic.ServiceParams{DB: db, Node: node})
	lot := lottery.NewService(lottery.ServiceParams{
		DB:         db,
		Node:       node,
		Wallets:    wallets,
		Statistics: stats,
		Random:     func() float64 { return 0.5 },
	})

	enqueuer := &fakeEnqueuer{}
	p := ServiceParams{
		DB:         db,
		Node:       node,
		Seq:        &fakeSequence{},
		Lottery:    lot,
		Statistics: stats,
		Wallets:    wallets,
		Enqueuer:   enqueuer,
	}
	if flags != nil {
		p.Flags = flags
	}

	return &fixture{
		svc:      NewService(p),
		db:       db,
		lottery:  lot,
		wallets:  wallets,
		stats:    stats,
		enqueuer: enqueuer,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func validRequest() CreateFlyerRequest {
	return CreateFlyerRequest{
		CompanyID: "company-1",
		CreatedBy: "staff-1",
		Type:      TypeLeaflet,
		Title:     "Spring Sale",
		Budget:    dec("5000"),
		Payload:   []byte(`{"headline":"50% off"}`),
		Coupon:    Coupon{CouponType: "discount", DiscountValue: "50%"},
	}
}

func TestCreateFlyerProvisionsPool(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	fl, err := f.svc.CreateFlyer(ctx, validRequest())
	require.NoError(t, err)
	require.NotEmpty(t, fl.ID)
	require.Equal(t, "FLY-260301-001AB", fl.Code)
	require.Equal(t, "spring-sale-fly-260301-001ab", fl.Slug)
	require.Equal(t, StatusActive, fl.Status)
	require.Equal(t, "discount", fl.CouponType)

	stored, err := f.svc.GetFlyer(ctx, fl.ID)
	require.NoError(t, err)
	require.JSONEq(t, `{"headline":"50% off"}`, string(stored.Payload))
	require.True(t, dec("5000").Equal(stored.Budget))

	var pool lottery.Pool
	require.NoError(t, f.db.Where("flyer_id = ?", fl.ID).Take(&pool).Error)
	want := lottery.NewPool(fl.ID, dec("5000"), time.Now())
	require.Equal(t, want.MaxUsers, pool.MaxUsers)
	require.True(t, want.LotteryMoney.Equal(pool.LotteryMoney))
	require.True(t, want.LotteryMoney.Equal(pool.Remaining))
	require.Equal(t, lottery.PoolStatusActive, pool.Status)

	stat, err := f.stats.Get(ctx, "company-1", statistic.Period(fl.CreatedAt))
	require.NoError(t, err)
	require.Equal(t, int64(1), stat.FlyerCount)
	require.Equal(t, int64(416), stat.TotalMaxUsers)
	require.True(t, dec("4000").Equal(stat.TotalEventMoney))

	require.Len(t, f.enqueuer.tasks, 1)
	require.Equal(t, taskname.FlyerDistribute, f.enqueuer.tasks[0].Type())
	var payload DistributePayload
	require.NoError(t, json.Unmarshal(f.enqueuer.tasks[0].Payload(), &payload))
	require.Equal(t, fl.ID, payload.FlyerID)
}

func TestCreatedFlyerCanBeClaimed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	fl, err := f.svc.CreateFlyer(ctx, validRequest())
	require.NoError(t, err)
	_, err = f.wallets.OpenWallet(ctx, "user-1")
	require.NoError(t, err)

	res, err := f.lottery.Claim(ctx, "user-1", fl.ID)
	require.NoError(t, err)
	require.Equal(t, lottery.ClaimOutcomeClaimed, res.Outcome)
	require.Equal(t, int64(416), res.Summary.MaxUsers)

	stat, err := f.stats.Get(ctx, "company-1", statistic.Period(res.Claim.ClaimedAt))
	require.NoError(t, err)
	require.Equal(t, int64(1), stat.ClaimCount)
	require.Equal(t, int64(1), stat.FlyerCount)
}

func TestCreateFlyerValidation(t *testing.T) {
	f := newFixture(t, nil)

	cases := map[string]func(r *CreateFlyerRequest){
		"missing company": func(r *CreateFlyerRequest) { r.CompanyID = "" },
		"unknown type":    func(r *CreateFlyerRequest) { r.Type = "poster" },
		"zero budget":     func(r *CreateFlyerRequest) { r.Budget = decimal.Zero },
		"negative budget": func(r *CreateFlyerRequest) { r.Budget = dec("-1") },
		"bad payload":     func(r *CreateFlyerRequest) { r.Payload = []byte("{") },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validRequest()
			mutate(&req)
			_, err := f.svc.CreateFlyer(context.Background(), req)
			require.True(t, errutil.IsStatus(err, errutil.StatusBadRequest), fmt.Sprint(err))
		})
	}

	var n int64
	require.NoError(t, f.db.Model(&Flyer{}).Count(&n).Error)
	require.Zero(t, n)
	require.Empty(t, f.enqueuer.tasks)
}

func TestCreateFlyerDistributionFlag(t *testing.T) {
	f := newFixture(t, featureflags.Static{featureflags.FlyerTokenDistribution: false})

	_, err := f.svc.CreateFlyer(context.Background(), validRequest())
	require.NoError(t, err)
	require.Empty(t, f.enqueuer.tasks)
}

func TestCreateFlyerSurvivesEnqueueFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.enqueuer.err = fmt.Errorf("redis down")

	fl, err := f.svc.CreateFlyer(context.Background(), validRequest())
	require.NoError(t, err)
	require.NotNil(t, fl)
}

func TestDistributionShare(t *testing.T) {
	require.True(t, dec("333.33").Equal(DistributionShare(dec("5000"), 3)))
	require.True(t, dec("1000").Equal(DistributionShare(dec("5000"), 1)))
	require.True(t, DistributionShare(dec("0.01"), 7).IsZero())
	require.True(t, DistributionShare(dec("5000"), 0).IsZero())
}

func distributeTask(t *testing.T, flyerID string) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(DistributePayload{FlyerID: flyerID})
	require.NoError(t, err)
	return asynq.NewTask(taskname.FlyerDistribute, payload)
}

func TestHandleDistribute(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	fl, err := f.svc.CreateFlyer(ctx, validRequest())
	require.NoError(t, err)

	for _, user := range []string{"user-1", "user-2", "user-3"} {
		_, err := f.wallets.OpenWallet(ctx, user)
		require.NoError(t, err)
	}
	require.NoError(t, f.db.Create(&wallet.Wallet{
		ID: "inactive", UserID: "user-4", Balance: decimal.Zero, Currency: wallet.CurrencyToken, IsActive: false,
	}).Error)

	require.NoError(t, f.svc.HandleDistribute(ctx, distributeTask(t, fl.ID)))

	for _, user := range []string{"user-1", "user-2", "user-3"} {
		w, err := f.wallets.GetBalance(ctx, user)
		require.NoError(t, err)
		require.True(t, dec("333.33").Equal(w.Balance), "%s: %s", user, w.Balance)
	}

	// A retried task replays every credit.
	require.NoError(t, f.svc.HandleDistribute(ctx, distributeTask(t, fl.ID)))
	w, err := f.wallets.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, dec("333.33").Equal(w.Balance))

	var inactive wallet.Wallet
	require.NoError(t, f.db.Where("id = ?", "inactive").Take(&inactive).Error)
	require.True(t, inactive.Balance.IsZero())

	var txs int64
	require.NoError(t, f.db.Model(&wallet.Transaction{}).
		Where("idempotency_key = ?", DistributionKey(fl.ID)).
		Count(&txs).Error)
	require.Equal(t, int64(3), txs)
}

func TestHandleDistributeWithoutWallets(t *testing.T) {
	f := newFixture(t, nil)
	fl, err := f.svc.CreateFlyer(context.Background(), validRequest())
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleDistribute(context.Background(), distributeTask(t, fl.ID)))
}

func TestHandleDistributeSkipsRetry(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	err := f.svc.HandleDistribute(ctx, asynq.NewTask(taskname.FlyerDistribute, []byte("nope")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = f.svc.HandleDistribute(ctx, distributeTask(t, "missing"))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
