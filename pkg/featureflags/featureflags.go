package featureflags

import (
	"context"

	"flyerportal/pkg/config"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("featureflags", fx.Provide(ProvideFeatureFlag))

const (
	LotteryClaimsEnabled   = "lottery_claims_enabled"
	FlyerTokenDistribution = "flyer_token_distribution"
)

type FeatureFlag interface {
	// IsEnabled reports the flag for identifier; flags that are unknown or
	// cannot be fetched count as enabled.
	IsEnabled(ctx context.Context, identifier, feature string) bool
}

type featureflag struct {
	client *flagsmith.Client
}

type FeatureParams struct {
	fx.In
	Config *config.Config
}

func ProvideFeatureFlag(p FeatureParams) FeatureFlag {
	if p.Config.Flagsmith.ApiKey == "" {
		return &featureflag{}
	}

	opts := []flagsmith.Option{
		flagsmith.WithAnalytics(),
	}
	if p.Config.Flagsmith.Addr != "" {
		opts = append(opts, flagsmith.WithBaseURL(p.Config.Flagsmith.Addr))
	}

	return &featureflag{
		client: flagsmith.NewClient(p.Config.Flagsmith.ApiKey, opts...),
	}
}

func (s *featureflag) IsEnabled(ctx context.Context, identifier, feature string) bool {
	if s.client == nil {
		return true
	}

	var (
		flags flagsmith.Flags
		err   error
	)
	if identifier == "" {
		flags, err = s.client.GetEnvironmentFlags()
	} else {
		flags, err = s.client.GetIdentityFlags(identifier, nil)
	}
	if err != nil {
		zap.L().Warn("failed to fetch feature flags", zap.String("feature", feature), zap.Error(err))
		return true
	}

	enabled, err := flags.IsFeatureEnabled(feature)
	if err != nil {
		return true
	}
	return enabled
}

// Static is a FeatureFlag with fixed values, used where no flag service is wired.
type Static map[string]bool

func (s Static) IsEnabled(_ context.Context, _, feature string) bool {
	v, ok := s[feature]
	return !ok || v
}
