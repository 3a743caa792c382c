package gen

import (
	"flyerportal/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("snowflake", fx.Provide(NewNode))

// NewNode returns the snowflake node used for every generated id.
// Each replica needs a distinct SNOWFLAKE.NODE.
func NewNode(cfg *config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.Snowflake.Node)
	if err != nil {
		zap.L().Error("failed to init snowflake node", zap.Int64("node", cfg.Snowflake.Node), zap.Error(err))
		return nil, err
	}
	return node, nil
}
