package gen

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"rewards-engine/pkg/config"
)

var Module = fx.Module("snowflake",
	fx.Provide(NewSnowflakeNode),
)

// NewSnowflakeNode returns the id generator for SNOWFLAKE.NODE. Every
// process writing to the same database needs its own node number.
func NewSnowflakeNode(cfg *config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.Snowflake.Node)
	if err != nil {
		zap.L().Error("failed to init snowflake node", zap.Int64("node", cfg.Snowflake.Node), zap.Error(err))
		return nil, err
	}
	return node, nil
}
