package main

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kolektiva/kolektiva/internal/audit"
	"github.com/kolektiva/kolektiva/internal/autopay"
	"github.com/kolektiva/kolektiva/internal/clock"
	"github.com/kolektiva/kolektiva/internal/collection"
	"github.com/kolektiva/kolektiva/internal/config"
	"github.com/kolektiva/kolektiva/internal/contribution"
	"github.com/kolektiva/kolektiva/internal/defaulter"
	"github.com/kolektiva/kolektiva/internal/group"
	"github.com/kolektiva/kolektiva/internal/logger"
	"github.com/kolektiva/kolektiva/internal/notification"
	"github.com/kolektiva/kolektiva/internal/processor"
	"github.com/kolektiva/kolektiva/internal/ratelimit"
	"github.com/kolektiva/kolektiva/internal/user"
	"github.com/kolektiva/kolektiva/internal/wallet"
	"github.com/kolektiva/kolektiva/internal/withdrawal"
	withdrawaldomain "github.com/kolektiva/kolektiva/internal/withdrawal/domain"
	"github.com/kolektiva/kolektiva/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Standalone scheduler replica: collection sweeps and withdrawal payouts,
// no HTTP server. The redis leader lock keeps replicas from double-running.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		user.Module,
		group.Module,
		contribution.Module,
		defaulter.Module,
		wallet.Module,
		audit.Module,
		notification.Module,
		autopay.Module,
		processor.Module,
		ratelimit.Module,
		collection.Module,
		withdrawal.Module,

		fx.Invoke(StartScheduler),
		fx.Invoke(StartWithdrawalSweep),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}

func StartScheduler(lc fx.Lifecycle, s *collection.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go s.RunForever(context.Background())
			return nil
		},
	})
}

func StartWithdrawalSweep(lc fx.Lifecycle, svc withdrawaldomain.Service, cfg config.Config, log *zap.Logger) {
	interval := cfg.Withdrawal.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}
	log = log.Named("withdrawal.sweep")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					if _, err := svc.Sweep(context.Background()); err != nil {
						log.Warn("withdrawal sweep failed", zap.Error(err))
					}
					<-ticker.C
				}
			}()
			return nil
		},
	})
}
