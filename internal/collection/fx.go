package collection

import (
	"go.uber.org/fx"
)

var Module = fx.Module("collection",
	fx.Provide(New),
	fx.Provide(func(s *Scheduler) *Executor { return s.Executor() }),
)
