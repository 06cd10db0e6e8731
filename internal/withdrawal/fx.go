package withdrawal

import (
	"github.com/kolektiva/kolektiva/internal/withdrawal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("withdrawal",
	fx.Provide(service.NewService),
)
