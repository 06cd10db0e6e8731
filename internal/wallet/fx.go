package wallet

import (
	"github.com/kolektiva/kolektiva/internal/wallet/service"
	"go.uber.org/fx"
)

var Module = fx.Module("wallet",
	fx.Provide(service.NewService),
)
