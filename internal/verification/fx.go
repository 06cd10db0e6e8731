package verification

import (
	"github.com/kolektiva/kolektiva/internal/verification/repository"
	"github.com/kolektiva/kolektiva/internal/verification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("verification",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
