package contribution

import (
	"github.com/kolektiva/kolektiva/internal/contribution/repository"
	"github.com/kolektiva/kolektiva/internal/contribution/service"
	"go.uber.org/fx"
)

var Module = fx.Module("contribution",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
