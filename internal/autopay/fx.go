package autopay

import (
	"github.com/kolektiva/kolektiva/internal/autopay/repository"
	"github.com/kolektiva/kolektiva/internal/autopay/service"
	"go.uber.org/fx"
)

var Module = fx.Module("autopay",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
