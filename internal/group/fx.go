package group

import (
	"github.com/kolektiva/kolektiva/internal/group/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("group",
	fx.Provide(repository.Provide),
)
