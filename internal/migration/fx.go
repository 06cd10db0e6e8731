package migration

import (
	"github.com/kolektiva/kolektiva/internal/config"
	"github.com/kolektiva/kolektiva/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Embedded migrations target postgres; other dialects (sqlite in
		// tests) create their schema through AutoMigrate.
		if conn.Dialector.Name() == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		}

		if cfg.BootstrapDemo {
			return seed.EnsureDemoData(conn)
		}
		return nil
	}),
)
