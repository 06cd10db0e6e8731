package defaulter

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/kolektiva/kolektiva/internal/clock"
	contributiondomain "github.com/kolektiva/kolektiva/internal/contribution/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Report summarizes a user's overdue standing.
type Report struct {
	HasOverdue    bool
	OverdueCount  int64
	OverdueAmount int64
}

// Classifier decides whether a user currently owes any overdue obligation.
// It is side-effect free and safe to call from any flow.
type Classifier interface {
	// Check evaluates the user globally when groupID is zero, otherwise
	// scoped to that group. Obligations listed in exclude do not count;
	// collection flows pass the obligation they are about to charge so it
	// cannot flag its own payer once the due instant passes.
	Check(ctx context.Context, userID snowflake.ID, groupID snowflake.ID, exclude ...snowflake.ID) (Report, error)
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Clock clock.Clock
	Repo  contributiondomain.Repository
}

type classifier struct {
	db    *gorm.DB
	clock clock.Clock
	repo  contributiondomain.Repository
}

func New(p Params) Classifier {
	return &classifier{db: p.DB, clock: p.Clock, repo: p.Repo}
}

func (c *classifier) Check(ctx context.Context, userID snowflake.ID, groupID snowflake.ID, exclude ...snowflake.ID) (Report, error) {
	count, total, err := c.repo.CountOverdue(ctx, c.db, userID, groupID, c.clock.Now(), exclude...)
	if err != nil {
		return Report{}, err
	}
	return Report{
		HasOverdue:    count > 0,
		OverdueCount:  count,
		OverdueAmount: total,
	}, nil
}

var Module = fx.Module("defaulter",
	fx.Provide(New),
)
