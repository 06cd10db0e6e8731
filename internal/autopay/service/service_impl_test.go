package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	autopaydomain "github.com/kolektiva/kolektiva/internal/autopay/domain"
	autopayrepo "github.com/kolektiva/kolektiva/internal/autopay/repository"
	"github.com/kolektiva/kolektiva/internal/clock"
	"github.com/kolektiva/kolektiva/internal/config"
	contributiondomain "github.com/kolektiva/kolektiva/internal/contribution/domain"
	contributionrepo "github.com/kolektiva/kolektiva/internal/contribution/repository"
	"github.com/kolektiva/kolektiva/internal/defaulter"
	groupdomain "github.com/kolektiva/kolektiva/internal/group/domain"
	grouprepo "github.com/kolektiva/kolektiva/internal/group/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type autopayFixture struct {
	svc  autopaydomain.Service
	db   *gorm.DB
	node *snowflake.Node
	clk  *clock.FakeClock
}

func setupAutoPay(t *testing.T, strictScope bool) *autopayFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := gdb.AutoMigrate(
		&groupdomain.Group{},
		&contributiondomain.Obligation{},
		&autopaydomain.Preference{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))
	contribRepo := contributionrepo.Provide()

	svc := NewService(Params{
		DB:    gdb,
		Log:   zap.NewNop(),
		Clock: clk,
		Cfg: config.Config{Collection: config.CollectionConfig{
			DefaulterScopeStrict: strictScope,
		}},
		Repo:       autopayrepo.Provide(),
		GroupRepo:  grouprepo.Provide(),
		Classifier: defaulter.New(defaulter.Params{DB: gdb, Clock: clk, Repo: contribRepo}),
	})
	return &autopayFixture{svc: svc, db: gdb, node: node, clk: clk}
}

func (f *autopayFixture) seedGroup(t *testing.T, groupType groupdomain.GroupType, deadline *time.Time) groupdomain.Group {
	t.Helper()
	group := groupdomain.Group{
		ID:          f.node.Generate(),
		Name:        "test group",
		Type:        groupType,
		Currency:    "USD",
		RecipientID: f.node.Generate(),
		Deadline:    deadline,
	}
	if err := f.db.Create(&group).Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}
	return group
}

func (f *autopayFixture) seedOverdue(t *testing.T, group groupdomain.Group, payerID snowflake.ID) {
	t.Helper()
	obligation := contributiondomain.Obligation{
		ID:          f.node.Generate(),
		GroupID:     group.ID,
		PayerID:     payerID,
		RecipientID: group.RecipientID,
		Amount:      500,
		Currency:    "USD",
		DueDate:     f.clk.Now().Add(-48 * time.Hour),
		Status:      contributiondomain.StatusNotPaid,
	}
	if err := f.db.Create(&obligation).Error; err != nil {
		t.Fatalf("seed obligation: %v", err)
	}
}

func TestEnableFlow(t *testing.T) {
	f := setupAutoPay(t, true)
	ctx := context.Background()
	group := f.seedGroup(t, groupdomain.GroupTypeBirthday, nil)
	user := f.node.Generate()

	if err := f.svc.SetInstrument(ctx, user, group.ID, "tok_card"); err != nil {
		t.Fatalf("set instrument: %v", err)
	}
	if err := f.svc.Enable(ctx, user, group.ID, autopaydomain.TimingOneDayBefore); err != nil {
		t.Fatalf("enable: %v", err)
	}

	pref, err := f.svc.Get(ctx, user, group.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !pref.Enabled || pref.Timing != autopaydomain.TimingOneDayBefore {
		t.Fatalf("unexpected preference state: %+v", pref)
	}
}

func TestEnableRequiresInstrument(t *testing.T) {
	f := setupAutoPay(t, true)
	ctx := context.Background()
	group := f.seedGroup(t, groupdomain.GroupTypeBirthday, nil)
	user := f.node.Generate()

	if err := f.svc.SetInstrument(ctx, user, group.ID, "tok_card"); err != nil {
		t.Fatalf("set instrument: %v", err)
	}
	if err := f.svc.RemoveInstrument(ctx, user, group.ID); err != nil {
		t.Fatalf("remove instrument: %v", err)
	}
	err := f.svc.Enable(ctx, user, group.ID, autopaydomain.TimingSameDay)
	if !errors.Is(err, autopaydomain.ErrMissingInstrument) {
		t.Fatalf("expected ErrMissingInstrument, got %v", err)
	}
}

func TestEnableRejectsDefaulter(t *testing.T) {
	f := setupAutoPay(t, true)
	ctx := context.Background()
	group := f.seedGroup(t, groupdomain.GroupTypeBirthday, nil)
	other := f.seedGroup(t, groupdomain.GroupTypeGeneral, nil)
	user := f.node.Generate()

	f.seedOverdue(t, other, user)
	if err := f.svc.SetInstrument(ctx, user, group.ID, "tok_card"); err != nil {
		t.Fatalf("set instrument: %v", err)
	}
	err := f.svc.Enable(ctx, user, group.ID, autopaydomain.TimingSameDay)
	if !errors.Is(err, autopaydomain.ErrUserIsDefaulter) {
		t.Fatalf("expected ErrUserIsDefaulter, got %v", err)
	}
}

func TestGroupScopedDefaulterCheckIgnoresOtherGroups(t *testing.T) {
	f := setupAutoPay(t, false)
	ctx := context.Background()
	group := f.seedGroup(t, groupdomain.GroupTypeBirthday, nil)
	other := f.seedGroup(t, groupdomain.GroupTypeGeneral, nil)
	user := f.node.Generate()

	// Overdue elsewhere does not block this group when the scope is narrow.
	f.seedOverdue(t, other, user)
	if err := f.svc.SetInstrument(ctx, user, group.ID, "tok_card"); err != nil {
		t.Fatalf("set instrument: %v", err)
	}
	if err := f.svc.Enable(ctx, user, group.ID, autopaydomain.TimingSameDay); err != nil {
		t.Fatalf("enable: %v", err)
	}

	// Overdue inside the same group still blocks.
	f.seedOverdue(t, group, user)
	err := f.svc.UpdateTiming(ctx, user, group.ID, autopaydomain.TimingOneDayBefore)
	if !errors.Is(err, autopaydomain.ErrUserIsDefaulter) {
		t.Fatalf("expected ErrUserIsDefaulter, got %v", err)
	}
}

func TestGeneralGroupEnableChecksDeadline(t *testing.T) {
	f := setupAutoPay(t, true)
	ctx := context.Background()
	user := f.node.Generate()

	past := f.clk.Now().Add(-time.Hour)
	expired := f.seedGroup(t, groupdomain.GroupTypeGeneral, &past)
	if err := f.svc.SetInstrument(ctx, user, expired.ID, "tok_card"); err != nil {
		t.Fatalf("set instrument: %v", err)
	}
	err := f.svc.Enable(ctx, user, expired.ID, autopaydomain.TimingSameDay)
	if !errors.Is(err, groupdomain.ErrDeadlinePassed) {
		t.Fatalf("expected ErrDeadlinePassed, got %v", err)
	}

	undated := f.seedGroup(t, groupdomain.GroupTypeGeneral, nil)
	if err := f.svc.SetInstrument(ctx, user, undated.ID, "tok_card"); err != nil {
		t.Fatalf("set instrument: %v", err)
	}
	err = f.svc.Enable(ctx, user, undated.ID, autopaydomain.TimingSameDay)
	if !errors.Is(err, groupdomain.ErrDeadlineMissing) {
		t.Fatalf("expected ErrDeadlineMissing, got %v", err)
	}
}

func TestRemoveInstrumentDisables(t *testing.T) {
	f := setupAutoPay(t, true)
	ctx := context.Background()
	group := f.seedGroup(t, groupdomain.GroupTypeBirthday, nil)
	user := f.node.Generate()

	if err := f.svc.SetInstrument(ctx, user, group.ID, "tok_card"); err != nil {
		t.Fatalf("set instrument: %v", err)
	}
	if err := f.svc.Enable(ctx, user, group.ID, autopaydomain.TimingSameDay); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if err := f.svc.RemoveInstrument(ctx, user, group.ID); err != nil {
		t.Fatalf("remove instrument: %v", err)
	}

	pref, err := f.svc.Get(ctx, user, group.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if pref.Enabled || pref.InstrumentToken != nil {
		t.Fatalf("expected disabled preference without a token, got %+v", pref)
	}
}

func TestEnableRejectsUnknownTiming(t *testing.T) {
	f := setupAutoPay(t, true)
	err := f.svc.Enable(context.Background(), f.node.Generate(), f.node.Generate(), "whenever")
	if !errors.Is(err, autopaydomain.ErrInvalidTiming) {
		t.Fatalf("expected ErrInvalidTiming, got %v", err)
	}
}
