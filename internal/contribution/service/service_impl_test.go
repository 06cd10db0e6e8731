package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/kolektiva/kolektiva/internal/clock"
	contributiondomain "github.com/kolektiva/kolektiva/internal/contribution/domain"
	contributionrepo "github.com/kolektiva/kolektiva/internal/contribution/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T) (contributiondomain.Service, *snowflake.Node) {
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

	if err := gdb.AutoMigrate(&contributiondomain.Obligation{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}

	svc := NewService(Params{
		DB:    gdb,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)),
		Repo:  contributionrepo.Provide(),
	})
	return svc, node
}

func createObligation(t *testing.T, svc contributiondomain.Service, node *snowflake.Node) *contributiondomain.Obligation {
	t.Helper()
	obligation, err := svc.Create(context.Background(), contributiondomain.CreateRequest{
		GroupID:     node.Generate(),
		PayerID:     node.Generate(),
		RecipientID: node.Generate(),
		Amount:      1500,
		Currency:    "usd",
		DueDate:     time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create obligation: %v", err)
	}
	return obligation
}

func TestCreateNormalizesCurrencyAndRejectsBadAmount(t *testing.T) {
	svc, node := setupService(t)
	ctx := context.Background()

	obligation := createObligation(t, svc, node)
	if obligation.Currency != "USD" {
		t.Fatalf("expected normalized currency USD, got %q", obligation.Currency)
	}
	if obligation.Status != contributiondomain.StatusNotPaid {
		t.Fatalf("expected not_paid, got %s", obligation.Status)
	}

	_, err := svc.Create(ctx, contributiondomain.CreateRequest{Amount: 0, Currency: "USD"})
	if !errors.Is(err, contributiondomain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestManualSettlementHandshake(t *testing.T) {
	svc, node := setupService(t)
	ctx := context.Background()
	obligation := createObligation(t, svc, node)

	// The recipient cannot confirm before the payer marked it paid.
	err := svc.Confirm(ctx, obligation.ID, obligation.RecipientID)
	if !errors.Is(err, contributiondomain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if err := svc.MarkPaid(ctx, obligation.ID, obligation.PayerID); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	got, err := svc.Get(ctx, obligation.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != contributiondomain.StatusPaid {
		t.Fatalf("expected paid, got %s", got.Status)
	}

	if err := svc.Confirm(ctx, obligation.ID, obligation.RecipientID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	got, err = svc.Get(ctx, obligation.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != contributiondomain.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", got.Status)
	}
}

func TestHandshakeChecksOwnership(t *testing.T) {
	svc, node := setupService(t)
	ctx := context.Background()
	obligation := createObligation(t, svc, node)

	// Acting on someone else's obligation looks like a missing row.
	err := svc.MarkPaid(ctx, obligation.ID, node.Generate())
	if !errors.Is(err, contributiondomain.ErrObligationNotFound) {
		t.Fatalf("expected ErrObligationNotFound, got %v", err)
	}

	if err := svc.MarkPaid(ctx, obligation.ID, obligation.PayerID); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	err = svc.Confirm(ctx, obligation.ID, node.Generate())
	if !errors.Is(err, contributiondomain.ErrObligationNotFound) {
		t.Fatalf("expected ErrObligationNotFound, got %v", err)
	}
}

func TestConfirmedObligationIsImmutable(t *testing.T) {
	svc, node := setupService(t)
	ctx := context.Background()
	obligation := createObligation(t, svc, node)

	if err := svc.MarkPaid(ctx, obligation.ID, obligation.PayerID); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if err := svc.Confirm(ctx, obligation.ID, obligation.RecipientID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	err := svc.MarkPaid(ctx, obligation.ID, obligation.PayerID)
	if !errors.Is(err, contributiondomain.ErrConfirmedImmutable) {
		t.Fatalf("expected ErrConfirmedImmutable, got %v", err)
	}
	err = svc.Confirm(ctx, obligation.ID, obligation.RecipientID)
	if !errors.Is(err, contributiondomain.ErrConfirmedImmutable) {
		t.Fatalf("expected ErrConfirmedImmutable, got %v", err)
	}
}
