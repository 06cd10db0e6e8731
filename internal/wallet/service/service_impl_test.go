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
	walletdomain "github.com/kolektiva/kolektiva/internal/wallet/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupWallet(t *testing.T) (walletdomain.Service, *gorm.DB, *snowflake.Node) {
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

	if err := gdb.AutoMigrate(&walletdomain.Entry{}); err != nil {
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
	})
	return svc, gdb, node
}

func TestCreditDebitBalance(t *testing.T) {
	svc, gdb, node := setupWallet(t)
	ctx := context.Background()
	user := node.Generate()

	if err := svc.Credit(ctx, gdb, user, 5000, "USD", walletdomain.SourceTypeCollection, node.Generate()); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := svc.Debit(ctx, gdb, user, 1500, "USD", walletdomain.SourceTypeWithdrawal, node.Generate()); err != nil {
		t.Fatalf("debit: %v", err)
	}

	balance, err := svc.Balance(ctx, user, "USD")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 3500 {
		t.Fatalf("expected balance 3500, got %d", balance)
	}

	// Balances are per currency.
	balance, err = svc.Balance(ctx, user, "EUR")
	if err != nil {
		t.Fatalf("balance eur: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected empty EUR balance, got %d", balance)
	}
}

func TestDebitRejectsOverdraft(t *testing.T) {
	svc, gdb, node := setupWallet(t)
	ctx := context.Background()
	user := node.Generate()

	if err := svc.Credit(ctx, gdb, user, 100, "USD", walletdomain.SourceTypeCollection, node.Generate()); err != nil {
		t.Fatalf("credit: %v", err)
	}
	err := svc.Debit(ctx, gdb, user, 101, "USD", walletdomain.SourceTypeWithdrawal, node.Generate())
	if !errors.Is(err, walletdomain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestCompetingDebitsNeverOverdraw(t *testing.T) {
	svc, gdb, node := setupWallet(t)
	ctx := context.Background()
	user := node.Generate()

	if err := svc.Credit(ctx, gdb, user, 100, "USD", walletdomain.SourceTypeCollection, node.Generate()); err != nil {
		t.Fatalf("credit: %v", err)
	}

	// Two full-balance debits from distinct sources: the first drains the
	// wallet, the second must see the post-debit balance and be refused.
	if err := svc.Debit(ctx, gdb, user, 100, "USD", walletdomain.SourceTypeWithdrawal, node.Generate()); err != nil {
		t.Fatalf("first debit: %v", err)
	}
	err := svc.Debit(ctx, gdb, user, 100, "USD", walletdomain.SourceTypeWithdrawal, node.Generate())
	if !errors.Is(err, walletdomain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	balance, err := svc.Balance(ctx, user, "USD")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected balance 0, got %d", balance)
	}
}

func TestSameSourceIsAppendedOnce(t *testing.T) {
	svc, gdb, node := setupWallet(t)
	ctx := context.Background()
	user := node.Generate()
	source := node.Generate()

	if err := svc.Credit(ctx, gdb, user, 2000, "USD", walletdomain.SourceTypeCollection, source); err != nil {
		t.Fatalf("credit: %v", err)
	}
	err := svc.Credit(ctx, gdb, user, 2000, "USD", walletdomain.SourceTypeCollection, source)
	if !errors.Is(err, walletdomain.ErrDuplicateEntry) {
		t.Fatalf("expected ErrDuplicateEntry, got %v", err)
	}

	balance, err := svc.Balance(ctx, user, "USD")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 2000 {
		t.Fatalf("replayed credit must not double the balance, got %d", balance)
	}
}

func TestRejectsNonPositiveAmounts(t *testing.T) {
	svc, gdb, node := setupWallet(t)
	ctx := context.Background()
	user := node.Generate()

	err := svc.Credit(ctx, gdb, user, 0, "USD", walletdomain.SourceTypeCollection, node.Generate())
	if !errors.Is(err, walletdomain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	err = svc.Debit(ctx, gdb, user, -5, "USD", walletdomain.SourceTypeWithdrawal, node.Generate())
	if !errors.Is(err, walletdomain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
