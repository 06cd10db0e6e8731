package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/kolektiva/kolektiva/internal/audit/domain"
	auditservice "github.com/kolektiva/kolektiva/internal/audit/service"
	"github.com/kolektiva/kolektiva/internal/auth/password"
	autopaydomain "github.com/kolektiva/kolektiva/internal/autopay/domain"
	autopayrepo "github.com/kolektiva/kolektiva/internal/autopay/repository"
	autopayservice "github.com/kolektiva/kolektiva/internal/autopay/service"
	"github.com/kolektiva/kolektiva/internal/clock"
	"github.com/kolektiva/kolektiva/internal/collection"
	"github.com/kolektiva/kolektiva/internal/config"
	contributiondomain "github.com/kolektiva/kolektiva/internal/contribution/domain"
	contributionrepo "github.com/kolektiva/kolektiva/internal/contribution/repository"
	contributionservice "github.com/kolektiva/kolektiva/internal/contribution/service"
	"github.com/kolektiva/kolektiva/internal/defaulter"
	groupdomain "github.com/kolektiva/kolektiva/internal/group/domain"
	grouprepo "github.com/kolektiva/kolektiva/internal/group/repository"
	"github.com/kolektiva/kolektiva/internal/notification"
	"github.com/kolektiva/kolektiva/internal/notification/email"
	obsmetrics "github.com/kolektiva/kolektiva/internal/observability/metrics"
	"github.com/kolektiva/kolektiva/internal/processor"
	"github.com/kolektiva/kolektiva/internal/server"
	userdomain "github.com/kolektiva/kolektiva/internal/user/domain"
	userrepo "github.com/kolektiva/kolektiva/internal/user/repository"
	verificationdomain "github.com/kolektiva/kolektiva/internal/verification/domain"
	verificationrepo "github.com/kolektiva/kolektiva/internal/verification/repository"
	verificationservice "github.com/kolektiva/kolektiva/internal/verification/service"
	walletdomain "github.com/kolektiva/kolektiva/internal/wallet/domain"
	walletservice "github.com/kolektiva/kolektiva/internal/wallet/service"
	withdrawaldomain "github.com/kolektiva/kolektiva/internal/withdrawal/domain"
	withdrawalservice "github.com/kolektiva/kolektiva/internal/withdrawal/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db            *gorm.DB
	node          *snowflake.Node
	clk           *clock.FakeClock
	proc          *processor.Memory
	users         userdomain.Repository
	walletSvc     walletdomain.Service
	withdrawalSvc withdrawaldomain.Service
	scheduler     *collection.Scheduler
	httpSrv       *httptest.Server
	baseURL       string
}

var env *testEnv

const testPassword = "s3cret-pass"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)

	var err error
	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		os.Exit(1)
	}

	code := m.Run()
	env.httpSrv.Close()
	os.Exit(code)
}

func startEnv() (*testEnv, error) {
	gdb, err := gorm.Open(sqlite.Open("file:kolektiva_e2e?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := gdb.AutoMigrate(
		&userdomain.User{},
		&groupdomain.Group{},
		&groupdomain.Member{},
		&contributiondomain.Obligation{},
		&autopaydomain.Preference{},
		&collection.CollectionAttempt{},
		&verificationdomain.Session{},
		&verificationdomain.Code{},
		&walletdomain.Entry{},
		&withdrawaldomain.WithdrawalRequest{},
		&auditdomain.AuditLog{},
		&notification.Record{},
	); err != nil {
		return nil, err
	}

	node, err := snowflake.NewNode(9)
	if err != nil {
		return nil, err
	}
	clk := clock.NewFakeClock(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	proc := processor.NewMemory()

	cfg := config.Config{
		Gate: config.GateConfig{
			ProofTTL: 5 * time.Minute,
			CodeTTL:  10 * time.Minute,
		},
		Collection: config.CollectionConfig{
			BatchSize:   20,
			RunInterval: time.Hour,
		},
		Withdrawal: config.WithdrawalConfig{
			HoldDuration:  24 * time.Hour,
			SweepInterval: time.Hour,
			BatchSize:     20,
		},
	}

	users := userrepo.Provide()
	contribRepo := contributionrepo.Provide()
	groupRepo := grouprepo.Provide()
	autoPayRepo := autopayrepo.Provide()
	classifier := defaulter.New(defaulter.Params{DB: gdb, Clock: clk, Repo: contribRepo})

	notifier := notification.NewService(notification.Params{
		DB:       gdb,
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Provider: &email.NoOpProvider{},
		UserRepo: users,
	})
	auditSvc := auditservice.NewService(auditservice.Params{
		DB: gdb, Log: log, GenID: node, Clock: clk,
	})
	walletSvc := walletservice.NewService(walletservice.Params{
		DB: gdb, Log: log, GenID: node, Clock: clk,
	})
	gateSvc := verificationservice.NewService(verificationservice.Params{
		DB: gdb, Log: log, GenID: node, Clock: clk, Cfg: cfg,
		Repo:     verificationrepo.Provide(),
		UserRepo: users,
		Audit:    auditSvc,
		Notifier: notifier,
	})
	autopaySvc := autopayservice.NewService(autopayservice.Params{
		DB: gdb, Log: log, Clock: clk, Cfg: cfg,
		Repo:       autoPayRepo,
		GroupRepo:  groupRepo,
		Classifier: classifier,
	})
	contributionSvc := contributionservice.NewService(contributionservice.Params{
		DB: gdb, Log: log, GenID: node, Clock: clk,
		Repo: contribRepo,
	})
	withdrawalSvc := withdrawalservice.NewService(withdrawalservice.Params{
		DB: gdb, Log: log, GenID: node, Clock: clk, Cfg: cfg,
		WalletSvc: walletSvc,
		Processor: proc,
		Notifier:  notifier,
	})
	scheduler, err := collection.New(collection.Params{
		DB: gdb, Log: log, GenID: node, Clock: clk, Cfg: cfg,
		GroupRepo:   groupRepo,
		ContribRepo: contribRepo,
		AutoPayRepo: autoPayRepo,
		Classifier:  classifier,
		WalletSvc:   walletSvc,
		Processor:   proc,
		Notifier:    notifier,
	})
	if err != nil {
		return nil, err
	}

	engine := server.NewEngine(log, obsmetrics.NewHTTPMetrics())
	server.NewServer(server.ServerParams{
		Gin:             engine,
		Cfg:             cfg,
		DB:              gdb,
		Log:             log,
		GenID:           node,
		GateSvc:         gateSvc,
		AutopaySvc:      autopaySvc,
		ContributionSvc: contributionSvc,
		WalletSvc:       walletSvc,
		WithdrawalSvc:   withdrawalSvc,
		Classifier:      classifier,
		Scheduler:       scheduler,
		Executor:        scheduler.Executor(),
	})

	httpSrv := httptest.NewServer(engine)
	return &testEnv{
		db:            gdb,
		node:          node,
		clk:           clk,
		proc:          proc,
		users:         users,
		walletSvc:     walletSvc,
		withdrawalSvc: withdrawalSvc,
		scheduler:     scheduler,
		httpSrv:       httpSrv,
		baseURL:       httpSrv.URL,
	}, nil
}

func seedUser(t *testing.T) *userdomain.User {
	t.Helper()
	hash, err := password.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &userdomain.User{
		ID:                 env.node.Generate(),
		Email:              fmt.Sprintf("%d@example.com", env.node.Generate()),
		DisplayName:        "e2e user",
		PasswordHash:       hash,
		VerificationMethod: userdomain.VerificationMethodEmailOTP,
	}
	if err := env.users.Insert(context.Background(), env.db, user); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return user
}

func seedGroup(t *testing.T, groupType groupdomain.GroupType, recipientID snowflake.ID) groupdomain.Group {
	t.Helper()
	group := groupdomain.Group{
		ID:          env.node.Generate(),
		Name:        "e2e group",
		Type:        groupType,
		Currency:    "USD",
		RecipientID: recipientID,
	}
	if err := env.db.Create(&group).Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}
	return group
}

func doJSON(t *testing.T, method, path string, body any, userID snowflake.ID) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode request: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, env.baseURL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("X-User-ID", userID.String())
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode response %q: %v", string(raw), err)
		}
	}
	return resp.StatusCode, out
}

func codeCount(t *testing.T, userID snowflake.ID) int64 {
	t.Helper()
	var count int64
	err := env.db.Raw(
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND kind = ?`,
		int64(userID), notification.KindVerificationCode,
	).Scan(&count).Error
	if err != nil {
		t.Fatalf("count codes: %v", err)
	}
	return count
}

// waitForCode polls the notifications table until a one-time code beyond the
// prior count appears for userID. Delivery is asynchronous.
func waitForCode(t *testing.T, userID snowflake.ID, prior int64) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if codeCount(t, userID) > prior {
			var record notification.Record
			err := env.db.Raw(
				`SELECT * FROM notifications
				 WHERE user_id = ? AND kind = ?
				 ORDER BY id DESC LIMIT 1`,
				int64(userID), notification.KindVerificationCode,
			).Scan(&record).Error
			if err != nil {
				t.Fatalf("load code notification: %v", err)
			}
			var payload map[string]any
			if err := json.Unmarshal(record.Payload, &payload); err != nil {
				t.Fatalf("decode notification payload: %v", err)
			}
			code, _ := payload["code"].(string)
			if code != "" {
				return code
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("one-time code was never delivered")
	return ""
}

// passGate walks the full password, proof and code handshake for action and
// returns the proof and code ready to attach to the mutation request.
func passGate(t *testing.T, user *userdomain.User, action verificationdomain.Action) (string, string) {
	t.Helper()
	prior := codeCount(t, user.ID)

	status, body := doJSON(t, http.MethodPost, "/v1/gate/password", map[string]any{
		"password": testPassword,
		"action":   string(action),
	}, user.ID)
	if status != http.StatusOK {
		t.Fatalf("gate password step: status %d body %v", status, body)
	}
	proof, _ := body["proof"].(string)
	if proof == "" {
		t.Fatal("gate did not return a proof")
	}

	status, body = doJSON(t, http.MethodPost, "/v1/gate/code", map[string]any{
		"proof":  proof,
		"action": string(action),
	}, user.ID)
	if status != http.StatusOK {
		t.Fatalf("gate code step: status %d body %v", status, body)
	}

	return proof, waitForCode(t, user.ID, prior)
}

func TestE2E_HealthCheck(t *testing.T) {
	resp, err := http.Get(env.baseURL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestE2E_GateRejectsWrongPasswordOpaquely(t *testing.T) {
	user := seedUser(t)

	status, body := doJSON(t, http.MethodPost, "/v1/gate/password", map[string]any{
		"password": "wrong",
		"action":   "withdraw",
	}, user.ID)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %v", status, body)
	}
	errObj, _ := body["error"].(map[string]any)
	if errObj == nil || errObj["type"] != "verification_failed" {
		t.Fatalf("expected an opaque verification_failed error, got %v", body)
	}
}

func TestE2E_GateRejectsStolenProof(t *testing.T) {
	victim := seedUser(t)
	attacker := seedUser(t)
	group := seedGroup(t, groupdomain.GroupTypeBirthday, seedUser(t).ID)
	groupPath := "/v1/groups/" + group.ID.String() + "/autopay"

	proof, code := passGate(t, victim, verificationdomain.ActionEnableAutoPay)

	// The attacker replays the victim's proof and code under their own
	// identity. The gate must refuse without hinting why.
	status, body := doJSON(t, http.MethodPost, groupPath+"/enable", map[string]any{
		"proof": proof, "code": code, "timing": "same_day",
	}, attacker.ID)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 for a stolen proof, got %d: %v", status, body)
	}
	errObj, _ := body["error"].(map[string]any)
	if errObj == nil || errObj["type"] != "verification_failed" {
		t.Fatalf("expected an opaque verification_failed error, got %v", body)
	}

	// No preference row was created for the attacker.
	status, body = doJSON(t, http.MethodGet, groupPath, nil, attacker.ID)
	if status != http.StatusNotFound {
		t.Fatalf("attacker must not end up enrolled: status %d body %v", status, body)
	}
}

func TestE2E_AutoPayEnableAndCollection(t *testing.T) {
	payer := seedUser(t)
	recipient := seedUser(t)
	group := seedGroup(t, groupdomain.GroupTypeBirthday, recipient.ID)
	groupPath := "/v1/groups/" + group.ID.String() + "/autopay"

	proof, code := passGate(t, payer, verificationdomain.ActionAddInstrument)
	status, body := doJSON(t, http.MethodPut, groupPath+"/instrument", map[string]any{
		"proof": proof, "code": code, "instrument_token": "tok_e2e",
	}, payer.ID)
	if status != http.StatusOK {
		t.Fatalf("set instrument: status %d body %v", status, body)
	}

	proof, code = passGate(t, payer, verificationdomain.ActionEnableAutoPay)
	status, body = doJSON(t, http.MethodPost, groupPath+"/enable", map[string]any{
		"proof": proof, "code": code, "timing": "same_day",
	}, payer.ID)
	if status != http.StatusOK {
		t.Fatalf("enable: status %d body %v", status, body)
	}

	status, body = doJSON(t, http.MethodGet, groupPath, nil, payer.ID)
	if status != http.StatusOK || body["enabled"] != true || body["has_instrument"] != true {
		t.Fatalf("unexpected autopay state: status %d body %v", status, body)
	}

	// An obligation due after the enrollment is collected by the next run.
	due := env.clk.Now().Add(24 * time.Hour).Truncate(24 * time.Hour)
	obligation := contributiondomain.Obligation{
		ID:          env.node.Generate(),
		GroupID:     group.ID,
		PayerID:     payer.ID,
		RecipientID: recipient.ID,
		Amount:      1200,
		Currency:    "USD",
		DueDate:     due,
		Status:      contributiondomain.StatusNotPaid,
	}
	if err := env.db.Create(&obligation).Error; err != nil {
		t.Fatalf("seed obligation: %v", err)
	}
	env.clk.Advance(24 * time.Hour)

	status, body = doJSON(t, http.MethodPost, "/v1/admin/collections/run/birthday", nil, 0)
	if status != http.StatusOK {
		t.Fatalf("collection run: status %d body %v", status, body)
	}
	if body["succeeded"] != float64(1) {
		t.Fatalf("expected one successful collection, got %v", body)
	}

	status, body = doJSON(t, http.MethodGet, "/v1/obligations/"+obligation.ID.String(), nil, payer.ID)
	if status != http.StatusOK || body["status"] != "confirmed" {
		t.Fatalf("expected confirmed obligation, got status %d body %v", status, body)
	}

	status, body = doJSON(t, http.MethodGet, "/v1/wallet/balance?currency=USD", nil, recipient.ID)
	if status != http.StatusOK || body["balance"] != float64(1200) {
		t.Fatalf("expected recipient balance 1200, got status %d body %v", status, body)
	}
}

func TestE2E_WithdrawalLifecycle(t *testing.T) {
	user := seedUser(t)
	ctx := context.Background()
	if err := env.walletSvc.Credit(ctx, env.db, user.ID, 5000, "USD",
		walletdomain.SourceTypeCollection, env.node.Generate()); err != nil {
		t.Fatalf("fund wallet: %v", err)
	}

	proof, code := passGate(t, user, verificationdomain.ActionWithdraw)
	status, body := doJSON(t, http.MethodPost, "/v1/withdrawals", map[string]any{
		"proof": proof, "code": code, "amount": 3000, "currency": "USD",
	}, user.ID)
	if status != http.StatusCreated {
		t.Fatalf("request withdrawal: status %d body %v", status, body)
	}
	requestID, _ := body["id"].(string)
	if requestID == "" {
		t.Fatalf("expected a withdrawal id, got %v", body)
	}

	status, body = doJSON(t, http.MethodGet, "/v1/wallet/balance?currency=USD", nil, user.ID)
	if status != http.StatusOK || body["balance"] != float64(2000) {
		t.Fatalf("expected reserved balance 2000, got status %d body %v", status, body)
	}

	status, body = doJSON(t, http.MethodGet, "/v1/withdrawals?page_size=10", nil, user.ID)
	if status != http.StatusOK {
		t.Fatalf("list withdrawals: status %d body %v", status, body)
	}
	listed, _ := body["withdrawals"].([]any)
	page, _ := body["page"].(map[string]any)
	if len(listed) != 1 || page == nil || page["has_more"] != false {
		t.Fatalf("expected one listed request on a single page, got %v", body)
	}

	// Replaying the consumed proof must fail closed.
	status, body = doJSON(t, http.MethodPost, "/v1/withdrawals", map[string]any{
		"proof": proof, "code": code, "amount": 1000, "currency": "USD",
	}, user.ID)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 on proof replay, got %d: %v", status, body)
	}

	env.clk.Advance(24*time.Hour + time.Minute)
	if _, err := env.withdrawalSvc.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	id, err := snowflake.ParseString(requestID)
	if err != nil {
		t.Fatalf("parse request id: %v", err)
	}
	request, err := env.withdrawalSvc.Get(ctx, id)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if request.Status != withdrawaldomain.StatusProcessing || request.ProcessorRef == "" {
		t.Fatalf("expected a dispatched payout, got %+v", request)
	}

	status, body = doJSON(t, http.MethodPost, "/v1/webhooks/processor", map[string]any{
		"type": "payout.completed", "reference": request.ProcessorRef,
	}, 0)
	if status != http.StatusOK {
		t.Fatalf("payout webhook: status %d body %v", status, body)
	}

	status, body = doJSON(t, http.MethodGet, "/v1/withdrawals/"+requestID, nil, user.ID)
	if status != http.StatusOK || body["status"] != "completed" {
		t.Fatalf("expected completed withdrawal, got status %d body %v", status, body)
	}
}

func TestE2E_WebhookAcknowledgesUnknownEvents(t *testing.T) {
	status, body := doJSON(t, http.MethodPost, "/v1/webhooks/processor", map[string]any{
		"type": "customer.updated", "reference": "ref_x",
	}, 0)
	if status != http.StatusOK || body["status"] != "ignored" {
		t.Fatalf("expected ignored ack, got status %d body %v", status, body)
	}
}
