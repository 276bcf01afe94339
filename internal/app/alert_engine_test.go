package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"whalewatch/clients/telegram"
	"whalewatch/config"
	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
	"whalewatch/internal/storage/memory"
)

var engineBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type sentMessage struct {
	chatID string
	text   string
}

// fakeSender records messages and can fail specific calls.
type fakeSender struct {
	enabled  bool
	sent     []sentMessage
	failures map[int]error // call index (0-based) -> error
	calls    int
}

func newFakeSender() *fakeSender {
	return &fakeSender{enabled: true, failures: make(map[int]error)}
}

func (f *fakeSender) Enabled() bool { return f.enabled }

func (f *fakeSender) SendMessage(_ context.Context, chatID, text string) error {
	idx := f.calls
	f.calls++
	if err, ok := f.failures[idx]; ok {
		return err
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func newTestEngine(t *testing.T) (*AlertEngine, *storage.Stores, *fakeSender) {
	t.Helper()
	stores := memory.NewStores()
	sender := newFakeSender()
	e := NewAlertEngine(zap.NewNop(), config.Defaults().Alerts, stores, sender, nil, nil)
	e.now = func() time.Time { return engineBase }
	e.bootTime = engineBase.Add(-time.Hour)
	e.sleep = func(time.Duration) {}
	return e, stores, sender
}

func seedSubscriber(t *testing.T, stores *storage.Stores, chatID string, tier domain.Tier, expires *time.Time) {
	t.Helper()
	err := stores.Subscribers.Upsert(context.Background(), &domain.Subscriber{
		ChatID:        chatID,
		Tier:          tier,
		PlanExpiresAt: expires,
		Active:        true,
	})
	if err != nil {
		t.Fatalf("seed subscriber %s: %v", chatID, err)
	}
}

func seedAlert(t *testing.T, stores *storage.Stores, wallet, market string, typ domain.AlertType, score int, amount, price float64, createdAt time.Time) *domain.Alert {
	t.Helper()
	a := &domain.Alert{
		Wallet:    wallet,
		MarketID:  market,
		Type:      typ,
		Score:     score,
		Amount:    amount,
		Price:     price,
		Side:      domain.TradeSideBuy,
		TxCount:   3,
		CreatedAt: createdAt,
	}
	if err := stores.Alerts.Insert(context.Background(), a); err != nil {
		t.Fatalf("seed alert: %v", err)
	}
	return a
}

func TestDispatch_TierGating(t *testing.T) {
	e, stores, sender := newTestEngine(t)
	ctx := context.Background()

	seedSubscriber(t, stores, "free1", domain.TierFree, nil)
	seedSubscriber(t, stores, "pro1", domain.TierPro, nil)
	seedSubscriber(t, stores, "elite1", domain.TierElite, nil)

	seedAlert(t, stores, "0xw", "m1", domain.AlertTypeBuild, 80, 4000, 0.5, engineBase.Add(-2*time.Minute))

	if err := e.Dispatch(ctx); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	// Free tier waits out the delay; paid tiers deliver immediately.
	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(sender.sent))
	}
	for _, m := range sender.sent {
		if m.chatID == "free1" {
			t.Error("free tier must not receive a fresh alert")
		}
		if !strings.Contains(m.text, "Whale Score") {
			t.Errorf("paid tier message missing score: %q", m.text)
		}
	}
}

func TestDispatch_FreeAfterDelay(t *testing.T) {
	e, stores, sender := newTestEngine(t)
	e.cfg.FreeDelay = 2 * time.Minute
	ctx := context.Background()

	seedSubscriber(t, stores, "free1", domain.TierFree, nil)
	seedAlert(t, stores, "0xw", "m1", domain.AlertTypeBuild, 80, 4000, 0.5, engineBase.Add(-5*time.Minute))

	if err := e.Dispatch(ctx); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if len(sender.sent) != 1 || sender.sent[0].chatID != "free1" {
		t.Fatalf("expected free delivery after delay, got %+v", sender.sent)
	}
	if strings.Contains(sender.sent[0].text, "Whale Score") {
		t.Error("free tier message must hide the score")
	}
}

func TestDispatch_ExpiredPlanIsFree(t *testing.T) {
	e, stores, sender := newTestEngine(t)
	ctx := context.Background()

	expired := engineBase.Add(-24 * time.Hour)
	seedSubscriber(t, stores, "lapsed", domain.TierElite, &expired)
	seedAlert(t, stores, "0xw", "m1", domain.AlertTypeBuild, 80, 4000, 0.5, engineBase.Add(-2*time.Minute))

	if err := e.Dispatch(ctx); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expired plan must be treated as free tier, got %d deliveries", len(sender.sent))
	}
}

func TestDispatch_NoiseFloor(t *testing.T) {
	e, stores, sender := newTestEngine(t)
	ctx := context.Background()

	seedSubscriber(t, stores, "pro1", domain.TierPro, nil)
	// $5 notional sits under the floor.
	seedAlert(t, stores, "0xw", "m1", domain.AlertTypeBuild, 80, 10, 0.5, engineBase.Add(-2*time.Minute))

	if err := e.Dispatch(ctx); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected noise-floor skip, got %d deliveries", len(sender.sent))
	}
}

func TestDispatch_SentOnlyOncePerProcess(t *testing.T) {
	e, stores, sender := newTestEngine(t)
	ctx := context.Background()

	seedSubscriber(t, stores, "pro1", domain.TierPro, nil)
	seedAlert(t, stores, "0xw", "m1", domain.AlertTypeBuild, 80, 4000, 0.5, engineBase.Add(-2*time.Minute))

	if err := e.Dispatch(ctx); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if err := e.Dispatch(ctx); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected exactly one delivery across passes, got %d", len(sender.sent))
	}
}

func TestDispatch_BootTimeFilter(t *testing.T) {
	e, stores, sender := newTestEngine(t)
	e.bootTime = engineBase.Add(-time.Minute)
	ctx := context.Background()

	seedSubscriber(t, stores, "pro1", domain.TierPro, nil)
	// Created before this process booted; a fresh instance never resends it.
	seedAlert(t, stores, "0xw", "m1", domain.AlertTypeBuild, 80, 4000, 0.5, engineBase.Add(-5*time.Minute))

	if err := e.Dispatch(ctx); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected boot-time filter to suppress delivery, got %d", len(sender.sent))
	}
}

func TestDispatch_MarketRateLimit(t *testing.T) {
	e, stores, sender := newTestEngine(t)
	ctx := context.Background()

	seedSubscriber(t, stores, "pro1", domain.TierPro, nil)
	seedAlert(t, stores, "0xa", "m1", domain.AlertTypeBuild, 80, 4000, 0.5, engineBase.Add(-3*time.Minute))
	seedAlert(t, stores, "0xb", "m1", domain.AlertTypeSpike, 85, 4000, 0.5, engineBase.Add(-2*time.Minute))

	if err := e.Dispatch(ctx); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected per-market rate limit to hold back the second alert, got %d deliveries", len(sender.sent))
	}
}

func TestDispatch_ThrottleRetryOnce(t *testing.T) {
	e, stores, sender := newTestEngine(t)
	ctx := context.Background()

	var slept []time.Duration
	e.sleep = func(d time.Duration) { slept = append(slept, d) }

	sender.failures[0] = &telegram.ThrottledError{RetryAfter: 3 * time.Second}

	seedSubscriber(t, stores, "pro1", domain.TierPro, nil)
	seedAlert(t, stores, "0xw", "m1", domain.AlertTypeBuild, 80, 4000, 0.5, engineBase.Add(-2*time.Minute))

	if err := e.Dispatch(ctx); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if sender.calls != 2 {
		t.Fatalf("expected one retry after throttle, got %d calls", sender.calls)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected the retry to deliver, got %d", len(sender.sent))
	}
	found := false
	for _, d := range slept {
		if d == 4*time.Second {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a backoff sleep of retry-after+1s, got %v", slept)
	}
}

func TestDispatch_ThrottleGivesUpAfterRetry(t *testing.T) {
	e, stores, sender := newTestEngine(t)
	ctx := context.Background()

	sender.failures[0] = &telegram.ThrottledError{RetryAfter: time.Second}
	sender.failures[1] = &telegram.ThrottledError{RetryAfter: time.Second}

	seedSubscriber(t, stores, "pro1", domain.TierPro, nil)
	seedAlert(t, stores, "0xw", "m1", domain.AlertTypeBuild, 80, 4000, 0.5, engineBase.Add(-2*time.Minute))

	if err := e.Dispatch(ctx); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if sender.calls != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", sender.calls)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected the recipient to be dropped, got %d deliveries", len(sender.sent))
	}

	// The alert is still marked sent; the next pass does not retry it.
	if err := e.Dispatch(ctx); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if sender.calls != 2 {
		t.Fatalf("expected no further attempts, got %d calls", sender.calls)
	}
}

func TestDispatch_ConvictionEliteOnly(t *testing.T) {
	e, stores, sender := newTestEngine(t)
	ctx := context.Background()

	seedSubscriber(t, stores, "pro1", domain.TierPro, nil)
	seedSubscriber(t, stores, "elite1", domain.TierElite, nil)

	seedAlert(t, stores, domain.GroupWallet, "m1", domain.AlertTypeConviction, 82, 0, 0, engineBase.Add(-2*time.Minute))

	if err := e.Dispatch(ctx); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if len(sender.sent) != 1 || sender.sent[0].chatID != "elite1" {
		t.Fatalf("conviction alerts are elite-only, got %+v", sender.sent)
	}
}

func TestSynthesizeConviction_RequiresTwoWallets(t *testing.T) {
	e, stores, _ := newTestEngine(t)
	ctx := context.Background()

	// One wallet, two high-score alerts: never a conviction signal.
	seedAlert(t, stores, "0xa", "m1", domain.AlertTypeBuild, 90, 4000, 0.5, engineBase.Add(-2*time.Hour))
	seedAlert(t, stores, "0xa", "m1", domain.AlertTypeSpike, 95, 4000, 0.5, engineBase.Add(-1*time.Hour))

	if err := e.SynthesizeConviction(ctx); err != nil {
		t.Fatalf("synthesis: %v", err)
	}
	if got := alertsOfType(t, stores, domain.AlertTypeConviction); len(got) != 0 {
		t.Fatalf("single wallet must never produce conviction, got %d", len(got))
	}

	// A second wallet tips the group over.
	seedAlert(t, stores, "0xb", "m1", domain.AlertTypeBuild, 80, 4000, 0.5, engineBase.Add(-30*time.Minute))
	if err := e.SynthesizeConviction(ctx); err != nil {
		t.Fatalf("synthesis: %v", err)
	}

	got := alertsOfType(t, stores, domain.AlertTypeConviction)
	if len(got) != 1 {
		t.Fatalf("expected 1 conviction alert, got %d", len(got))
	}
	c := got[0]
	if c.Wallet != domain.GroupWallet {
		t.Errorf("expected sentinel wallet %q, got %q", domain.GroupWallet, c.Wallet)
	}
	if c.Score != 88 { // round((90+95+80)/3)
		t.Errorf("expected rounded average 88, got %d", c.Score)
	}
	if c.TxCount != 2 {
		t.Errorf("expected distinct wallet count 2, got %d", c.TxCount)
	}
}

func TestSynthesizeConviction_FiltersLowScores(t *testing.T) {
	e, stores, _ := newTestEngine(t)
	ctx := context.Background()

	seedAlert(t, stores, "0xa", "m1", domain.AlertTypeBuild, 76, 4000, 0.5, engineBase.Add(-2*time.Hour))
	seedAlert(t, stores, "0xb", "m1", domain.AlertTypeBuild, 75, 4000, 0.5, engineBase.Add(-1*time.Hour))
	// Below the score floor: never enters the pool or the average.
	seedAlert(t, stores, "0xc", "m1", domain.AlertTypeBuild, 40, 4000, 0.5, engineBase.Add(-1*time.Hour))

	if err := e.SynthesizeConviction(ctx); err != nil {
		t.Fatalf("synthesis: %v", err)
	}
	got := alertsOfType(t, stores, domain.AlertTypeConviction)
	if len(got) != 1 {
		t.Fatalf("expected conviction from the two qualifying wallets, got %d", len(got))
	}
	if got[0].Score != 76 { // round((76+75)/2)
		t.Errorf("expected score 76, got %d", got[0].Score)
	}
}

func TestSynthesizeConviction_SuppressionWindow(t *testing.T) {
	e, stores, _ := newTestEngine(t)
	ctx := context.Background()

	seedAlert(t, stores, "0xa", "m1", domain.AlertTypeBuild, 90, 4000, 0.5, engineBase.Add(-2*time.Hour))
	seedAlert(t, stores, "0xb", "m1", domain.AlertTypeBuild, 85, 4000, 0.5, engineBase.Add(-1*time.Hour))

	if err := e.SynthesizeConviction(ctx); err != nil {
		t.Fatalf("first synthesis: %v", err)
	}
	if err := e.SynthesizeConviction(ctx); err != nil {
		t.Fatalf("second synthesis: %v", err)
	}

	if got := alertsOfType(t, stores, domain.AlertTypeConviction); len(got) != 1 {
		t.Fatalf("expected re-run to be idempotent, got %d conviction alerts", len(got))
	}
}

func alertsOfType(t *testing.T, stores *storage.Stores, typ domain.AlertType) []*domain.Alert {
	t.Helper()
	alerts, err := stores.Alerts.GetByTypeSince(context.Background(), typ, engineBase.Add(-72*time.Hour))
	if err != nil {
		t.Fatalf("fetch alerts: %v", err)
	}
	return alerts
}
