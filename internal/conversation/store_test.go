package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, ttl), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newRedisStore(t, 0)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "tg:2"); err != nil || ok {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}

	want := State{Kind: KindExpense, Step: StepAwaitingProof, Category: "Target", Amount: decimal.RequireFromString("250.50")}
	if err := store.Put(ctx, "tg:2", want); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := store.Get(ctx, "tg:2")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Step != want.Step || got.Category != want.Category || !got.Amount.Equal(want.Amount) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	if err := store.Delete(ctx, "tg:2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "tg:2"); ok {
		t.Fatalf("expected state to be gone")
	}
}

func TestRedisStoreExpiresAbandonedDialogs(t *testing.T) {
	store, mr := newRedisStore(t, time.Hour)
	ctx := context.Background()

	store.Put(ctx, "tg:3", State{Kind: KindIncome, Step: StepAwaitingAmount})
	mr.FastForward(2 * time.Hour)

	if _, ok, _ := store.Get(ctx, "tg:3"); ok {
		t.Fatalf("expected dialog to expire")
	}
}

func TestDialogSurvivesEngineRestart(t *testing.T) {
	store, _ := newRedisStore(t, 0)
	ctx := context.Background()

	first, _ := newEngine(store)
	first.Start(ctx, dev, KindExpense)
	step(t, first, dev, text("Telegram"))

	second, fin := newEngine(store)
	step(t, second, dev, text("42"))
	step(t, second, dev, text("no"))

	if sub := fin.last(t); sub.Category != "Telegram" || !sub.Amount.Equal(decimal.NewFromInt(42)) {
		t.Fatalf("unexpected submission after restart %+v", sub)
	}
}
