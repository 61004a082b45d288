package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/chainsafe/remittance-middleware/pkg/app/errors"
)

func newTestGuard(store Store) *Guard {
	return NewGuard(store, Config{TTL: time.Hour, InFlightWait: time.Second, PollInterval: 5 * time.Millisecond},
		zap.NewNop())
}

type payload struct {
	QuoteID string `json:"quoteId"`
	Amount  string `json:"amount"`
}

func TestExecute_ReplaysIdenticalRequest(t *testing.T) {
	g := newTestGuard(NewMemoryStore())
	ctx := context.Background()

	var calls int32
	work := func(context.Context) (int, any, error) {
		n := atomic.AddInt32(&calls, 1)
		return 201, map[string]any{"transferId": "tr_1", "call": n}, nil
	}

	first, err := g.Execute(ctx, "transfers:create", "key-12345", payload{"q_1", "100"}, work)
	if err != nil {
		t.Fatalf("first Execute() error = %v", err)
	}
	second, err := g.Execute(ctx, "transfers:create", "key-12345", payload{"q_1", "100"}, work)
	if err != nil {
		t.Fatalf("second Execute() error = %v", err)
	}

	if calls != 1 {
		t.Fatalf("work executed %d times, want 1", calls)
	}
	if first.Replayed || !second.Replayed {
		t.Fatalf("replayed flags = %v/%v, want false/true", first.Replayed, second.Replayed)
	}
	if second.Status != 201 || string(second.Body) != string(first.Body) {
		t.Fatalf("replay = %d %s, want %d %s", second.Status, second.Body, first.Status, first.Body)
	}
}

func TestExecute_DifferentPayloadConflicts(t *testing.T) {
	g := newTestGuard(NewMemoryStore())
	ctx := context.Background()

	calls := 0
	work := func(context.Context) (int, any, error) {
		calls++
		return 200, "ok", nil
	}

	if _, err := g.Execute(ctx, "s", "key-12345", payload{"q_1", "100"}, work); err != nil {
		t.Fatalf("first Execute() error = %v", err)
	}
	_, err := g.Execute(ctx, "s", "key-12345", payload{"q_1", "200"}, work)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("second Execute() error = %v, want ErrConflict", err)
	}
	if !apperrors.HasCode(err, apperrors.CodeIdempotencyConflict) || !apperrors.Is(err, apperrors.CategoryDataConflict) {
		t.Fatalf("expected IDEMPOTENCY_CONFLICT service error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("work executed %d times, want 1", calls)
	}
}

func TestExecute_ScopesAreIndependent(t *testing.T) {
	g := newTestGuard(NewMemoryStore())
	ctx := context.Background()

	calls := 0
	work := func(context.Context) (int, any, error) {
		calls++
		return 200, calls, nil
	}
	if _, err := g.Execute(ctx, "a", "key-12345", payload{}, work); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Execute(ctx, "b", "key-12345", payload{}, work); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("work executed %d times, want 2", calls)
	}
}

func TestExecute_FailedWorkReleasesKey(t *testing.T) {
	store := NewMemoryStore()
	g := newTestGuard(store)
	ctx := context.Background()

	boom := errors.New("boom")
	_, err := g.Execute(ctx, "s", "key-12345", payload{}, func(context.Context) (int, any, error) {
		return 0, nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Execute() error = %v, want boom", err)
	}
	if rec, _ := store.Get(ctx, "s:key-12345"); rec != nil {
		t.Fatalf("placeholder left behind: %+v", rec)
	}

	resp, err := g.Execute(ctx, "s", "key-12345", payload{}, func(context.Context) (int, any, error) {
		return 200, "retried", nil
	})
	if err != nil {
		t.Fatalf("retry Execute() error = %v", err)
	}
	if string(resp.Body) != `"retried"` {
		t.Fatalf("retry body = %s", resp.Body)
	}
}

func TestExecute_ConcurrentDuplicatesRunOnce(t *testing.T) {
	g := newTestGuard(NewMemoryStore())
	ctx := context.Background()

	var calls int32
	release := make(chan struct{})
	work := func(context.Context) (int, any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 202, map[string]string{"status": "confirmed"}, nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]*Response, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = g.Execute(ctx, "s", "key-12345", payload{"q", "1"}, work)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Fatalf("work executed %d times, want 1", calls)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("call %d error = %v", i, errs[i])
		}
		if results[i].Status != 202 || string(results[i].Body) != `{"status":"confirmed"}` {
			t.Fatalf("call %d response = %d %s", i, results[i].Status, results[i].Body)
		}
	}
}

func TestExecute_InFlightTimeout(t *testing.T) {
	store := NewMemoryStore()
	g := NewGuard(store, Config{TTL: time.Hour, InFlightWait: 20 * time.Millisecond, PollInterval: 5 * time.Millisecond},
		zap.NewNop())
	ctx := context.Background()

	hash, err := HashPayload(payload{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Reserve(ctx, "s:key-12345", hash, time.Now(), time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	_, err = g.Execute(ctx, "s", "key-12345", payload{}, func(context.Context) (int, any, error) {
		t.Fatal("work must not run while another owner is in flight")
		return 0, nil, nil
	})
	if !errors.Is(err, ErrInProgress) || !apperrors.HasCode(err, apperrors.CodeIdempotencyInProgress) {
		t.Fatalf("Execute() error = %v, want ErrInProgress", err)
	}
}

func TestExecute_ContextCancelledWhileWaiting(t *testing.T) {
	store := NewMemoryStore()
	g := NewGuard(store, Config{TTL: time.Hour, InFlightWait: time.Minute, PollInterval: 5 * time.Millisecond},
		zap.NewNop())

	hash, _ := HashPayload(payload{})
	_, _ = store.Reserve(context.Background(), "s:key-12345", hash, time.Now(), time.Now().Add(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := g.Execute(ctx, "s", "key-12345", payload{}, func(context.Context) (int, any, error) {
		return 200, nil, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Execute() error = %v, want deadline exceeded", err)
	}
}

func TestExecute_ExpiredRecordIsAbsent(t *testing.T) {
	store := NewMemoryStore()
	g := newTestGuard(store)
	ctx := context.Background()

	hash, _ := HashPayload(payload{"other", "1"})
	past := time.Now().Add(-2 * time.Hour)
	_, _ = store.Reserve(ctx, "s:key-12345", hash, past, past.Add(time.Hour))
	_ = store.Complete(ctx, "s:key-12345", hash, 200, json.RawMessage(`"old"`))

	resp, err := g.Execute(ctx, "s", "key-12345", payload{"new", "1"}, func(context.Context) (int, any, error) {
		return 201, "new", nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.Replayed || resp.Status != 201 {
		t.Fatalf("expected fresh execution, got %+v", resp)
	}

	n, err := g.Purge(ctx)
	if err != nil || n != 0 {
		t.Fatalf("Purge() = %d, %v; want 0, nil", n, err)
	}
}

func TestHashPayload_Deterministic(t *testing.T) {
	a, err := HashPayload(payload{"q_1", "100"})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := HashPayload(payload{"q_1", "100"})
	c, _ := HashPayload(payload{"q_1", "101"})
	if a != b || a == c || len(a) != 64 {
		t.Fatalf("unexpected hashes %s %s %s", a, b, c)
	}
}

func TestResponse_Write(t *testing.T) {
	rec := httptest.NewRecorder()
	(&Response{Status: 201, Body: json.RawMessage(`{"a":1}`), Replayed: true}).Write(rec)

	if rec.Code != 201 {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if rec.Header().Get(ReplayedHeader) != "true" {
		t.Fatalf("missing %s header", ReplayedHeader)
	}
	if rec.Body.String() != `{"a":1}` {
		t.Fatalf("body = %s", rec.Body.String())
	}
}
