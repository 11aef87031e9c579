package scan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/barcode"
	"github.com/noah-isme/backend-kasir/internal/cart"
)

var errNoMatch = errors.New("no match")

type recorder struct {
	mu    sync.Mutex
	codes []string
}

func (r *recorder) lookup(ctx context.Context, code string) (string, error) {
	r.mu.Lock()
	r.codes = append(r.codes, code)
	r.mu.Unlock()
	switch code {
	case "missing":
		return "", errNoMatch
	case "broken":
		return "", errors.New("backend unavailable")
	}
	return "item-" + code, nil
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.codes...)
}

func newTestController(t *testing.T, lookup LookupFunc[string], clock *fakeClock) (*Controller[string], chan Result[string]) {
	t.Helper()
	results := make(chan Result[string], 8)
	c := New(lookup, Options{
		Debounce:       DefaultDebounce,
		DedupWindow:    DefaultDedupWindow,
		CriticalFields: DefaultCriticalFields,
		Normalize:      barcode.Normalize,
		NotFound:       func(err error) bool { return errors.Is(err, errNoMatch) },
		Clock:          clock,
	}, func(res Result[string]) { results <- res })
	return c, results
}

func waitResult(t *testing.T, results chan Result[string]) Result[string] {
	t.Helper()
	select {
	case res := <-results:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for scan result")
	}
	return Result[string]{}
}

func requireNoResult(t *testing.T, results chan Result[string]) {
	t.Helper()
	select {
	case res := <-results:
		t.Fatalf("unexpected result %+v", res)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDebounceCoalescesKeystrokes(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	c, results := newTestController(t, rec.lookup, clock)

	for _, v := range []string{"5", "59", "599", "5990"} {
		require.True(t, c.Input(v))
		require.Equal(t, StateDebouncing, c.State())
		clock.Advance(60 * time.Millisecond)
	}
	require.Empty(t, rec.calls())

	clock.Advance(40 * time.Millisecond)
	res := waitResult(t, results)
	require.Equal(t, StatusFound, res.Status)
	require.Equal(t, "item-5990", res.Value)
	require.Equal(t, []string{"5990"}, rec.calls())
	require.Eventually(t, func() bool { return c.State() == StateIdle }, time.Second, 5*time.Millisecond)
}

func TestInputNormalisesBeforeLookup(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	c, results := newTestController(t, rec.lookup, clock)

	c.Input("  ABCü12ö  ")
	clock.Advance(DefaultDebounce)
	res := waitResult(t, results)
	require.Equal(t, "ABC-120", res.Code)
	require.Equal(t, []string{"ABC-120"}, rec.calls())
}

func TestEmptyInputNeverDispatches(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	c, results := newTestController(t, rec.lookup, clock)

	c.Input("   ")
	clock.Advance(DefaultDebounce)
	requireNoResult(t, results)
	require.Equal(t, StateIdle, c.State())

	res := c.Submit(context.Background(), "\t")
	require.Equal(t, StatusEmpty, res.Status)
	require.Empty(t, rec.calls())
}

func TestDedupWindowWithCart(t *testing.T) {
	item := cart.Item{
		Identity:  cart.Identity{Kind: "product", ProductID: "7"},
		Name:      "Kábel",
		UnitGross: 1270,
		UnitNet:   1000,
	}
	lookup := func(context.Context, string) (cart.Item, error) { return item, nil }

	run := func(gap time.Duration) decimal.Decimal {
		clock := newFakeClock()
		c := New[cart.Item](lookup, Options{DedupWindow: DefaultDedupWindow, Clock: clock}, nil)
		var crt cart.Cart
		for i := 0; i < 2; i++ {
			res := c.Submit(context.Background(), "5990001")
			if res.Status == StatusFound {
				_, err := crt.AddOrIncrement(res.Value)
				require.NoError(t, err)
			}
			clock.Advance(gap)
		}
		require.Len(t, crt.Lines, 1)
		return crt.Lines[0].Quantity
	}

	require.True(t, run(50*time.Millisecond).Equal(decimal.NewFromInt(1)))
	require.True(t, run(5*time.Second).Equal(decimal.NewFromInt(2)))
}

func TestDuplicateOfDifferentCodeIsDispatched(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	c, _ := newTestController(t, rec.lookup, clock)

	require.Equal(t, StatusFound, c.Submit(context.Background(), "111").Status)
	clock.Advance(10 * time.Millisecond)
	require.Equal(t, StatusFound, c.Submit(context.Background(), "222").Status)
	clock.Advance(10 * time.Millisecond)
	require.Equal(t, StatusDuplicate, c.Submit(context.Background(), "222").Status)
	require.Equal(t, []string{"111", "222"}, rec.calls())
}

func TestCriticalFieldSuspendsScanning(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	c, results := newTestController(t, rec.lookup, clock)

	c.Input("123")
	c.Focus("price")
	require.True(t, c.Guarded())
	require.Equal(t, "", c.Pending())
	require.Equal(t, StateIdle, c.State())

	clock.Advance(DefaultDebounce)
	requireNoResult(t, results)

	require.False(t, c.Input("456"))
	require.Equal(t, StatusIgnored, c.Submit(context.Background(), "456").Status)
	require.Empty(t, rec.calls())

	c.Blur("price")
	c.Focus("customer")
	require.False(t, c.Guarded())
	require.Equal(t, StatusFound, c.Submit(context.Background(), "456").Status)
	require.Equal(t, []string{"456"}, rec.calls())
}

func TestLookupOutcomes(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	c, _ := newTestController(t, rec.lookup, clock)

	res := c.Submit(context.Background(), "missing")
	require.Equal(t, StatusNotFound, res.Status)
	require.Contains(t, res.Message, "missing")
	require.Equal(t, StateIdle, c.State())

	res = c.Submit(context.Background(), "broken")
	require.Equal(t, StatusFailed, res.Status)
	require.Error(t, res.Err)
	require.Equal(t, "", c.Pending())
}

func TestNewInputSupersedesInFlightLookup(t *testing.T) {
	clock := newFakeClock()
	started := make(chan string, 4)
	cancelled := make(chan string, 4)
	lookup := func(ctx context.Context, code string) (string, error) {
		started <- code
		if code == "slow" {
			<-ctx.Done()
			cancelled <- code
			return "", ctx.Err()
		}
		return "item-" + code, nil
	}
	c, results := newTestController(t, lookup, clock)

	c.Input("slow")
	clock.Advance(DefaultDebounce)
	require.Equal(t, "slow", <-started)
	require.Equal(t, StateInFlight, c.State())

	c.Input("fast")
	select {
	case code := <-cancelled:
		require.Equal(t, "slow", code)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded lookup was not cancelled")
	}

	clock.Advance(DefaultDebounce)
	res := waitResult(t, results)
	require.Equal(t, StatusFound, res.Status)
	require.Equal(t, "fast", res.Code)
	requireNoResult(t, results)
}

func TestCancelReturnsToIdle(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	c, results := newTestController(t, rec.lookup, clock)

	c.Input("123")
	c.Cancel()
	require.Equal(t, StateIdle, c.State())
	clock.Advance(DefaultDebounce)
	requireNoResult(t, results)
	require.Empty(t, rec.calls())
}
