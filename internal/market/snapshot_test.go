package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMarketSnapshotMarksUnavailable(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 5, 10, 16, 0, 0, 0, time.UTC)}
	start := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	p := &fakeProvider{
		name: "yahoo",
		price: func(context.Context, int) (float64, error) {
			return 110, nil
		},
		bars: func(context.Context, int) ([]Bar, error) {
			return dailyBars(start, 95, 98, 100, 110), nil
		},
	}
	empty := &fakeProvider{name: "stooq"}
	svc := newTestService(clock, p)

	snap, err := svc.GetMarketSnapshot(context.Background(), []string{"aapl", "AAPL", "btc-usd"})
	require.NoError(t, err)
	require.Len(t, snap, 2)

	aapl := snap["AAPL"]
	assert.True(t, aapl.Available)
	assert.Equal(t, 110.0, aapl.Price)
	assert.InDelta(t, 10.0, aapl.ChangePct, 1e-9)
	assert.Equal(t, 1003.0, aapl.Volume)

	svc2 := newTestService(clock, empty)
	snap, err = svc2.GetMarketSnapshot(context.Background(), []string{"MSFT"})
	require.NoError(t, err)
	require.Contains(t, snap, "MSFT")
	assert.False(t, snap["MSFT"].Available)
	assert.Contains(t, snap["MSFT"].Error, ErrNoData.Error())
}

func TestGetMarketSnapshotNeedsTwoBars(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	p := &fakeProvider{
		name:  "yahoo",
		price: fixed(5),
		bars: func(context.Context, int) ([]Bar, error) {
			return dailyBars(time.Unix(1_699_000_000, 0), 5), nil
		},
	}
	svc := newTestService(clock, p)
	snap, err := svc.GetMarketSnapshot(context.Background(), []string{"F"})
	require.NoError(t, err)
	f := snap["F"]
	assert.True(t, f.Available)
	assert.Equal(t, 5.0, f.Price)
	assert.Zero(t, f.ChangePct)
	assert.Equal(t, 1000.0, f.Volume)
	assert.Contains(t, f.Error, "2 bars")
}

func TestGetMarketSnapshotKeepsPriceWithoutHistory(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	svc := newTestService(clock, &fakeProvider{name: "yahoo", price: fixed(42)})
	snap, err := svc.GetMarketSnapshot(context.Background(), []string{"GM"})
	require.NoError(t, err)
	gm := snap["GM"]
	assert.True(t, gm.Available)
	assert.Equal(t, 42.0, gm.Price)
	assert.Zero(t, gm.ChangePct)
	assert.Zero(t, gm.Volume)
	assert.Contains(t, gm.Error, ErrNoData.Error())
}

func TestGetMarketSnapshotHonoursCancellation(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	svc := newTestService(clock, &fakeProvider{name: "yahoo", price: fixed(1)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.GetMarketSnapshot(ctx, []string{"F", "GM"})
	assert.ErrorIs(t, err, context.Canceled)
}
