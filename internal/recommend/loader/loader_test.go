// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package loader

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

var base = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	interactions []recommend.InteractionRecord
	products     []recommend.Product
	users        []recommend.User
	err          error
	calls        int
	productCalls int
	maxOrders    int
}

func (f *fakeSource) FulfilledInteractions(ctx context.Context, maxOrders int) ([]recommend.InteractionRecord, error) {
	f.calls++
	f.maxOrders = maxOrders
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.interactions, nil
}

func (f *fakeSource) Products(_ context.Context) ([]recommend.Product, error) {
	f.productCalls++
	return f.products, nil
}

func (f *fakeSource) Users(_ context.Context) ([]recommend.User, error) {
	return f.users, nil
}

func line(user, item, order int, qty int, price float64, day int) recommend.InteractionRecord {
	return recommend.InteractionRecord{
		UserID:    user,
		ItemID:    item,
		OrderID:   order,
		Quantity:  qty,
		UnitPrice: price,
		Timestamp: base.AddDate(0, 0, day),
	}
}

func TestLoad_ByModelType(t *testing.T) {
	src := &fakeSource{
		interactions: []recommend.InteractionRecord{
			line(1, 10, 100, 1, 5, 0),
			line(1, 11, 101, 2, 3, 10),
			line(2, 10, 102, 1, 5, 20),
		},
		products: []recommend.Product{{ID: 10}, {ID: 11}},
	}
	l := New(src, DefaultConfig(), zerolog.Nop())

	tests := []struct {
		modelType    recommend.ModelType
		wantProducts int
		wantRFM      int
	}{
		{recommend.ModelCollaborative, 0, 0},
		{recommend.ModelContent, 2, 0},
		{recommend.ModelClustering, 0, 2},
		{recommend.ModelReorder, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.modelType.String(), func(t *testing.T) {
			ds, err := l.Load(context.Background(), tt.modelType)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if len(ds.Interactions) != 3 {
				t.Errorf("interactions = %d, want 3", len(ds.Interactions))
			}
			if len(ds.Products) != tt.wantProducts {
				t.Errorf("products = %d, want %d", len(ds.Products), tt.wantProducts)
			}
			if len(ds.RFM) != tt.wantRFM {
				t.Errorf("rfm = %d, want %d", len(ds.RFM), tt.wantRFM)
			}
			if !ds.ReferenceTime.Equal(base.AddDate(0, 0, 20)) {
				t.Errorf("ReferenceTime = %v, want latest interaction", ds.ReferenceTime)
			}
		})
	}
}

func TestLoad_OrderWindowAlwaysBounded(t *testing.T) {
	tests := []struct {
		name       string
		configured int
		want       int
	}{
		{"default config", DefaultConfig().MaxOrders, DefaultMaxOrders},
		{"unset", 0, DefaultMaxOrders},
		{"negative", -1, DefaultMaxOrders},
		{"explicit", 200, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{interactions: []recommend.InteractionRecord{line(1, 10, 100, 1, 5, 0)}}
			l := New(src, Config{MaxOrders: tt.configured}, zerolog.Nop())
			if _, err := l.Load(context.Background(), recommend.ModelCollaborative); err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if src.maxOrders != tt.want {
				t.Errorf("source asked for %d orders, want %d", src.maxOrders, tt.want)
			}
		})
	}
}

func TestLoad_EmptyStore(t *testing.T) {
	l := New(&fakeSource{}, DefaultConfig(), zerolog.Nop())
	now := base.AddDate(1, 0, 0)
	l.now = func() time.Time { return now }

	ds, err := l.Load(context.Background(), recommend.ModelCollaborative)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(ds.Interactions) != 0 {
		t.Errorf("interactions = %d, want 0", len(ds.Interactions))
	}
	if !ds.ReferenceTime.Equal(now) {
		t.Errorf("ReferenceTime = %v, want fallback %v", ds.ReferenceTime, now)
	}
}

func TestLoad_UnreachableStore(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	cfg := DefaultConfig()
	cfg.BreakerFailures = 2
	cfg.BreakerTimeout = time.Hour
	l := New(src, cfg, zerolog.Nop())

	for i := 0; i < 2; i++ {
		_, err := l.Load(context.Background(), recommend.ModelReorder)
		if !errors.Is(err, recommend.ErrInsufficientData) {
			t.Fatalf("Load() #%d error = %v, want ErrInsufficientData", i, err)
		}
	}

	// Breaker is open now: the source is not called again.
	_, err := l.Load(context.Background(), recommend.ModelReorder)
	if !errors.Is(err, recommend.ErrInsufficientData) {
		t.Fatalf("Load() with open breaker error = %v, want ErrInsufficientData", err)
	}
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Load() with open breaker error = %v, want ErrOpenState", err)
	}
	if src.calls != 2 {
		t.Errorf("source calls = %d, want 2", src.calls)
	}
}

func TestLoad_CancelledDoesNotTripBreaker(t *testing.T) {
	src := &fakeSource{}
	cfg := DefaultConfig()
	cfg.BreakerFailures = 1
	l := New(src, cfg, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Load(ctx, recommend.ModelContent); !errors.Is(err, context.Canceled) {
		t.Fatalf("Load() error = %v, want context.Canceled", err)
	}
	if _, err := l.Load(context.Background(), recommend.ModelContent); err != nil {
		t.Errorf("Load() after cancellation error = %v, breaker should still be closed", err)
	}
}

func TestBuildRFM(t *testing.T) {
	ref := base.AddDate(0, 0, 40)
	interactions := []recommend.InteractionRecord{
		// User 1: three orders on days 0, 10, 30; order 100 has two lines.
		line(1, 10, 100, 1, 5, 0),
		line(1, 11, 100, 2, 3, 0),
		line(1, 10, 101, 1, 5, 10),
		line(1, 12, 102, 4, 2.5, 30),
		// User 2: a single order.
		line(2, 10, 200, 1, 8, 35),
	}

	got := BuildRFM(interactions, ref)
	if len(got) != 2 {
		t.Fatalf("BuildRFM() returned %d users, want 2", len(got))
	}

	u1 := got[0]
	if u1.UserID != 1 {
		t.Fatalf("first user = %d, want 1", u1.UserID)
	}
	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"recency", u1.RecencyDays, 10},
		{"frequency", float64(u1.FrequencyCount), 4},
		{"monetary", u1.MonetaryTotal, 5 + 6 + 5 + 10},
		{"avg order value", u1.AvgOrderValue, 26.0 / 3.0},
		{"unique items", float64(u1.UniqueItems), 3},
		{"avg gap", u1.AvgDaysBetweenOrders, 15},
		{"std gap", u1.StdDaysBetweenOrders, 5},
		{"cluster", float64(u1.Cluster), -1},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > 1e-9 {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	u2 := got[1]
	if u2.AvgDaysBetweenOrders != 0 || u2.StdDaysBetweenOrders != 0 {
		t.Errorf("single-order gaps = %v/%v, want 0/0", u2.AvgDaysBetweenOrders, u2.StdDaysBetweenOrders)
	}
	if u2.RecencyDays != 5 {
		t.Errorf("user 2 recency = %v, want 5", u2.RecencyDays)
	}
}
