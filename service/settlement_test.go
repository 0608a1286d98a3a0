package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/layer-3/promox/adapters/store"
	"github.com/layer-3/promox/core"
	"github.com/layer-3/promox/paygate"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettlement_RecordsSale(t *testing.T) {
	ctx := context.Background()
	f := newMarketFixture(t)
	seller := newWallet(t)
	buyer := newWallet(t)
	view := listCoupon(t, f, seller, "CODE")

	resolver := NewCouponResolver(f.records, discard)
	price, err := resolver.ResolvePrice(ctx, "/secret/"+view.ID)
	require.NoError(t, err)
	assert.Equal(t, "$5.00", price)
	payTo, err := resolver.ResolvePayTo(ctx, "/secret/"+view.ID)
	require.NoError(t, err)
	assert.Equal(t, seller.Lower(), payTo)

	sell(t, f, view.ID, buyer)

	coupon, err := f.records.GetCoupon(ctx, view.ID)
	require.NoError(t, err)
	assert.True(t, coupon.IsSold)
	require.NotNil(t, coupon.BuyerAddress)
	assert.Equal(t, buyer.Lower(), *coupon.BuyerAddress)
	assert.NotNil(t, coupon.PurchasedAt)

	payments, err := f.records.PaymentsByCoupon(ctx, view.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	p := payments[0]
	assert.Equal(t, core.PaymentSettled, p.Status)
	assert.Equal(t, buyer.Lower(), p.PayerAddress)
	assert.True(t, p.AmountUSD.Equal(decimal.RequireFromString("5")))
	assert.Equal(t, "eip155:84532", p.Network)
	require.NotNil(t, p.TransactionHash)
	assert.Equal(t, "0xfeed", *p.TransactionHash)

	sales := f.events.Sales()
	require.Len(t, sales, 1)
	assert.Equal(t, seller.Lower(), sales[0].SellerAddress)

	// A second buyer settling afterwards changes nothing
	late := newWallet(t)
	sell(t, f, view.ID, late)

	coupon, err = f.records.GetCoupon(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, buyer.Lower(), *coupon.BuyerAddress)
	payments, err = f.records.PaymentsByCoupon(ctx, view.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
	assert.Len(t, f.events.Sales(), 1)
}

func TestSettlement_ConcurrentCallbacks(t *testing.T) {
	ctx := context.Background()
	f := newMarketFixture(t)
	seller := newWallet(t)
	view := listCoupon(t, f, seller, "CODE")

	buyers := make([]*wallet, 8)
	for i := range buyers {
		buyers[i] = newWallet(t)
	}

	var wg sync.WaitGroup
	for _, b := range buyers {
		wg.Add(1)
		go func(b *wallet) {
			defer wg.Done()
			sell(t, f, view.ID, b)
		}(b)
	}
	wg.Wait()

	payments, err := f.records.PaymentsByCoupon(ctx, view.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Len(t, f.events.Sales(), 1)

	coupon, err := f.records.GetCoupon(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, payments[0].PayerAddress, *coupon.BuyerAddress)
}

func TestSettlement_Ignored(t *testing.T) {
	ctx := context.Background()
	f := newMarketFixture(t)
	seller := newWallet(t)
	buyer := newWallet(t)
	view := listCoupon(t, f, seller, "CODE")

	cases := map[string]paygate.SettleResult{
		"not settled": {
			Resource: "/secret/" + view.ID,
			Success:  false,
			Payer:    buyer.Address,
		},
		"foreign resource": {
			Resource: "/coupons/" + view.ID,
			Success:  true,
			Payer:    buyer.Address,
		},
		"no payer": {
			Resource: "/secret/" + view.ID,
			Success:  true,
		},
		"unknown coupon": {
			Resource: "/secret/nope",
			Success:  true,
			Payer:    buyer.Address,
		},
	}

	for name, result := range cases {
		t.Run(name, func(t *testing.T) {
			f.settlement.AfterSettle(ctx, result)
		})
	}

	coupon, err := f.records.GetCoupon(ctx, view.ID)
	require.NoError(t, err)
	assert.False(t, coupon.IsSold)
	assert.Nil(t, coupon.BuyerAddress)
	assert.Empty(t, f.events.Sales())
}

func TestSettlement_PublishFailureKeepsSale(t *testing.T) {
	ctx := context.Background()
	f := newMarketFixture(t)
	f.events.err = errors.New("broker down")
	seller := newWallet(t)
	buyer := newWallet(t)
	view := listCoupon(t, f, seller, "CODE")

	sell(t, f, view.ID, buyer)

	coupon, err := f.records.GetCoupon(ctx, view.ID)
	require.NoError(t, err)
	assert.True(t, coupon.IsSold)
}

// ctxRecords fails every write once its context is done, as SQL drivers do
type ctxRecords struct {
	*store.MemoryRecordStore
}

func (s ctxRecords) EnsureUser(ctx context.Context, address string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryRecordStore.EnsureUser(ctx, address)
}

func (s ctxRecords) MarkSold(ctx context.Context, id, buyer string, at time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.MemoryRecordStore.MarkSold(ctx, id, buyer, at)
}

func (s ctxRecords) InsertPayment(ctx context.Context, payment *core.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryRecordStore.InsertPayment(ctx, payment)
}

func TestSettlement_SurvivesCancelledRequest(t *testing.T) {
	f := newMarketFixture(t)
	seller := newWallet(t)
	buyer := newWallet(t)
	view := listCoupon(t, f, seller, "CODE")

	records := ctxRecords{f.records}
	engine := NewSettlementEngine(records, records, records, f.events, discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine.AfterSettle(ctx, paygate.SettleResult{
		Resource:    "/secret/" + view.ID,
		Success:     true,
		Payer:       buyer.Address,
		Transaction: "0xfeed",
		Network:     "eip155:84532",
	})

	coupon, err := f.records.GetCoupon(context.Background(), view.ID)
	require.NoError(t, err)
	assert.True(t, coupon.IsSold)

	payments, err := f.records.PaymentsByCoupon(context.Background(), view.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, core.PaymentSettled, payments[0].Status)
}
