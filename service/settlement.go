package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/layer-3/promox/core"
	"github.com/layer-3/promox/paygate"
	"github.com/layer-3/promox/ports"
)

// SettlementEngine records a sale after the facilitator settles a payment.
// It is the only path that marks a coupon sold.
type SettlementEngine struct {
	coupons  ports.CouponStore
	payments ports.PaymentStore
	users    ports.UserStore
	eventPub ports.EventPublisher
	logger   *slog.Logger
	now      func() time.Time
	timeout  time.Duration
}

// settlementTimeout bounds the bookkeeping that follows an on-chain settlement
const settlementTimeout = 30 * time.Second

// NewSettlementEngine creates a settlement engine
func NewSettlementEngine(
	coupons ports.CouponStore,
	payments ports.PaymentStore,
	users ports.UserStore,
	eventPub ports.EventPublisher,
	logger *slog.Logger,
) *SettlementEngine {
	return &SettlementEngine{
		coupons:  coupons,
		payments: payments,
		users:    users,
		eventPub: eventPub,
		logger:   logger,
		now:      time.Now,
		timeout:  settlementTimeout,
	}
}

// AfterSettle is a paygate.AfterSettleFunc. It logs failures and never
// reports them, since the buyer has already paid. The store writes run
// detached from ctx cancellation, bounded by their own timeout.
func (e *SettlementEngine) AfterSettle(ctx context.Context, result paygate.SettleResult) {
	if !result.Success {
		return
	}

	// Writes outlive the buyer's request
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	logger := e.logger.With("resource", result.Resource, "transaction", result.Transaction)

	couponID, ok := CouponIDFromResource(result.Resource)
	if !ok {
		logger.ErrorContext(ctx, "settled payment for unknown resource")
		return
	}
	logger = logger.With("coupon_id", couponID)

	if !common.IsHexAddress(result.Payer) {
		logger.ErrorContext(ctx, "settled payment without a payer address", "payer", result.Payer)
		return
	}
	buyer := strings.ToLower(result.Payer)

	if err := e.users.EnsureUser(ctx, buyer); err != nil {
		logger.ErrorContext(ctx, "failed to register buyer", "buyer", buyer, "error", err)
		return
	}

	soldAt := e.now()
	affected, err := e.coupons.MarkSold(ctx, couponID, buyer, soldAt)
	if err != nil {
		logger.ErrorContext(ctx, "failed to mark coupon sold", "error", err)
		return
	}
	if affected == 0 {
		logger.WarnContext(ctx, "coupon already sold, settlement ignored", "buyer", buyer)
		return
	}

	coupon, err := e.coupons.GetCoupon(ctx, couponID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load sold coupon", "error", err)
		return
	}

	payment := &core.Payment{
		ID:           uuid.New().String(),
		CouponID:     couponID,
		PayerAddress: buyer,
		AmountUSD:    coupon.PriceUSD,
		Network:      result.Network,
		Status:       core.PaymentSettled,
		CreatedAt:    soldAt,
	}
	if result.Transaction != "" {
		tx := result.Transaction
		payment.TransactionHash = &tx
	}

	if err := e.payments.InsertPayment(ctx, payment); err != nil {
		logger.ErrorContext(ctx, "failed to record payment", "error", err)
		return
	}

	logger.InfoContext(ctx, "coupon sold", "buyer", buyer, "amount_usd", coupon.PriceUSD.String())

	if err := e.eventPub.PublishSale(ctx, core.SaleEvent{
		CouponID:      couponID,
		SellerAddress: coupon.SellerAddress,
		BuyerAddress:  buyer,
		AmountUSD:     coupon.PriceUSD,
		Transaction:   result.Transaction,
		Network:       result.Network,
		SoldAt:        soldAt,
	}); err != nil {
		logger.WarnContext(ctx, "failed to publish sale event", "error", err)
	}
}
