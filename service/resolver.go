package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/layer-3/promox/core"
	"github.com/layer-3/promox/paygate"
	"github.com/layer-3/promox/ports"
)

var secretPathRe = regexp.MustCompile(`/secret/([^/?#]+)`)

// CouponIDFromResource extracts the coupon id from a /secret/{id} path or URL
func CouponIDFromResource(resource string) (string, bool) {
	match := secretPathRe.FindStringSubmatch(resource)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// CouponResolver prices /secret/{id} by the coupon's listing
type CouponResolver struct {
	coupons ports.CouponStore
	logger  *slog.Logger
}

// NewCouponResolver creates a resolver backed by coupons
func NewCouponResolver(coupons ports.CouponStore, logger *slog.Logger) *CouponResolver {
	return &CouponResolver{coupons: coupons, logger: logger}
}

var _ paygate.Resolver = (*CouponResolver)(nil)

func (r *CouponResolver) lookup(ctx context.Context, path string) (*core.Coupon, error) {
	id, ok := CouponIDFromResource(path)
	if !ok {
		return nil, fmt.Errorf("no coupon id in %q: %w", path, core.ErrNotFound)
	}

	coupon, err := r.coupons.GetCoupon(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up coupon %s: %w", id, err)
	}
	return coupon, nil
}

// ResolvePrice returns the coupon price as "$5.00"
func (r *CouponResolver) ResolvePrice(ctx context.Context, path string) (string, error) {
	coupon, err := r.lookup(ctx, path)
	if err != nil {
		return "", err
	}
	return paygate.FormatPrice(coupon.PriceUSD), nil
}

// ResolvePayTo returns the seller address
func (r *CouponResolver) ResolvePayTo(ctx context.Context, path string) (string, error) {
	coupon, err := r.lookup(ctx, path)
	if err != nil {
		return "", err
	}

	if coupon.SellerAddress == "" {
		r.logger.ErrorContext(ctx, "coupon has no seller address",
			"coupon_id", coupon.ID,
			"violation", "missing_seller_address",
		)
		return "", fmt.Errorf("coupon %s has no seller: %w", coupon.ID, core.ErrDataIntegrity)
	}

	return coupon.SellerAddress, nil
}
