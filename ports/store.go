package ports

import (
	"context"
	"time"

	"github.com/layer-3/promox/core"
)

// NonceStore holds sign-in nonces until they are consumed or expire
type NonceStore interface {
	PutNonce(ctx context.Context, binding, nonce string, ttl time.Duration) error
	// TakeNonce returns and deletes the nonce in one step.
	// A missing or expired binding yields core.ErrNonceInvalidOrExpired.
	TakeNonce(ctx context.Context, binding string) (string, error)
}

// RevocationStore blacklists session ids until their natural expiry
type RevocationStore interface {
	RevokeSession(ctx context.Context, sessionID string, ttl time.Duration) error
	IsSessionRevoked(ctx context.Context, sessionID string) (bool, error)
}

// CouponStore persists listings
type CouponStore interface {
	GetCoupon(ctx context.Context, id string) (*core.Coupon, error)
	CreateCoupon(ctx context.Context, coupon *core.Coupon) error
	// UpdateCoupon applies the update only while the coupon is unsold.
	// It returns core.ErrConflict when the coupon was sold.
	UpdateCoupon(ctx context.Context, id string, update core.CouponUpdate) (*core.Coupon, error)
	// DeleteCoupon removes the coupon only while it is unsold.
	DeleteCoupon(ctx context.Context, id string) error
	ListCoupons(ctx context.Context, filter core.CouponFilter) ([]*core.Coupon, error)
	// MarkSold flips is_sold from false to true for id and reports the rows affected.
	// Zero means another settlement already sold the coupon.
	MarkSold(ctx context.Context, id, buyer string, at time.Time) (int64, error)
}

// PaymentStore persists payment records
type PaymentStore interface {
	InsertPayment(ctx context.Context, payment *core.Payment) error
	SettledPayment(ctx context.Context, couponID string) (*core.Payment, error)
	PaymentsByCoupon(ctx context.Context, couponID string) ([]*core.Payment, error)
}

// UserStore tracks known wallet addresses
type UserStore interface {
	EnsureUser(ctx context.Context, address string) error
}
