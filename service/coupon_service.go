package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/promox/core"
	"github.com/layer-3/promox/ports"
	"github.com/shopspring/decimal"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// Listing kinds for ListForUser
const (
	ListingsListed    = "listed"
	ListingsPurchased = "purchased"
)

// CouponInput is a new listing as submitted by a seller
type CouponInput struct {
	SellerAddress string
	Title         string
	Description   string
	Brand         string
	Category      string
	Currency      string
	Country       string
	Terms         string
	Code          string
	Price         *decimal.Decimal
	ExpiryDate    *time.Time
}

func (in CouponInput) validate() error {
	var missing []string
	for name, v := range map[string]string{
		"sellerAddress": in.SellerAddress,
		"title":         in.Title,
		"brand":         in.Brand,
		"code":          in.Code,
		"currency":      in.Currency,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if in.Price == nil {
		missing = append(missing, "price")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields", core.ErrInvalidInput)
	}

	if in.Price.IsNegative() {
		return fmt.Errorf("%w: price must be non-negative", core.ErrInvalidInput)
	}

	return nil
}

// Secret is a decrypted coupon released to a paying buyer
type Secret struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Brand       string     `json:"brand"`
	Code        string     `json:"code"`
	Description string     `json:"description,omitempty"`
	Terms       string     `json:"terms,omitempty"`
	ExpiryDate  *time.Time `json:"expiryDate"`
}

// CouponService manages listings and releases their secrets
type CouponService struct {
	coupons  ports.CouponStore
	payments ports.PaymentStore
	users    ports.UserStore
	codec    ports.SecretCodec
	logger   *slog.Logger
	now      func() time.Time
}

// NewCouponService creates a coupon service
func NewCouponService(
	coupons ports.CouponStore,
	payments ports.PaymentStore,
	users ports.UserStore,
	codec ports.SecretCodec,
	logger *slog.Logger,
) *CouponService {
	return &CouponService{
		coupons:  coupons,
		payments: payments,
		users:    users,
		codec:    codec,
		logger:   logger,
		now:      time.Now,
	}
}

// Create lists a new coupon for subject
func (s *CouponService) Create(ctx context.Context, subject string, in CouponInput) (*core.CouponView, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := RequireSelfListing(subject, in.SellerAddress); err != nil {
		return nil, err
	}

	seller := strings.ToLower(in.SellerAddress)
	if err := s.users.EnsureUser(ctx, seller); err != nil {
		return nil, err
	}

	envelope, err := s.codec.Encrypt(in.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt code: %w", err)
	}

	category := in.Category
	if category == "" {
		category = core.DefaultCategory
	}

	coupon := &core.Coupon{
		ID:            uuid.New().String(),
		SellerAddress: seller,
		Title:         in.Title,
		Description:   in.Description,
		Brand:         in.Brand,
		Category:      category,
		Currency:      in.Currency,
		Country:       in.Country,
		Terms:         in.Terms,
		CodeEncrypted: envelope,
		PriceUSD:      *in.Price,
		ExpiryDate:    in.ExpiryDate,
		Status:        core.StatusUnverified,
		CreatedAt:     s.now(),
	}

	if err := s.coupons.CreateCoupon(ctx, coupon); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "coupon listed", "coupon_id", coupon.ID, "seller", seller)

	view := coupon.View()
	return &view, nil
}

// Get returns the public view of a coupon, with its settlement once sold
func (s *CouponService) Get(ctx context.Context, id string) (*core.CouponView, error) {
	coupon, err := s.coupons.GetCoupon(ctx, id)
	if err != nil {
		return nil, err
	}

	view := coupon.View()
	if coupon.IsSold {
		payment, err := s.payments.SettledPayment(ctx, id)
		switch {
		case err == nil && payment.TransactionHash != nil:
			view.Transaction = &core.TransactionSummary{Hash: *payment.TransactionHash, Network: payment.Network}
		case err != nil && !errors.Is(err, core.ErrNotFound):
			return nil, err
		}
	}

	return &view, nil
}

// List returns public coupon views matching filter
func (s *CouponService) List(ctx context.Context, filter core.CouponFilter) ([]core.CouponView, error) {
	filter.Seller, filter.Buyer = "", ""
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	coupons, err := s.coupons.ListCoupons(ctx, filter)
	if err != nil {
		return nil, err
	}

	views := make([]core.CouponView, 0, len(coupons))
	for _, c := range coupons {
		views = append(views, c.View())
	}
	return views, nil
}

// Update edits an unsold coupon owned by subject
func (s *CouponService) Update(ctx context.Context, subject, id string, update core.CouponUpdate) (*core.CouponView, error) {
	coupon, err := s.coupons.GetCoupon(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := RequireOwner(subject, coupon.SellerAddress); err != nil {
		return nil, err
	}
	if err := RequireAvailable(coupon); err != nil {
		return nil, err
	}

	if update.Empty() {
		return nil, fmt.Errorf("%w: no updatable fields", core.ErrInvalidInput)
	}
	if update.PriceUSD != nil && update.PriceUSD.IsNegative() {
		return nil, fmt.Errorf("%w: price must be non-negative", core.ErrInvalidInput)
	}
	if update.Title != nil && strings.TrimSpace(*update.Title) == "" {
		return nil, fmt.Errorf("%w: title cannot be empty", core.ErrInvalidInput)
	}

	updated, err := s.coupons.UpdateCoupon(ctx, id, update)
	if err != nil {
		return nil, err
	}

	view := updated.View()
	return &view, nil
}

// Delete removes an unsold coupon owned by subject
func (s *CouponService) Delete(ctx context.Context, subject, id string) error {
	coupon, err := s.coupons.GetCoupon(ctx, id)
	if err != nil {
		return err
	}
	if err := RequireOwner(subject, coupon.SellerAddress); err != nil {
		return err
	}
	if err := RequireAvailable(coupon); err != nil {
		return err
	}

	return s.coupons.DeleteCoupon(ctx, id)
}

// ListForUser returns the coupons subject listed or bought.
// Purchased coupons carry their decrypted code.
func (s *CouponService) ListForUser(ctx context.Context, subject, address, kind string) ([]core.CouponView, error) {
	if err := RequireSelfListing(subject, address); err != nil {
		return nil, err
	}

	filter := core.CouponFilter{ShowSold: true, ShowExpired: true}
	switch kind {
	case "", ListingsListed:
		filter.Seller = address
	case ListingsPurchased:
		filter.Buyer = address
		filter.Order = core.OrderRecentlyPurchased
	default:
		return nil, fmt.Errorf("%w: unknown listing type %q", core.ErrInvalidInput, kind)
	}

	coupons, err := s.coupons.ListCoupons(ctx, filter)
	if err != nil {
		return nil, err
	}

	views := make([]core.CouponView, 0, len(coupons))
	for _, c := range coupons {
		view := c.View()
		if kind == ListingsPurchased {
			code, err := s.codec.Decrypt(c.CodeEncrypted)
			if err != nil {
				s.logger.ErrorContext(ctx, "failed to decrypt purchased coupon", "coupon_id", c.ID, "error", err)
				return nil, err
			}
			view.Code = code
		}
		views = append(views, view)
	}

	return views, nil
}

// Reveal decrypts the code of a coupon that is still unsold. It runs
// behind the payment gate and never changes the sale status.
func (s *CouponService) Reveal(ctx context.Context, id string) (*Secret, error) {
	coupon, err := s.coupons.GetCoupon(ctx, id)
	if err != nil {
		return nil, err
	}
	if coupon.IsSold {
		return nil, core.ErrCouponSold
	}

	code, err := s.codec.Decrypt(coupon.CodeEncrypted)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to decrypt coupon", "coupon_id", id, "error", err)
		return nil, err
	}

	return &Secret{
		ID:          coupon.ID,
		Title:       coupon.Title,
		Brand:       coupon.Brand,
		Code:        code,
		Description: coupon.Description,
		Terms:       coupon.Terms,
		ExpiryDate:  coupon.ExpiryDate,
	}, nil
}
