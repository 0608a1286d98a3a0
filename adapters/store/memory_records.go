package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/layer-3/promox/core"
)

// MemoryRecordStore keeps coupons, payments and users in process memory.
// It provides the same conditional-update semantics as the SQL store.
type MemoryRecordStore struct {
	mu       sync.RWMutex
	coupons  map[string]*core.Coupon
	payments []*core.Payment
	users    map[string]time.Time
}

// NewMemoryRecordStore creates an empty record store
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		coupons: make(map[string]*core.Coupon),
		users:   make(map[string]time.Time),
	}
}

func cloneCoupon(c *core.Coupon) *core.Coupon {
	cp := *c
	if c.BuyerAddress != nil {
		b := *c.BuyerAddress
		cp.BuyerAddress = &b
	}
	if c.PurchasedAt != nil {
		t := *c.PurchasedAt
		cp.PurchasedAt = &t
	}
	if c.ExpiryDate != nil {
		t := *c.ExpiryDate
		cp.ExpiryDate = &t
	}
	return &cp
}

func (s *MemoryRecordStore) GetCoupon(ctx context.Context, id string) (*core.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.coupons[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return cloneCoupon(c), nil
}

func (s *MemoryRecordStore) CreateCoupon(ctx context.Context, coupon *core.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[strings.ToLower(coupon.SellerAddress)]; !ok {
		return core.ErrDataIntegrity
	}
	s.coupons[coupon.ID] = cloneCoupon(coupon)
	return nil
}

func (s *MemoryRecordStore) UpdateCoupon(ctx context.Context, id string, update core.CouponUpdate) (*core.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coupons[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	if c.IsSold {
		return nil, core.ErrConflict
	}

	update.Apply(c)
	return cloneCoupon(c), nil
}

func (s *MemoryRecordStore) DeleteCoupon(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coupons[id]
	if !ok {
		return core.ErrNotFound
	}
	if c.IsSold {
		return core.ErrConflict
	}

	delete(s.coupons, id)
	return nil
}

func (s *MemoryRecordStore) ListCoupons(ctx context.Context, filter core.CouponFilter) ([]*core.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	out := make([]*core.Coupon, 0)
	for _, c := range s.coupons {
		if filter.Matches(c, now) {
			out = append(out, cloneCoupon(c))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return filter.Order.Less(out[i], out[j])
	})

	if filter.Offset >= len(out) {
		return []*core.Coupon{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}

	return out, nil
}

func (s *MemoryRecordStore) MarkSold(ctx context.Context, id, buyer string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coupons[id]
	if !ok || c.IsSold {
		return 0, nil
	}

	c.IsSold = true
	c.BuyerAddress = &buyer
	c.PurchasedAt = &at
	return 1, nil
}

func (s *MemoryRecordStore) InsertPayment(ctx context.Context, payment *core.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.coupons[payment.CouponID]; !ok {
		return core.ErrDataIntegrity
	}
	if _, ok := s.users[strings.ToLower(payment.PayerAddress)]; !ok {
		return core.ErrDataIntegrity
	}

	cp := *payment
	s.payments = append(s.payments, &cp)
	return nil
}

func (s *MemoryRecordStore) SettledPayment(ctx context.Context, couponID string) (*core.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.payments {
		if p.CouponID == couponID && p.Status == core.PaymentSettled {
			cp := *p
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *MemoryRecordStore) PaymentsByCoupon(ctx context.Context, couponID string) ([]*core.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.Payment, 0)
	for _, p := range s.payments {
		if p.CouponID == couponID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryRecordStore) EnsureUser(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(address)
	if _, ok := s.users[key]; !ok {
		s.users[key] = time.Now()
	}
	return nil
}
