package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/promox/core"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// BunStore persists coupons, payments and users in Postgres
type BunStore struct {
	db *bun.DB
}

// OpenPostgres connects to dsn and wraps the connection in bun
func OpenPostgres(ctx context.Context, dsn string) (*bun.DB, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqlDB, pgdialect.New())

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// NewBunStore creates a store on top of db
func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db}
}

// Migrate creates the tables if they do not exist
func (s *BunStore) Migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*userModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create users: %w", err)
	}

	if _, err := s.db.NewCreateTable().Model((*couponModel)(nil)).IfNotExists().
		ForeignKey(`("seller_address") REFERENCES "users" ("wallet_address")`).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to create coupons: %w", err)
	}

	if _, err := s.db.NewCreateTable().Model((*paymentModel)(nil)).IfNotExists().
		ForeignKey(`("coupon_id") REFERENCES "coupons" ("id")`).
		ForeignKey(`("payer_address") REFERENCES "users" ("wallet_address")`).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to create payment_transactions: %w", err)
	}

	if _, err := s.db.NewCreateIndex().Model((*couponModel)(nil)).IfNotExists().
		Index("coupons_listing_idx").Column("is_sold", "created_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to create coupons index: %w", err)
	}

	return nil
}

// validID reports whether id can be compared against a uuid column
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *BunStore) GetCoupon(ctx context.Context, id string) (*core.Coupon, error) {
	if !validID(id) {
		return nil, core.ErrNotFound
	}

	m := new(couponModel)
	err := s.db.NewSelect().Model(m).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}

	return m.toCore(), nil
}

func (s *BunStore) CreateCoupon(ctx context.Context, coupon *core.Coupon) error {
	if _, err := s.db.NewInsert().Model(couponToModel(coupon)).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert coupon: %w", err)
	}

	return nil
}

func (s *BunStore) UpdateCoupon(ctx context.Context, id string, update core.CouponUpdate) (*core.Coupon, error) {
	if !validID(id) {
		return nil, core.ErrNotFound
	}
	if update.Empty() {
		c, err := s.GetCoupon(ctx, id)
		if err != nil {
			return nil, err
		}
		if c.IsSold {
			return nil, core.ErrConflict
		}
		return c, nil
	}

	q := s.db.NewUpdate().Model((*couponModel)(nil))
	if update.Title != nil {
		q = q.Set("title = ?", *update.Title)
	}
	if update.PriceUSD != nil {
		q = q.Set("price_usd = ?", *update.PriceUSD)
	}
	if update.Description != nil {
		q = q.Set("description = ?", *update.Description)
	}
	if update.Category != nil {
		q = q.Set("category = ?", *update.Category)
	}
	if update.ExpiryDate != nil {
		q = q.Set("expiry_date = ?", *update.ExpiryDate)
	}
	if update.Terms != nil {
		q = q.Set("terms = ?", *update.Terms)
	}

	affected, err := s.exec(ctx, q.Where("id = ?", id).Where("is_sold = ?", false))
	if err != nil {
		return nil, fmt.Errorf("failed to update coupon: %w", err)
	}

	c, err := s.GetCoupon(ctx, id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, core.ErrConflict
	}

	return c, nil
}

func (s *BunStore) DeleteCoupon(ctx context.Context, id string) error {
	if !validID(id) {
		return core.ErrNotFound
	}

	affected, err := s.exec(ctx, s.db.NewDelete().Model((*couponModel)(nil)).
		Where("id = ?", id).Where("is_sold = ?", false))
	if err != nil {
		return fmt.Errorf("failed to delete coupon: %w", err)
	}
	if affected > 0 {
		return nil
	}

	if _, err := s.GetCoupon(ctx, id); err != nil {
		return err
	}
	return core.ErrConflict
}

func (s *BunStore) ListCoupons(ctx context.Context, filter core.CouponFilter) ([]*core.Coupon, error) {
	var rows []couponModel

	q := s.db.NewSelect().Model(&rows)
	if !filter.ShowSold {
		q = q.Where("is_sold = ?", false)
	}
	if !filter.ShowExpired {
		q = q.Where("(expiry_date IS NULL OR expiry_date >= ?)", time.Now())
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.Currency != "" {
		q = q.Where("currency = ?", filter.Currency)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.Seller != "" {
		q = q.Where("lower(seller_address) = ?", strings.ToLower(filter.Seller))
	}
	if filter.Buyer != "" {
		q = q.Where("lower(buyer_address) = ?", strings.ToLower(filter.Buyer))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	if filter.Order == core.OrderRecentlyPurchased {
		q = q.OrderExpr("purchased_at DESC NULLS LAST")
	}

	if err := q.Offset(filter.Offset).Order("created_at DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}

	out := make([]*core.Coupon, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toCore())
	}
	return out, nil
}

// MarkSold runs the conditional update that sells a coupon at most once
func (s *BunStore) MarkSold(ctx context.Context, id, buyer string, at time.Time) (int64, error) {
	if !validID(id) {
		return 0, nil
	}

	affected, err := s.exec(ctx, s.db.NewUpdate().Model((*couponModel)(nil)).
		Set("is_sold = ?", true).
		Set("buyer_address = ?", buyer).
		Set("purchased_at = ?", at).
		Where("id = ?", id).
		Where("is_sold = ?", false))
	if err != nil {
		return 0, fmt.Errorf("failed to mark coupon sold: %w", err)
	}

	return affected, nil
}

func (s *BunStore) InsertPayment(ctx context.Context, payment *core.Payment) error {
	if _, err := s.db.NewInsert().Model(paymentToModel(payment)).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	return nil
}

func (s *BunStore) SettledPayment(ctx context.Context, couponID string) (*core.Payment, error) {
	if !validID(couponID) {
		return nil, core.ErrNotFound
	}

	m := new(paymentModel)
	err := s.db.NewSelect().Model(m).
		Where("coupon_id = ?", couponID).
		Where("status = ?", string(core.PaymentSettled)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settled payment: %w", err)
	}

	return m.toCore(), nil
}

func (s *BunStore) PaymentsByCoupon(ctx context.Context, couponID string) ([]*core.Payment, error) {
	if !validID(couponID) {
		return []*core.Payment{}, nil
	}

	var rows []paymentModel
	if err := s.db.NewSelect().Model(&rows).
		Where("coupon_id = ?", couponID).
		Order("created_at ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	out := make([]*core.Payment, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toCore())
	}
	return out, nil
}

func (s *BunStore) EnsureUser(ctx context.Context, address string) error {
	_, err := s.db.NewInsert().
		Model(&userModel{WalletAddress: strings.ToLower(address)}).
		On("CONFLICT (wallet_address) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	return nil
}

type executor interface {
	Exec(ctx context.Context, dest ...interface{}) (sql.Result, error)
}

func (s *BunStore) exec(ctx context.Context, q executor) (int64, error) {
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
