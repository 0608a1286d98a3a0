package store

import (
	"time"

	"github.com/layer-3/promox/core"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type userModel struct {
	bun.BaseModel `bun:"table:users"`

	WalletAddress string    `bun:"wallet_address,pk"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type couponModel struct {
	bun.BaseModel `bun:"table:coupons"`

	ID            string          `bun:"id,pk,type:uuid"`
	SellerAddress string          `bun:"seller_address,notnull"`
	Title         string          `bun:"title,notnull"`
	Description   string          `bun:"description"`
	Brand         string          `bun:"brand,notnull"`
	Category      string          `bun:"category,notnull"`
	Currency      string          `bun:"currency,notnull"`
	Country       string          `bun:"country"`
	Terms         string          `bun:"terms"`
	CodeEncrypted string          `bun:"code_encrypted,notnull"`
	PriceUSD      decimal.Decimal `bun:"price_usd,type:numeric(12,2),notnull"`
	ExpiryDate    *time.Time      `bun:"expiry_date"`
	Status        string          `bun:"status,notnull,default:'unverified'"`
	IsSold        bool            `bun:"is_sold,notnull,default:false"`
	BuyerAddress  *string         `bun:"buyer_address"`
	PurchasedAt   *time.Time      `bun:"purchased_at"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type paymentModel struct {
	bun.BaseModel `bun:"table:payment_transactions"`

	ID              string          `bun:"id,pk,type:uuid"`
	CouponID        string          `bun:"coupon_id,type:uuid,notnull"`
	PayerAddress    string          `bun:"payer_address,notnull"`
	AmountUSD       decimal.Decimal `bun:"amount_usd,type:numeric(12,2),notnull"`
	TransactionHash *string         `bun:"transaction_hash"`
	Network         string          `bun:"network,notnull"`
	Status          string          `bun:"status,notnull"`
	CreatedAt       time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func couponToModel(c *core.Coupon) *couponModel {
	return &couponModel{
		ID:            c.ID,
		SellerAddress: c.SellerAddress,
		Title:         c.Title,
		Description:   c.Description,
		Brand:         c.Brand,
		Category:      c.Category,
		Currency:      c.Currency,
		Country:       c.Country,
		Terms:         c.Terms,
		CodeEncrypted: c.CodeEncrypted,
		PriceUSD:      c.PriceUSD,
		ExpiryDate:    c.ExpiryDate,
		Status:        string(c.Status),
		IsSold:        c.IsSold,
		BuyerAddress:  c.BuyerAddress,
		PurchasedAt:   c.PurchasedAt,
		CreatedAt:     c.CreatedAt,
	}
}

func (m *couponModel) toCore() *core.Coupon {
	return &core.Coupon{
		ID:            m.ID,
		SellerAddress: m.SellerAddress,
		Title:         m.Title,
		Description:   m.Description,
		Brand:         m.Brand,
		Category:      m.Category,
		Currency:      m.Currency,
		Country:       m.Country,
		Terms:         m.Terms,
		CodeEncrypted: m.CodeEncrypted,
		PriceUSD:      m.PriceUSD,
		ExpiryDate:    m.ExpiryDate,
		Status:        core.VerificationStatus(m.Status),
		IsSold:        m.IsSold,
		BuyerAddress:  m.BuyerAddress,
		PurchasedAt:   m.PurchasedAt,
		CreatedAt:     m.CreatedAt,
	}
}

func paymentToModel(p *core.Payment) *paymentModel {
	return &paymentModel{
		ID:              p.ID,
		CouponID:        p.CouponID,
		PayerAddress:    p.PayerAddress,
		AmountUSD:       p.AmountUSD,
		TransactionHash: p.TransactionHash,
		Network:         p.Network,
		Status:          string(p.Status),
		CreatedAt:       p.CreatedAt,
	}
}

func (m *paymentModel) toCore() *core.Payment {
	return &core.Payment{
		ID:              m.ID,
		CouponID:        m.CouponID,
		PayerAddress:    m.PayerAddress,
		AmountUSD:       m.AmountUSD,
		TransactionHash: m.TransactionHash,
		Network:         m.Network,
		Status:          core.PaymentStatus(m.Status),
		CreatedAt:       m.CreatedAt,
	}
}
