package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of a payment record
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentVerified PaymentStatus = "verified"
	PaymentSettled  PaymentStatus = "settled"
	PaymentFailed   PaymentStatus = "failed"
)

// Payment records a settled purchase of one coupon
type Payment struct {
	ID              string
	CouponID        string
	PayerAddress    string
	AmountUSD       decimal.Decimal
	TransactionHash *string
	Network         string
	Status          PaymentStatus
	CreatedAt       time.Time
}

// SaleEvent is published once a coupon has been sold
type SaleEvent struct {
	CouponID      string          `json:"coupon_id"`
	SellerAddress string          `json:"seller_address"`
	BuyerAddress  string          `json:"buyer_address"`
	AmountUSD     decimal.Decimal `json:"amount_usd"`
	Transaction   string          `json:"transaction"`
	Network       string          `json:"network"`
	SoldAt        time.Time       `json:"sold_at"`
}
