package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// VerificationStatus is the moderation state of a listing
type VerificationStatus string

const (
	StatusUnverified VerificationStatus = "unverified"
	StatusVerified   VerificationStatus = "verified"
	StatusInvalid    VerificationStatus = "invalid"
)

// DefaultCategory is assigned to listings created without one
const DefaultCategory = "Other"

// Coupon is a listed secret. CodeEncrypted never leaves the service layer.
type Coupon struct {
	ID            string
	SellerAddress string
	Title         string
	Description   string
	Brand         string
	Category      string
	Currency      string
	Country       string
	Terms         string
	CodeEncrypted string
	PriceUSD      decimal.Decimal
	ExpiryDate    *time.Time
	Status        VerificationStatus
	IsSold        bool
	BuyerAddress  *string
	PurchasedAt   *time.Time
	CreatedAt     time.Time
}

// SaleStatus reports "sold" or "available"
func (c *Coupon) SaleStatus() string {
	if c.IsSold {
		return "sold"
	}
	return "available"
}

// IsExpired reports whether the coupon expiry date lies before now
func (c *Coupon) IsExpired(now time.Time) bool {
	return c.ExpiryDate != nil && c.ExpiryDate.Before(now)
}

// OwnedBy compares the seller with address, ignoring case
func (c *Coupon) OwnedBy(address string) bool {
	return strings.EqualFold(c.SellerAddress, address)
}

// CouponView is the public projection of a coupon
type CouponView struct {
	ID            string              `json:"id"`
	SellerAddress string              `json:"seller_address"`
	Title         string              `json:"title"`
	Description   string              `json:"description,omitempty"`
	Brand         string              `json:"brand"`
	Category      string              `json:"category"`
	Currency      string              `json:"currency"`
	Country       string              `json:"country,omitempty"`
	Terms         string              `json:"terms,omitempty"`
	PriceUSD      decimal.Decimal     `json:"price_usd"`
	ExpiryDate    *time.Time          `json:"expiry_date"`
	Status        VerificationStatus  `json:"status"`
	IsSold        bool                `json:"is_sold"`
	BuyerAddress  *string             `json:"buyer_address"`
	PurchasedAt   *time.Time          `json:"purchased_at"`
	CreatedAt     time.Time           `json:"created_at"`
	Transaction   *TransactionSummary `json:"transaction,omitempty"`
	Code          string              `json:"code,omitempty"`
}

// TransactionSummary is the on-chain reference of a settled sale
type TransactionSummary struct {
	Hash    string `json:"transaction_hash"`
	Network string `json:"network"`
}

// View projects the coupon without its secret
func (c *Coupon) View() CouponView {
	return CouponView{
		ID:            c.ID,
		SellerAddress: c.SellerAddress,
		Title:         c.Title,
		Description:   c.Description,
		Brand:         c.Brand,
		Category:      c.Category,
		Currency:      c.Currency,
		Country:       c.Country,
		Terms:         c.Terms,
		PriceUSD:      c.PriceUSD,
		ExpiryDate:    c.ExpiryDate,
		Status:        c.Status,
		IsSold:        c.IsSold,
		BuyerAddress:  c.BuyerAddress,
		PurchasedAt:   c.PurchasedAt,
		CreatedAt:     c.CreatedAt,
	}
}

// CouponUpdate holds the seller-editable fields. Nil fields are left unchanged.
type CouponUpdate struct {
	Title       *string
	PriceUSD    *decimal.Decimal
	Description *string
	Category    *string
	ExpiryDate  *time.Time
	Terms       *string
}

// Empty reports whether the update touches nothing
func (u CouponUpdate) Empty() bool {
	return u.Title == nil && u.PriceUSD == nil && u.Description == nil &&
		u.Category == nil && u.ExpiryDate == nil && u.Terms == nil
}

// Apply copies the set fields onto c
func (u CouponUpdate) Apply(c *Coupon) {
	if u.Title != nil {
		c.Title = *u.Title
	}
	if u.PriceUSD != nil {
		c.PriceUSD = *u.PriceUSD
	}
	if u.Description != nil {
		c.Description = *u.Description
	}
	if u.Category != nil {
		c.Category = *u.Category
	}
	if u.ExpiryDate != nil {
		t := *u.ExpiryDate
		c.ExpiryDate = &t
	}
	if u.Terms != nil {
		c.Terms = *u.Terms
	}
}

// CouponOrder selects the sort key of a listing
type CouponOrder string

const (
	// OrderNewest sorts by created_at, newest first
	OrderNewest CouponOrder = ""
	// OrderRecentlyPurchased sorts by purchased_at, latest sale first
	OrderRecentlyPurchased CouponOrder = "purchased"
)

// CouponFilter narrows a listing query
type CouponFilter struct {
	Category    string
	Currency    string
	Status      VerificationStatus
	Seller      string
	Buyer       string
	ShowSold    bool
	ShowExpired bool
	Limit       int
	Offset      int
	Order       CouponOrder
}

// Less reports whether a sorts before b under o
func (o CouponOrder) Less(a, b *Coupon) bool {
	if o == OrderRecentlyPurchased {
		switch {
		case a.PurchasedAt == nil && b.PurchasedAt == nil:
		case a.PurchasedAt == nil:
			return false
		case b.PurchasedAt == nil:
			return true
		case !a.PurchasedAt.Equal(*b.PurchasedAt):
			return a.PurchasedAt.After(*b.PurchasedAt)
		}
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// Matches applies the filter to a single coupon
func (f CouponFilter) Matches(c *Coupon, now time.Time) bool {
	if !f.ShowSold && c.IsSold {
		return false
	}
	if !f.ShowExpired && c.IsExpired(now) {
		return false
	}
	if f.Category != "" && c.Category != f.Category {
		return false
	}
	if f.Currency != "" && c.Currency != f.Currency {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.Seller != "" && !strings.EqualFold(c.SellerAddress, f.Seller) {
		return false
	}
	if f.Buyer != "" && (c.BuyerAddress == nil || !strings.EqualFold(*c.BuyerAddress, f.Buyer)) {
		return false
	}
	return true
}
