package core

import "errors"

var (
	ErrMalformedMessage      = errors.New("malformed message")
	ErrNonceInvalidOrExpired = errors.New("nonce invalid or expired")
	ErrDomainMismatch        = errors.New("domain mismatch")
	ErrInvalidSignature      = errors.New("invalid signature")
	ErrMessageExpired        = errors.New("message expired")
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrForbidden             = errors.New("forbidden")
	ErrConflict              = errors.New("coupon is sold and cannot be modified")
	ErrNotFound              = errors.New("not found")
	ErrCouponSold            = errors.New("coupon already sold")
	ErrInvalidInput          = errors.New("invalid input")

	ErrTamperedOrCorrupt    = errors.New("ciphertext tampered or corrupt")
	ErrDataIntegrity        = errors.New("data integrity violation")
	ErrUpstreamVerification = errors.New("payment verifier failure")
	ErrConfiguration        = errors.New("invalid configuration")
)
