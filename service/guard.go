package service

import (
	"strings"

	"github.com/layer-3/promox/core"
)

// RequireOwner fails with core.ErrForbidden unless subject owns the resource
func RequireOwner(subject, owner string) error {
	if subject == "" || !strings.EqualFold(subject, owner) {
		return core.ErrForbidden
	}
	return nil
}

// RequireAvailable fails with core.ErrConflict once a coupon is sold
func RequireAvailable(coupon *core.Coupon) error {
	if coupon.IsSold {
		return core.ErrConflict
	}
	return nil
}

// RequireSelfListing fails with core.ErrForbidden when subject acts for another address
func RequireSelfListing(subject, claimed string) error {
	if subject == "" || !strings.EqualFold(subject, claimed) {
		return core.ErrForbidden
	}
	return nil
}
