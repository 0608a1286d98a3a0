package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/promox/core"
	"github.com/layer-3/promox/service"
	"github.com/shopspring/decimal"
)

// CookieConfig controls the attributes of the cookies set by the handlers
type CookieConfig struct {
	Secure bool
}

// AuthHandlers contains HTTP handlers for session endpoints
type AuthHandlers struct {
	authService *service.AuthService
	cookies     CookieConfig
	logger      *slog.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, cookies CookieConfig, logger *slog.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		cookies:     cookies,
		logger:      logger,
	}
}

func (h *AuthHandlers) setCookie(c *gin.Context, name, value string, ttl time.Duration) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(name, value, int(ttl.Seconds()), "/", "", h.cookies.Secure, true)
}

func (h *AuthHandlers) clearCookie(c *gin.Context, name string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(name, "", -1, "/", "", h.cookies.Secure, true)
}

// Nonce issues a sign-in nonce and binds it to the caller with a cookie
func (h *AuthHandlers) Nonce(c *gin.Context) {
	challenge, err := h.authService.IssueNonce(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.setCookie(c, cookieNonce, challenge.Binding, h.authService.NonceTTL())
	c.JSON(http.StatusOK, gin.H{"nonce": challenge.Nonce})
}

// Verify checks a signed sign-in message and starts a session
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req struct {
		Message   string `json:"message" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message and signature are required"})
		return
	}

	binding, _ := c.Cookie(cookieNonce)
	session, token, err := h.authService.Verify(c.Request.Context(), service.VerifyRequest{
		Message:   req.Message,
		Signature: req.Signature,
		Binding:   binding,
		Host:      c.Request.Host,
	})

	// The nonce is spent whatever the outcome
	h.clearCookie(c, cookieNonce)

	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.setCookie(c, cookieSession, token, h.authService.SessionTTL())
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"address": session.Address,
	})
}

// Logout revokes the session and clears its cookie
func (h *AuthHandlers) Logout(c *gin.Context) {
	token, err := c.Cookie(cookieSession)
	if err != nil || token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	if err := h.authService.Logout(c.Request.Context(), token); err != nil && !errors.Is(err, core.ErrUnauthenticated) {
		h.logger.WarnContext(c.Request.Context(), "failed to revoke session", "error", err)
	}

	h.clearCookie(c, cookieSession)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out"})
}

// Me returns the authenticated address
func (h *AuthHandlers) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"address":       userAddress(c),
	})
}

// CouponHandlers contains HTTP handlers for the marketplace
type CouponHandlers struct {
	coupons *service.CouponService
	logger  *slog.Logger
}

// NewCouponHandlers creates new coupon handlers
func NewCouponHandlers(coupons *service.CouponService, logger *slog.Logger) *CouponHandlers {
	return &CouponHandlers{coupons: coupons, logger: logger}
}

type createCouponRequest struct {
	SellerAddress string           `json:"sellerAddress"`
	Title         string           `json:"title"`
	Brand         string           `json:"brand"`
	Category      string           `json:"category"`
	Currency      string           `json:"currency"`
	Country       string           `json:"country"`
	Code          string           `json:"code"`
	Price         *decimal.Decimal `json:"price"`
	Description   string           `json:"description"`
	ExpiryDate    string           `json:"expiryDate"`
	Terms         string           `json:"terms"`
}

type updateCouponRequest struct {
	Title       *string          `json:"title"`
	PriceUSD    *decimal.Decimal `json:"price_usd"`
	Description *string          `json:"description"`
	Category    *string          `json:"category"`
	ExpiryDate  *string          `json:"expiry_date"`
	Terms       *string          `json:"terms"`
}

// parseDate accepts a calendar date or an RFC 3339 timestamp
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: bad date %q", core.ErrInvalidInput, s)
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", core.ErrInvalidInput, key)
	}
	return n, nil
}

// List returns available coupons
func (h *CouponHandlers) List(c *gin.Context) {
	filter := core.CouponFilter{
		Category:    c.Query("category"),
		Currency:    c.Query("currency"),
		Status:      core.VerificationStatus(c.Query("status")),
		ShowSold:    c.Query("show_sold") == "true",
		ShowExpired: c.Query("show_expired") == "true",
	}

	var err error
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if filter.Offset, err = queryInt(c, "offset"); err != nil {
		respondError(c, h.logger, err)
		return
	}

	coupons, err := h.coupons.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"coupons": coupons})
}

// Get returns a single coupon
func (h *CouponHandlers) Get(c *gin.Context) {
	coupon, err := h.coupons.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"coupon": coupon})
}

// Create lists a new coupon for the authenticated seller
func (h *CouponHandlers) Create(c *gin.Context) {
	var req createCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	expiry, err := parseDate(req.ExpiryDate)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	coupon, err := h.coupons.Create(c.Request.Context(), userAddress(c), service.CouponInput{
		SellerAddress: req.SellerAddress,
		Title:         req.Title,
		Description:   req.Description,
		Brand:         req.Brand,
		Category:      req.Category,
		Currency:      req.Currency,
		Country:       req.Country,
		Terms:         req.Terms,
		Code:          req.Code,
		Price:         req.Price,
		ExpiryDate:    expiry,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "coupon": coupon})
}

// Update edits an unsold coupon owned by the caller
func (h *CouponHandlers) Update(c *gin.Context) {
	var req updateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	update := core.CouponUpdate{
		Title:       req.Title,
		PriceUSD:    req.PriceUSD,
		Description: req.Description,
		Category:    req.Category,
		Terms:       req.Terms,
	}
	if req.ExpiryDate != nil {
		expiry, err := parseDate(*req.ExpiryDate)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		update.ExpiryDate = expiry
	}

	coupon, err := h.coupons.Update(c.Request.Context(), userAddress(c), c.Param("id"), update)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "coupon": coupon})
}

// Delete removes an unsold coupon owned by the caller
func (h *CouponHandlers) Delete(c *gin.Context) {
	if err := h.coupons.Delete(c.Request.Context(), userAddress(c), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// UserCoupons lists what the caller has listed or bought
func (h *CouponHandlers) UserCoupons(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Wallet address required"})
		return
	}

	coupons, err := h.coupons.ListForUser(c.Request.Context(), userAddress(c), address, c.Query("type"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"coupons": coupons})
}

// Secret releases the coupon code. It runs behind the payment gate.
func (h *CouponHandlers) Secret(c *gin.Context) {
	secret, err := h.coupons.Reveal(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "coupon": secret})
}
