package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/promox/adapters/codec"
	"github.com/layer-3/promox/adapters/signature"
	"github.com/layer-3/promox/adapters/store"
	"github.com/layer-3/promox/adapters/tokenizer"
	"github.com/layer-3/promox/core"
	"github.com/layer-3/promox/internal/siwe"
	"github.com/layer-3/promox/paygate"
	"github.com/layer-3/promox/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type nopPublisher struct{}

func (nopPublisher) PublishLogout(context.Context, string, string) error { return nil }
func (nopPublisher) PublishSale(context.Context, core.SaleEvent) error   { return nil }

type stubFacilitator struct {
	payer       string
	settleCalls int
}

func (f *stubFacilitator) Verify(context.Context, *paygate.PaymentPayload, *paygate.PaymentRequirements) (*paygate.VerifyResponse, error) {
	return &paygate.VerifyResponse{IsValid: true, Payer: f.payer}, nil
}

func (f *stubFacilitator) Settle(context.Context, *paygate.PaymentPayload, *paygate.PaymentRequirements) (*paygate.SettleResponse, error) {
	f.settleCalls++
	return &paygate.SettleResponse{Success: true, Transaction: "0xsettled", Payer: f.payer}, nil
}

type testWallet struct {
	address common.Address
	sign    func(msg string) string
}

func newTestWallet(t *testing.T) *testWallet {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	return &testWallet{
		address: crypto.PubkeyToAddress(key.PublicKey),
		sign: func(msg string) string {
			sig, err := crypto.Sign(accounts.TextHash([]byte(msg)), key)
			require.NoError(t, err)
			sig[crypto.RecoveryIDOffset] += 27
			return hexutil.Encode(sig)
		},
	}
}

func (w *testWallet) lower() string {
	return strings.ToLower(w.address.Hex())
}

// signedHeaders adds the stateless auth headers to req
func (w *testWallet) signedHeaders(req *http.Request) {
	msg := fmt.Sprintf("Sign in to Promox\nWebsite: example.com\nWallet: %s\nTimestamp: %d", w.address.Hex(), time.Now().UnixMilli())
	req.Header.Set(headerAuthSignature, w.sign(msg))
	req.Header.Set(headerAuthMessage, url.PathEscape(msg))
	req.Header.Set(headerAuthAddress, w.address.Hex())
}

type testServer struct {
	router      *gin.Engine
	records     *store.MemoryRecordStore
	facilitator *stubFacilitator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := store.NewMemoryStore()
	records := store.NewMemoryRecordStore()
	verifier := signature.NewEthVerifier(nil, 0)
	events := nopPublisher{}

	auth := service.NewAuthService(
		service.AuthConfig{},
		tokenizer.NewJWTTokenizer([]byte(testSecret)),
		mem,
		mem,
		verifier,
		events,
		discard,
	)
	coupons := service.NewCouponService(records, records, records, codec.NewAESCodec(testSecret), discard)
	settlement := service.NewSettlementEngine(records, records, records, events, discard)

	facilitator := &stubFacilitator{}
	gate, err := paygate.New(
		paygate.Config{Network: "base-sepolia", Description: "coupon code", MimeType: "application/json"},
		service.NewCouponResolver(records, discard),
		facilitator,
		paygate.WithAfterSettle(settlement.AfterSettle),
		paygate.WithLogger(discard),
	)
	require.NoError(t, err)

	router := SetupRouter(Dependencies{
		Auth: auth,
		Authenticator: service.NewAuthenticator(
			service.NewSessionAuthenticator(auth),
			service.NewSignedMessageAuthenticator(verifier, 0),
		),
		Coupons: coupons,
		Gate:    gate,
		Logger:  discard,
	})

	return &testServer{router: router, records: records, facilitator: facilitator}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSessionFlow(t *testing.T) {
	s := newTestServer(t)
	w := newTestWallet(t)

	rec := s.do(jsonRequest(t, http.MethodPost, "/session/nonce", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var nonceResp struct {
		Nonce string `json:"nonce"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nonceResp))
	binding := cookieNamed(rec, cookieNonce)
	require.NotNil(t, binding)
	assert.True(t, binding.HttpOnly)
	assert.NotEqual(t, nonceResp.Nonce, binding.Value)

	msg := (&siwe.Message{
		Domain:   "example.com",
		Address:  w.address,
		URI:      "http://example.com",
		Version:  "1",
		ChainID:  84532,
		Nonce:    nonceResp.Nonce,
		IssuedAt: time.Now().UTC(),
	}).String()

	req := jsonRequest(t, http.MethodPost, "/session/verify", gin.H{"message": msg, "signature": w.sign(msg)})
	req.AddCookie(binding)
	rec = s.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	session := cookieNamed(rec, cookieSession)
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, session.SameSite)
	assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), session.MaxAge)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(session)
	rec = s.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), w.lower())

	// Replaying the spent nonce fails
	req = jsonRequest(t, http.MethodPost, "/session/verify", gin.H{"message": msg, "signature": w.sign(msg)})
	req.AddCookie(binding)
	rec = s.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/session/logout", nil)
	req.AddCookie(session)
	rec = s.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := cookieNamed(rec, cookieSession)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(session)
	rec = s.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifyRejectsBadRequests(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(jsonRequest(t, http.MethodPost, "/session/verify", gin.H{"message": "x"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(jsonRequest(t, http.MethodPost, "/session/verify", gin.H{"message": "x", "signature": "0x00"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodPost, "/session/logout", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPurchaseFlow(t *testing.T) {
	s := newTestServer(t)
	seller := newTestWallet(t)
	buyer := newTestWallet(t)
	s.facilitator.payer = buyer.address.Hex()

	// Unauthenticated listing is refused
	rec := s.do(jsonRequest(t, http.MethodPost, "/coupons", gin.H{}))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := jsonRequest(t, http.MethodPost, "/coupons", gin.H{
		"sellerAddress": seller.address.Hex(),
		"title":         "20% off",
		"brand":         "Acme",
		"currency":      "USD",
		"code":          "ACME20",
		"price":         5,
		"expiryDate":    time.Now().Add(48 * time.Hour).Format(time.DateOnly),
	})
	seller.signedHeaders(req)
	rec = s.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Coupon core.CouponView `json:"coupon"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created.Coupon.ID
	require.NotEmpty(t, id)
	assert.NotContains(t, rec.Body.String(), "ACME20")

	// Listings never expose the code
	rec = s.do(httptest.NewRequest(http.MethodGet, "/coupons", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), id)
	assert.NotContains(t, rec.Body.String(), "ACME20")

	// Without payment the gate answers 402 with the seller as payee
	rec = s.do(httptest.NewRequest(http.MethodGet, "/secret/"+id, nil))
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	var required paygate.PaymentRequired
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &required))
	require.Len(t, required.Accepts, 1)
	assert.Equal(t, seller.lower(), required.Accepts[0].PayTo)
	assert.Equal(t, "5000000", required.Accepts[0].Amount)
	assert.Equal(t, "$5.00", required.Accepts[0].Extra["price"])

	header, err := paygate.EncodeHeader(paygate.PaymentPayload{X402Version: 2, Payload: json.RawMessage(`{}`)})
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodGet, "/secret/"+id, nil)
	req.Header.Set(paygate.HeaderPaymentSignature, header)
	rec = s.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "ACME20")
	assert.NotEmpty(t, rec.Header().Get(paygate.HeaderPaymentResponse))

	coupon, err := s.records.GetCoupon(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, coupon.IsSold)
	assert.Equal(t, buyer.lower(), *coupon.BuyerAddress)

	// The coupon is gone for everyone else and settlement is not attempted
	req = httptest.NewRequest(http.MethodGet, "/secret/"+id, nil)
	req.Header.Set(paygate.HeaderPaymentSignature, header)
	rec = s.do(req)
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, 1, s.facilitator.settleCalls)

	// The seller can no longer edit it
	req = jsonRequest(t, http.MethodPut, "/coupons/"+id, gin.H{"title": "changed"})
	seller.signedHeaders(req)
	rec = s.do(req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// The buyer sees the code among purchases
	req = httptest.NewRequest(http.MethodGet, "/user/coupons?type=purchased&address="+buyer.address.Hex(), nil)
	buyer.signedHeaders(req)
	rec = s.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "ACME20")

	rec = s.do(httptest.NewRequest(http.MethodGet, "/coupons/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "0xsettled")
}

func TestCouponOwnership(t *testing.T) {
	s := newTestServer(t)
	seller := newTestWallet(t)
	stranger := newTestWallet(t)

	req := jsonRequest(t, http.MethodPost, "/coupons", gin.H{
		"sellerAddress": seller.address.Hex(),
		"title":         "t",
		"brand":         "b",
		"currency":      "USD",
		"code":          "c",
		"price":         "1.25",
	})
	stranger.signedHeaders(req)
	rec := s.do(req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = jsonRequest(t, http.MethodPost, "/coupons", gin.H{
		"sellerAddress": seller.address.Hex(),
		"title":         "t",
		"brand":         "b",
		"currency":      "USD",
		"code":          "c",
		"price":         "1.25",
	})
	seller.signedHeaders(req)
	rec = s.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Coupon core.CouponView `json:"coupon"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	req = httptest.NewRequest(http.MethodDelete, "/coupons/"+created.Coupon.ID, nil)
	stranger.signedHeaders(req)
	rec = s.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/coupons/"+created.Coupon.ID, nil)
	seller.signedHeaders(req)
	rec = s.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/coupons/"+created.Coupon.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRejectsBadPaging(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(httptest.NewRequest(http.MethodGet, "/coupons?limit=ten", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"malformed":   {fmt.Errorf("parse: %w", core.ErrMalformedMessage), http.StatusBadRequest},
		"nonce":       {core.ErrNonceInvalidOrExpired, http.StatusUnauthorized},
		"domain":      {core.ErrDomainMismatch, http.StatusUnauthorized},
		"forbidden":   {core.ErrForbidden, http.StatusForbidden},
		"not found":   {core.ErrNotFound, http.StatusNotFound},
		"conflict":    {core.ErrConflict, http.StatusConflict},
		"sold":        {core.ErrCouponSold, http.StatusGone},
		"upstream":    {fmt.Errorf("%w: dial", core.ErrUpstreamVerification), http.StatusBadGateway},
		"integrity":   {core.ErrDataIntegrity, http.StatusInternalServerError},
		"codec":       {core.ErrTamperedOrCorrupt, http.StatusInternalServerError},
		"other error": {errors.New("boom"), http.StatusInternalServerError},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			status, message := statusFor(tc.err)
			assert.Equal(t, tc.want, status)
			if status == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", message)
			}
		})
	}
}
