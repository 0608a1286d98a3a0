package service

import (
	"context"
	"crypto/ecdsa"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/promox/adapters/codec"
	"github.com/layer-3/promox/adapters/signature"
	"github.com/layer-3/promox/adapters/store"
	"github.com/layer-3/promox/adapters/tokenizer"
	"github.com/layer-3/promox/core"
	"github.com/layer-3/promox/internal/siwe"
	"github.com/stretchr/testify/require"
)

const (
	testDomain = "promox.example"
	testSecret = "0123456789abcdef0123456789abcdef"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type wallet struct {
	key     *ecdsa.PrivateKey
	Address string // checksummed
}

func newWallet(t *testing.T) *wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &wallet{key: key, Address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

func (w *wallet) Lower() string {
	return strings.ToLower(w.Address)
}

func (w *wallet) Sign(t *testing.T, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), w.key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func (w *wallet) SignIn(domain, nonce string) string {
	m := &siwe.Message{
		Domain:    domain,
		Address:   common.HexToAddress(w.Address),
		Statement: "Sign in to Promox",
		URI:       "https://" + domain,
		Version:   "1",
		ChainID:   84532,
		Nonce:     nonce,
		IssuedAt:  time.Now().UTC(),
	}
	return m.String()
}

type recordingPublisher struct {
	mu      sync.Mutex
	logouts []string
	sales   []core.SaleEvent
	err     error
}

func (p *recordingPublisher) PublishLogout(_ context.Context, _ string, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logouts = append(p.logouts, sessionID)
	return p.err
}

func (p *recordingPublisher) PublishSale(_ context.Context, event core.SaleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sales = append(p.sales, event)
	return p.err
}

func (p *recordingPublisher) Sales() []core.SaleEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.SaleEvent(nil), p.sales...)
}

type authFixture struct {
	auth   *AuthService
	store  *store.MemoryStore
	events *recordingPublisher
}

func newAuthFixture(t *testing.T, domain string) *authFixture {
	t.Helper()
	mem := store.NewMemoryStore()
	events := &recordingPublisher{}
	auth := NewAuthService(
		AuthConfig{Domain: domain},
		tokenizer.NewJWTTokenizer([]byte(testSecret)),
		mem,
		mem,
		signature.NewEthVerifier(nil, 0),
		events,
		discard,
	)
	return &authFixture{auth: auth, store: mem, events: events}
}

type marketFixture struct {
	records    *store.MemoryRecordStore
	coupons    *CouponService
	settlement *SettlementEngine
	events     *recordingPublisher
}

func newMarketFixture(t *testing.T) *marketFixture {
	t.Helper()
	records := store.NewMemoryRecordStore()
	events := &recordingPublisher{}
	c := codec.NewAESCodec(testSecret)
	return &marketFixture{
		records:    records,
		coupons:    NewCouponService(records, records, records, c, discard),
		settlement: NewSettlementEngine(records, records, records, events, discard),
		events:     events,
	}
}
