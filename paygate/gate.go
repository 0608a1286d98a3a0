// Package paygate turns a gin route into a pay-per-request resource.
//
// Price and payee are resolved per request by an injected Resolver. Payment
// proofs are checked by an external Facilitator. The protected handler runs
// into a buffer and its response is released only after settlement succeeds,
// at which point every registered AfterSettle hook is invoked.
package paygate

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Resolver prices a resource and names who gets paid. Implementations must
// not have side effects, since clients retry freely.
type Resolver interface {
	ResolvePrice(ctx context.Context, path string) (string, error)
	ResolvePayTo(ctx context.Context, path string) (string, error)
}

// Facilitator verifies and settles payment proofs
type Facilitator interface {
	Verify(ctx context.Context, payload *PaymentPayload, requirements *PaymentRequirements) (*VerifyResponse, error)
	Settle(ctx context.Context, payload *PaymentPayload, requirements *PaymentRequirements) (*SettleResponse, error)
}

// SettleResult is handed to AfterSettle hooks once the facilitator has settled
type SettleResult struct {
	Resource    string
	Success     bool
	Payer       string
	Transaction string
	Network     string
}

// AfterSettleFunc reacts to a settled payment. It cannot fail the request.
type AfterSettleFunc func(ctx context.Context, result SettleResult)

// Config holds the static part of the payment requirements
type Config struct {
	Network           string
	Description       string
	MimeType          string
	MaxTimeoutSeconds int
	ResourceRootURL   string
}

// Option customizes a Gate
type Option func(*Gate)

// WithAfterSettle registers a settlement hook
func WithAfterSettle(hook AfterSettleFunc) Option {
	return func(g *Gate) {
		g.hooks = append(g.hooks, hook)
	}
}

// WithLogger sets the gate logger
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// Gate is the payment middleware
type Gate struct {
	cfg         Config
	network     Network
	resolver    Resolver
	facilitator Facilitator
	hooks       []AfterSettleFunc
	logger      *slog.Logger
}

// New creates a gate. It fails when the configured network is unknown.
func New(cfg Config, resolver Resolver, facilitator Facilitator, opts ...Option) (*Gate, error) {
	network, err := LookupNetwork(cfg.Network)
	if err != nil {
		return nil, err
	}

	if cfg.MaxTimeoutSeconds == 0 {
		cfg.MaxTimeoutSeconds = 60
	}

	g := &Gate{
		cfg:         cfg,
		network:     network,
		resolver:    resolver,
		facilitator: facilitator,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Network returns the configured settlement network
func (g *Gate) Network() Network {
	return g.network
}

// Requirements resolves the payment requirements for path
func (g *Gate) Requirements(ctx context.Context, path string) (*PaymentRequirements, error) {
	price, err := g.resolver.ResolvePrice(ctx, path)
	if err != nil {
		return nil, err
	}

	amount, err := ParsePrice(price)
	if err != nil {
		return nil, err
	}

	payTo, err := g.resolver.ResolvePayTo(ctx, path)
	if err != nil {
		return nil, err
	}

	return &PaymentRequirements{
		Scheme:            "exact",
		Network:           g.network.CAIP2,
		Asset:             g.network.Asset,
		Amount:            g.network.AtomicAmount(amount),
		PayTo:             payTo,
		MaxTimeoutSeconds: g.cfg.MaxTimeoutSeconds,
		Extra: map[string]interface{}{
			"name":    g.network.TokenName,
			"version": g.network.TokenVersion,
			"price":   FormatPrice(amount),
		},
	}, nil
}

// Middleware returns the gin handler enforcing payment
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		path := c.Request.URL.Path

		requirements, err := g.Requirements(ctx, path)
		if err != nil {
			g.logger.ErrorContext(ctx, "failed to resolve payment requirements", "path", path, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		resource := &ResourceInfo{
			URL:         g.resourceURL(c),
			Description: g.cfg.Description,
			MimeType:    g.cfg.MimeType,
		}

		header, legacy := c.GetHeader(HeaderPaymentSignature), false
		if header == "" {
			header, legacy = c.GetHeader(HeaderLegacyPayment), true
		}

		payload, err := DecodePaymentPayload(header)
		if err != nil {
			g.paymentRequired(c, resource, requirements, "payment required")
			return
		}

		// What the facilitator is asked to check. v1 payloads need v1 requirements.
		expected := requirements
		if legacy || payload.X402Version == 1 {
			legacy = true
			payload.X402Version = 1
			expected = g.legacyRequirements(requirements, resource)
		} else if payload.Accepted == nil {
			payload.Accepted = requirements
		}

		verify, err := g.facilitator.Verify(ctx, payload, expected)
		if err != nil {
			g.logger.ErrorContext(ctx, "payment verification failed", "path", path, "error", err)
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "payment verifier unavailable"})
			return
		}
		if !verify.IsValid {
			g.logger.InfoContext(ctx, "payment rejected", "path", path, "reason", verify.InvalidReason)
			g.paymentRequired(c, resource, requirements, verify.InvalidReason)
			return
		}

		writer := &bufferedWriter{ResponseWriter: c.Writer, status: http.StatusOK}
		c.Writer = writer

		// Recovery upstream must write to the real response
		defer func() {
			if r := recover(); r != nil {
				c.Writer = writer.ResponseWriter
				panic(r)
			}
		}()

		c.Next()

		c.Writer = writer.ResponseWriter

		if c.IsAborted() || writer.status >= http.StatusBadRequest {
			writer.flush()
			return
		}

		settle, err := g.facilitator.Settle(ctx, payload, expected)
		if err != nil || !settle.Success {
			reason := "settlement failed"
			if err != nil {
				g.logger.ErrorContext(ctx, "payment settlement failed", "path", path, "error", err)
			} else if settle.ErrorReason != "" {
				reason = settle.ErrorReason
				g.logger.InfoContext(ctx, "payment not settled", "path", path, "reason", reason)
			}
			g.paymentRequired(c, resource, requirements, reason)
			return
		}

		result := SettleResult{
			Resource:    path,
			Success:     settle.Success,
			Payer:       settle.Payer,
			Transaction: settle.Transaction,
			Network:     settle.Network,
		}
		if result.Payer == "" {
			result.Payer = verify.Payer
		}
		if n, err := LookupNetwork(result.Network); err == nil {
			result.Network = n.CAIP2
		} else {
			result.Network = g.network.CAIP2
		}
		for _, hook := range g.hooks {
			hook(ctx, result)
		}

		encoded, err := EncodeHeader(settle)
		if err != nil {
			g.logger.ErrorContext(ctx, "failed to encode settlement header", "error", err)
		} else {
			c.Header(HeaderPaymentResponse, encoded)
			if legacy {
				c.Header(HeaderLegacyPaymentResponse, encoded)
			}
		}

		writer.flush()
	}
}

// legacyRequirements restates requirements in the v1 wire shape
func (g *Gate) legacyRequirements(requirements *PaymentRequirements, resource *ResourceInfo) *PaymentRequirements {
	v1 := *requirements
	v1.Network = g.network.Name
	v1.MaxAmountRequired = requirements.Amount
	v1.Amount = ""
	v1.Resource = resource.URL
	v1.Description = resource.Description
	v1.MimeType = resource.MimeType
	return &v1
}

func (g *Gate) resourceURL(c *gin.Context) string {
	if g.cfg.ResourceRootURL != "" {
		return g.cfg.ResourceRootURL + c.Request.URL.Path
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.Path
}

func (g *Gate) paymentRequired(c *gin.Context, resource *ResourceInfo, requirements *PaymentRequirements, reason string) {
	body := PaymentRequired{
		X402Version: X402Version,
		Error:       reason,
		Resource:    resource,
		Accepts:     []PaymentRequirements{*requirements},
	}

	if encoded, err := EncodeHeader(body); err == nil {
		c.Header(HeaderPaymentRequired, encoded)
	}
	c.AbortWithStatusJSON(http.StatusPaymentRequired, body)
}

// bufferedWriter holds the protected handler's response until settlement
type bufferedWriter struct {
	gin.ResponseWriter
	body    bytes.Buffer
	status  int
	written bool
}

func (w *bufferedWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
}

func (w *bufferedWriter) WriteHeaderNow() {
	w.written = true
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	w.WriteHeader(http.StatusOK)
	return w.body.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	w.WriteHeader(http.StatusOK)
	return w.body.WriteString(s)
}

func (w *bufferedWriter) Status() int {
	return w.status
}

func (w *bufferedWriter) Size() int {
	return w.body.Len()
}

func (w *bufferedWriter) Written() bool {
	return w.written
}

func (w *bufferedWriter) flush() {
	w.ResponseWriter.WriteHeader(w.status)
	w.ResponseWriter.Write(w.body.Bytes())
}
