package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/promox/adapters/codec"
	"github.com/layer-3/promox/adapters/events"
	"github.com/layer-3/promox/adapters/facilitator"
	"github.com/layer-3/promox/adapters/signature"
	"github.com/layer-3/promox/adapters/store"
	"github.com/layer-3/promox/adapters/tokenizer"
	"github.com/layer-3/promox/config"
	"github.com/layer-3/promox/paygate"
	"github.com/layer-3/promox/ports"
	"github.com/layer-3/promox/service"
	transport "github.com/layer-3/promox/transport/http"
	"github.com/redis/go-redis/v9"
)

type sessionStores interface {
	ports.NonceStore
	ports.RevocationStore
}

type recordStores interface {
	ports.CouponStore
	ports.PaymentStore
	ports.UserStore
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	level, _ := cfg.SlogLevel()
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	secretCodec := codec.NewAESCodec(cfg.EncryptionSecret)
	if err := secretCodec.Validate(); err != nil {
		return err
	}

	wmLogger := watermill.NewSlogLogger(logger)

	var (
		sessions  sessionStores
		publisher message.Publisher
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}

		pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: redisClient}, wmLogger)
		if err != nil {
			return err
		}
		sessions, publisher = store.NewRedisStore(redisClient), pub
		logger.Info("using redis session store")
	} else {
		sessions = store.NewMemoryStore()
		publisher = gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
		logger.Warn("REDIS_URL not set, sessions and events stay in memory")
	}
	defer publisher.Close()

	var records recordStores
	if cfg.DatabaseURL != "" {
		db, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		bunStore := store.NewBunStore(db)
		if err := bunStore.Migrate(ctx); err != nil {
			return err
		}
		records = bunStore
		logger.Info("using postgres record store")
	} else {
		records = store.NewMemoryRecordStore()
		logger.Warn("DATABASE_URL not set, coupons stay in memory")
	}

	var caller ethereum.ContractCaller
	if cfg.RPCURL != "" {
		client, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			return err
		}
		defer client.Close()
		caller = client
	} else {
		logger.Warn("RPC_URL not set, contract wallet signatures are rejected")
	}
	verifier := signature.NewEthVerifier(caller, cfg.RPCTimeout)

	eventPub := events.NewWatermillPublisher(publisher)

	authService := service.NewAuthService(
		service.AuthConfig{
			Domain:     cfg.Domain,
			NonceTTL:   cfg.NonceTTL,
			SessionTTL: cfg.SessionTTL,
		},
		tokenizer.NewJWTTokenizer([]byte(cfg.JWTSecret)),
		sessions,
		sessions,
		verifier,
		eventPub,
		logger,
	)

	couponService := service.NewCouponService(records, records, records, secretCodec, logger)
	settlement := service.NewSettlementEngine(records, records, records, eventPub, logger)

	gate, err := paygate.New(
		paygate.Config{
			Network:         cfg.Network,
			Description:     "Coupon code",
			MimeType:        "application/json",
			ResourceRootURL: cfg.ResourceRootURL,
		},
		service.NewCouponResolver(records, logger),
		facilitator.NewClient(cfg.FacilitatorURL, cfg.FacilitatorAPIKey, cfg.FacilitatorTimeout),
		paygate.WithAfterSettle(settlement.AfterSettle),
		paygate.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := transport.SetupRouter(transport.Dependencies{
		Auth: authService,
		Authenticator: service.NewAuthenticator(
			service.NewSessionAuthenticator(authService),
			service.NewSignedMessageAuthenticator(verifier, cfg.SessionTTL),
		),
		Coupons: couponService,
		Gate:    gate,
		Cookies: transport.CookieConfig{Secure: cfg.SecureCookies},
		Logger:  logger,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr, "network", gate.Network().CAIP2)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return server.Shutdown(shutdownCtx)
}
