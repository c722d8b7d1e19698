package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/infra/cache"
	"storefront/internal/infra/db"
	"storefront/internal/infra/event"
	"storefront/internal/infra/logger"
	"storefront/internal/infra/payment"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/infra/token"
	repo "storefront/internal/repository"
	"storefront/internal/server"
	"storefront/internal/usecase"
	"storefront/internal/validator"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const bcryptCost = 12

// イベント送信先（Kafka or 何もしない）
type publisher interface {
	usecase.OrderEventPublisher
	Close() error
}

func main() {
	//.envは無くてもよい（本番は環境変数）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("dev", "info")
		boot.Fatal().Err(err).Msg("config load failed")
	}
	log := logger.New(cfg.GoEnv, cfg.LogLevel)

	//DB接続
	gormDB, err := db.Connect(cfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	if err := db.Migrate(gormDB); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}
	if !cfg.IsProd() {
		if err := db.Seed(gormDB); err != nil {
			log.Fatal().Err(err).Msg("seed failed")
		}
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	cartRepo := infraRepo.NewCartItemGormRepository(gormDB)
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	orderItemRepo := infraRepo.NewOrderItemGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	categoryRepo := categoryRepository(cfg, gormDB, log)
	payments := paymentGateway(cfg, log)
	events := eventPublisher(cfg, log)
	defer func() {
		if err := events.Close(); err != nil {
			log.Warn().Err(err).Msg("event publisher close failed")
		}
	}()

	//Usecase生成
	v := validator.NewAuthValidator()
	issuer := token.NewJWTIssuer(cfg.JWTSecret, cfg.JWTTTL)

	authUC := usecase.NewAuthUsecase(userRepo, v, issuer, bcryptCost)
	userUC := usecase.NewUserUsecase(txm, userRepo, v, bcryptCost)
	productUC := usecase.NewProductUsecase(txm, productRepo, categoryRepo)
	cartUC := usecase.NewCartUsecase(txm, cartRepo, productRepo)
	orderUC := usecase.NewOrderUsecase(txm, orderRepo, orderItemRepo, cartRepo, payments, events, log,
		usecase.OrderSettings{Currency: cfg.PaymentCurrency, PaymentTimeout: cfg.PaymentTimeout})
	adminOrderUC := usecase.NewAdminOrderUsecase(txm, events, log)

	//Handler生成
	e := server.New(cfg, log, server.Dependencies{
		Handlers: server.Handlers{
			Auth:         handler.NewAuthHandler(authUC),
			User:         handler.NewUserHandler(userUC),
			Product:      handler.NewProductHandler(productUC),
			AdminProduct: handler.NewAdminProductHandler(productUC),
			Cart:         handler.NewCartHandler(cartUC),
			Order:        handler.NewOrderHandler(orderUC),
			AdminOrder:   handler.NewAdminOrderHandler(adminOrderUC),
		},
		Users: userRepo,
		Health: func(ctx context.Context) error {
			return db.Ping(ctx, gormDB)
		},
	})

	//Server起動
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, e, ":"+cfg.Port, log); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		return
	}
	log.Info().Msg("server has been gracefully shutdown")
}

// REDIS_ADDRがあればカテゴリ一覧をキャッシュする
func categoryRepository(cfg config.Config, gormDB *gorm.DB, log zerolog.Logger) repo.CategoryRepository {
	base := infraRepo.NewCategoryGormRepository(gormDB)
	if cfg.RedisAddr == "" {
		return base
	}
	rdb := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	log.Info().Str("addr", cfg.RedisAddr).Msg("catalog cache enabled")
	cached := cache.NewCachedCategoryRepository(base, cache.NewRedisStore(rdb), cfg.CatalogCacheTTL, log)
	// seed直後に古い一覧が残らないよう起動時に消す
	if err := cached.Invalidate(context.Background()); err != nil {
		log.Warn().Err(err).Msg("catalog cache invalidate failed")
	}
	return cached
}

// 本番はStripe必須（config.validateで確認済み）
func paymentGateway(cfg config.Config, log zerolog.Logger) usecase.PaymentGateway {
	if cfg.StripeSecretKey != "" {
		return payment.NewStripeGateway(cfg.StripeSecretKey, cfg.PaymentReturnURL)
	}
	log.Warn().Msg("STRIPE_SECRET_KEY is empty, using offline payment gateway")
	return payment.NewOfflineGateway()
}

func eventPublisher(cfg config.Config, log zerolog.Logger) publisher {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return event.NopPublisher{}
	}
	log.Info().Strs("brokers", brokers).Str("topic", cfg.KafkaOrderTopic).Msg("order events enabled")
	return event.NewKafkaPublisher(brokers, cfg.KafkaOrderTopic)
}
