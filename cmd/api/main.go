package main

import (
	"log/slog"
	"os"

	"app/internal/config"
	"app/internal/domain/model"
	"app/internal/handler"
	"app/internal/infra/db"
	"app/internal/infra/mq"
	infraRepo "app/internal/infra/repository"
	"app/internal/logger"
	"app/internal/server"
	"app/internal/usecase"

	"github.com/joho/godotenv"
)

func main() {
	//.envは無くてもよい（本番は環境変数で渡す）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Service: "cart-api",
		Env:     cfg.GoEnv,
		Level:   cfg.LogLevel,
	})

	//DB接続
	gormDB, err := db.Connect()
	if err != nil {
		log.Error("db connect failed", "error", err)
		os.Exit(1)
	}

	if err := gormDB.AutoMigrate(
		&model.Product{},
		&model.Cart{},
		&model.CartItem{},
		&model.Order{},
		&model.OrderItem{},
		&model.InventoryAdjustment{},
	); err != nil {
		log.Error("migrate failed", "error", err)
		os.Exit(1)
	}

	//Repository（GORM実装）生成
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	txManager := infraRepo.NewTxManagerGorm(gormDB)

	//注文イベントの発行先（AMQP未設定なら発行しない）
	var events usecase.OrderEventPublisher = usecase.NoopPublisher{}
	if cfg.AMQPURL != "" {
		pub, closeMQ, err := mq.Connect(cfg.AMQPURL, cfg.OrdersQueue)
		if err != nil {
			log.Error("amqp connect failed", "error", err)
			os.Exit(1)
		}
		defer closeMQ()
		events = pub
	}

	//Usecase生成
	catalogUC := usecase.NewCatalogUsecase(productRepo)
	cartUC := usecase.NewCartUsecase(cartRepo, cartRepo, productRepo, cfg.Pricing)
	orderUC := usecase.NewOrderUsecase(txManager, cfg.Pricing, events)
	inventoryUC := usecase.NewInventoryUsecase(productRepo, txManager)

	//Handler生成
	catalogH := handler.NewCatalogHandler(catalogUC)
	cartH := handler.NewCartHandler(cartUC)
	orderH := handler.NewOrderHandler(orderUC)
	inventoryH := handler.NewInventoryHandler(inventoryUC)

	//Server起動
	e := server.New(cfg, catalogH, cartH, orderH, inventoryH)

	log.Info("starting server", "port", cfg.Port)
	if err := server.Start(e, cfg.Port); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
