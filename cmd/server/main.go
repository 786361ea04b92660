package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/room-reservation/internal/audit"
	"github.com/iliyamo/room-reservation/internal/availability"
	"github.com/iliyamo/room-reservation/internal/booking"
	"github.com/iliyamo/room-reservation/internal/calendar"
	"github.com/iliyamo/room-reservation/internal/config"
	"github.com/iliyamo/room-reservation/internal/coupon"
	"github.com/iliyamo/room-reservation/internal/credit"
	"github.com/iliyamo/room-reservation/internal/database"
	"github.com/iliyamo/room-reservation/internal/handler"
	"github.com/iliyamo/room-reservation/internal/logging"
	"github.com/iliyamo/room-reservation/internal/middleware"
	"github.com/iliyamo/room-reservation/internal/ratelimit"
	"github.com/iliyamo/room-reservation/internal/repository"
	"github.com/iliyamo/room-reservation/internal/router"
	"github.com/iliyamo/room-reservation/internal/shiftwindow"
)

const day = 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}
	logger := logging.New(cfg.App.LogLevel)
	defer logger.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	db, err := database.Open(cfg.DB)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer db.Close()
	if cfg.DB.Migrate {
		if err := database.Migrate(ctx, db, logger); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	} else {
		logger.Warn("redis unavailable, response cache off and rate limits local")
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis() && rdb != nil {
			limiter = ratelimit.NewRedisLimiter(rdb, cfg.RateLimit.Policy(), cfg.RateLimit.Prefix, nil)
		} else {
			mem := ratelimit.NewMemoryLimiter(cfg.RateLimit.Policy(), nil, logger)
			go mem.Run(ctx, cfg.RateLimit.CleanupEvery)
			limiter = mem
		}
	}

	var sink audit.Sink = audit.Nop{}
	if cfg.Audit.Enabled {
		pub := audit.NewPublisher(cfg.Audit.AMQPURL, cfg.Audit.Exchange, cfg.Audit.Queue, 0, logger)
		go pub.Run(ctx)
		sink = pub

		fileLog, closeFile := logging.NewFile(logging.RotatingFile{
			Path:       cfg.Audit.LogFile,
			MaxSizeMB:  cfg.Audit.MaxSizeMB,
			MaxBackups: cfg.Audit.MaxBackups,
			MaxAgeDays: cfg.Audit.MaxAgeDays,
		})
		defer closeFile()
		go audit.NewConsumer(cfg.Audit.AMQPURL, cfg.Audit.Exchange, cfg.Audit.Queue, fileLog, logger).Run(ctx)
	}

	cal, err := calendar.NewResolver(cfg.Business.Timezone)
	if err != nil {
		logger.Fatal("timezone", zap.String("timezone", cfg.Business.Timezone), zap.Error(err))
	}

	rooms := repository.NewRoomRepo(db)
	bookings := repository.NewBookingRepo(db)
	credits := repository.NewCreditRepo(db)
	usages := repository.NewCouponUsageRepo(db)

	checker := availability.NewChecker(bookings, cal, availability.Options{
		CleaningBuffer: cfg.Business.CleaningBuffer,
		MinAdvance:     cfg.Business.MinAdvance,
	})
	guard := shiftwindow.NewGuard(cal, cfg.Business.ShiftWindowDays, nil)
	allocator := credit.NewAllocator(credits, credit.NewUsageValidator(cal), nil, logger)
	coupons := coupon.NewManager(usages, coupon.NewCatalog(coupon.DefaultDefinitions), cfg.Business.MinimumPayableCents, nil, logger)

	svc := booking.NewService(booking.Deps{
		DB:             db,
		Rooms:          rooms,
		Bookings:       bookings,
		Credits:        credits,
		Checker:        checker,
		Guard:          guard,
		Allocator:      allocator,
		Coupons:        coupons,
		Calendar:       cal,
		Audit:          sink,
		Logger:         logger,
		CreditValidity: time.Duration(cfg.Business.CreditValidityDays) * day,
		RefundValidity: time.Duration(cfg.Business.RefundValidityDays) * day,
	})

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.Recover())

	router.Register(e, router.Deps{
		JWTSecret:    cfg.JWT.Secret,
		DB:           db,
		Rooms:        &handler.RoomHandler{Rooms: rooms},
		Availability: &handler.AvailabilityHandler{Checker: checker, Guard: guard, Calendar: cal},
		Bookings:     &handler.BookingHandler{Service: svc, Bookings: bookings},
		Credits:      &handler.CreditHandler{Service: svc, Credits: credits},
		Coupons:      &handler.CouponHandler{Coupons: coupons},
		Cache:        middleware.ResponseCache(cfg.Cache, rdb, logger),
		Limit:        middleware.RateLimit(limiter, ratelimit.Config{}, logger),
	})

	go func() {
		logger.Info("listening", zap.String("port", cfg.App.Port), zap.String("env", cfg.App.Env))
		if err := e.Start(":" + cfg.App.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	stop()
}
