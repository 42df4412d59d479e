// The booking process owns the synchronous side: showtime scheduling and
// seat reservations against Postgres, with ticket fulfillment delegated to
// the worker over the broker. The HTTP surface mounts on top of
// application.service and lives outside this module.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/orbenz/movie-booking-system/internal/booking"
	"github.com/orbenz/movie-booking-system/internal/messaging"
	"github.com/orbenz/movie-booking-system/internal/repository"
	"github.com/orbenz/movie-booking-system/internal/validator"
	"github.com/orbenz/movie-booking-system/internal/vcs"
)

const (
	exitRestart   = 1
	exitNoRestart = 180
)

var (
	version = vcs.Version()
)

type config struct {
	env string
	db  struct {
		dsn          string
		maxOpenConns int
		maxIdleTime  time.Duration
	}
	amqpURL      string
	replyTimeout time.Duration
}

type application struct {
	config  config
	logger  *slog.Logger
	db      *pgxpool.Pool
	broker  *messaging.Broker
	tickets *messaging.TicketClient
	service *booking.Service
}

func main() {
	godotenv.Load()

	var cfg config

	flag.StringVar(&cfg.env, "env", "dev", "Environment (dev|staging|prod)")

	flag.StringVar(&cfg.db.dsn, "db-dsn", os.Getenv("DATABASE_URL"), "PostgreSQL DSN")
	flag.IntVar(&cfg.db.maxOpenConns, "db-max-open-conns", 25, "PostgreSQL max open connections")
	flag.DurationVar(&cfg.db.maxIdleTime, "db-max-idle-time", 15*time.Minute, "PostgreSQL max idle time for connections")

	flag.StringVar(&cfg.amqpURL, "amqp-url", os.Getenv("MESSAGE_QUEUE_URL"), "AMQP broker URL")
	flag.DurationVar(&cfg.replyTimeout, "ticket-reply-timeout", 30*time.Second, "Window to wait for a ticket worker reply")

	displayVersion := flag.Bool("version", false, "Display version and exit")

	flag.Parse()

	if *displayVersion {
		fmt.Printf("Version:\t%s\n", version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := run(cfg, logger); err != nil {
		logger.Error("booking service failed", "error", err)
		os.Exit(exitRestart)
	}

	os.Exit(exitNoRestart)
}

func run(cfg config, logger *slog.Logger) error {
	db, err := newDatabasePool(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	broker, err := messaging.Dial(cfg.amqpURL, logger)
	if err != nil {
		return err
	}
	defer broker.Close()

	tickets := messaging.NewTicketClient(broker, logger, messaging.WithReplyTimeout(cfg.replyTimeout))
	defer tickets.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Both reply queues feed the same dispatcher; correlation ids keep the
	// kinds apart.
	if err := broker.Consume(ctx, messaging.TicketReserveReplyQueue, tickets.HandleReply); err != nil {
		return err
	}
	if err := broker.Consume(ctx, messaging.TicketCancelReplyQueue, tickets.HandleReply); err != nil {
		return err
	}

	app := &application{
		config:  cfg,
		logger:  logger,
		db:      db,
		broker:  broker,
		tickets: tickets,
		service: booking.NewService(
			repository.NewPostgresShowtimeRepository(db),
			repository.NewPostgresHallRepository(db),
			repository.NewPostgresMovieRepository(db),
			tickets,
			booking.DiskAssetRemover{},
			validator.NewValidator(),
			logger,
		),
	}

	app.logger.Info("booking service started", "env", cfg.env)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)

	select {
	case s := <-quit:
		app.logger.Info("shutting down booking service",
			"signal", s.String(),
			"pending_ticket_requests", tickets.PendingRequests(),
		)
		return nil
	case amqpErr := <-broker.Closed():
		return fmt.Errorf("broker connection lost: %w", amqpErr)
	}
}

func newDatabasePool(cfg config) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(cfg.db.dsn)
	if err != nil {
		return nil, err
	}

	config.MaxConnIdleTime = cfg.db.maxIdleTime
	config.MaxConns = int32(cfg.db.maxOpenConns)

	db, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err = db.Ping(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
