// The ticket worker consumes reservation and cancellation requests from
// their routed queues, performs the payment action, and publishes a
// correlated reply to each request's reply-to target.
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

	"github.com/joho/godotenv"
	"github.com/orbenz/movie-booking-system/internal/mailer"
	"github.com/orbenz/movie-booking-system/internal/messaging"
	"github.com/orbenz/movie-booking-system/internal/payment"
	"github.com/orbenz/movie-booking-system/internal/validator"
	"github.com/orbenz/movie-booking-system/internal/vcs"
	"github.com/orbenz/movie-booking-system/internal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v82"
)

// Exit codes understood by the deployment orchestrator: 1 requests a
// restart, 180 tells it to leave the process down (clean shutdown or
// programmer error).
const (
	exitRestart   = 1
	exitNoRestart = 180
)

var (
	version = vcs.Version()
)

type config struct {
	env     string
	amqpURL string
	redis   struct {
		url string
	}
	smtp struct {
		host     string
		port     int
		username string
		password string
		sender   string
	}
	stripe struct {
		secretKey string
	}
}

func main() {
	godotenv.Load()

	var cfg config

	flag.StringVar(&cfg.env, "env", "dev", "Environment (dev|staging|prod)")
	flag.StringVar(&cfg.amqpURL, "amqp-url", os.Getenv("MESSAGE_QUEUE_URL"), "AMQP broker URL")
	flag.StringVar(&cfg.redis.url, "redis-url", os.Getenv("REDIS_URL"), "Redis URL")

	flag.StringVar(&cfg.smtp.host, "smtp-host", "sandbox.smtp.mailtrap.io", "SMTP host")
	flag.IntVar(&cfg.smtp.port, "smtp-port", 2525, "SMTP port")
	flag.StringVar(&cfg.smtp.username, "smtp-username", os.Getenv("SMTP_USERNAME"), "SMTP username")
	flag.StringVar(&cfg.smtp.password, "smtp-password", os.Getenv("SMTP_PASSWORD"), "SMTP password")
	flag.StringVar(&cfg.smtp.sender, "smtp-sender", "MRS <no-reply@mrs.example.com>", "SMTP sender")

	flag.StringVar(&cfg.stripe.secretKey, "stripe-key", os.Getenv("STRIPE_SECRET_KEY"), "Stripe secret key")

	displayVersion := flag.Bool("version", false, "Display version and exit")

	flag.Parse()

	if *displayVersion {
		fmt.Printf("Version:\t%s\n", version)
		os.Exit(0)
	}

	stripe.Key = cfg.stripe.secretKey

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := run(cfg, logger); err != nil {
		logger.Error("ticket worker failed", "error", err)
		os.Exit(exitRestart)
	}

	os.Exit(exitNoRestart)
}

func run(cfg config, logger *slog.Logger) error {
	broker, err := messaging.Dial(cfg.amqpURL, logger)
	if err != nil {
		return err
	}
	defer broker.Close()

	redisClient, err := newRedisClient(cfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	smtpMailer := mailer.NewSMTPMailer(
		cfg.smtp.host,
		cfg.smtp.port,
		cfg.smtp.username,
		cfg.smtp.password,
		cfg.smtp.sender,
	)

	w := worker.New(
		broker,
		payment.NewStripeProcessor(),
		smtpMailer,
		redisClient,
		validator.NewValidator(),
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := broker.Consume(ctx, messaging.TicketReserveQueue, w.HandleReserve); err != nil {
		return err
	}
	if err := broker.Consume(ctx, messaging.TicketCancelQueue, w.HandleCancel); err != nil {
		return err
	}

	logger.Info("ticket worker started", "env", cfg.env)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)

	select {
	case s := <-quit:
		logger.Info("shutting down ticket worker", "signal", s.String())
		return nil
	case amqpErr := <-broker.Closed():
		return fmt.Errorf("broker connection lost: %w", amqpErr)
	}
}

func newRedisClient(cfg config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.redis.url,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := rdb.Ping(ctx).Err()
	if err != nil {
		return nil, err
	}

	return rdb, nil
}
