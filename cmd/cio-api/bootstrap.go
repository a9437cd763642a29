package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/casetext/customerio-client/config"
	"github.com/casetext/customerio-client/internal/broker/kafka"
	"github.com/casetext/customerio-client/internal/services/commands"
	"github.com/casetext/customerio-client/internal/storage/pgdelivery"
)

type cioAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     cioAPIOpts
	svc      *commands.Service
	producer *kafka.Producer
	closeDB  func()
}

func mustBootstrapCioAPI() *cioAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("config parse error, %v", err))
	}

	httpAddr := cfg.Relay.APIHTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	topic := cfg.Kafka.CommandsTopicName
	if topic == "" {
		topic = "customerio.commands"
	}

	st := mustOpenPostgresWithRetry(cfg.Database.ConnString(), 60*time.Second)
	producer := kafka.NewProducer(cfg.Kafka.Brokers())
	svc := commands.New(producer, st, topic)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &cioAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: cioAPIOpts{
			httpAddr:    httpAddr,
			swaggerPath: swaggerPath,
		},
		svc:      svc,
		producer: producer,
		closeDB:  st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgdelivery.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgdelivery.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *cioAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *cioAPIApp) Run() error {
	return runCioAPI(a.ctx, a.opts, a.svc)
}
