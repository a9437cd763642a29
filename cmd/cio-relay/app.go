package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/casetext/customerio-client/config"
	"github.com/casetext/customerio-client/internal/broker/kafka"
	"github.com/casetext/customerio-client/internal/cache/rediscache"
	"github.com/casetext/customerio-client/internal/services/relay"
	"github.com/casetext/customerio-client/internal/storage/pgdelivery"
	"github.com/casetext/customerio-client/pkg/customerio"
	"github.com/casetext/customerio-client/pkg/customerio/fake"
)

type deliveryStore interface {
	relay.Recorder
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type commandConsumer interface {
	Consume(ctx context.Context, h kafka.Handler) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthChecks collects Ping from the collaborators that have one.
func healthChecks(st deliveryStore, dedup relay.Deduper) map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if p, ok := st.(pinger); ok {
		checks["postgres"] = p.Ping
	}
	if p, ok := dedup.(pinger); ok {
		checks["redis"] = p.Ping
	}
	return checks
}

type relayFactories struct {
	newStorage    func(cfg *config.Config) (st deliveryStore, closeFn func(), err error)
	newDeduper    func(cfg *config.Config) (d relay.Deduper, closeFn func())
	newConsumer   func(cfg *config.Config, topic, group string) (c commandConsumer, closeFn func())
	newCustomerIO func(cfg *config.Config) (relay.CustomerIO, error)
}

func defaultRelayFactories() relayFactories {
	return relayFactories{
		newStorage: func(cfg *config.Config) (deliveryStore, func(), error) {
			st, err := pgdelivery.New(cfg.Database.ConnString())
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newDeduper: func(cfg *config.Config) (relay.Deduper, func()) {
			d := rediscache.New(cfg.Redis.Addr())
			return d, func() { _ = d.Close() }
		},
		newConsumer: func(cfg *config.Config, topic, group string) (commandConsumer, func()) {
			c := kafka.NewConsumer(cfg.Kafka.Brokers(), topic, group)
			return c, func() { _ = c.Close() }
		},
		newCustomerIO: func(cfg *config.Config) (relay.CustomerIO, error) {
			if cfg.CustomerIO.DryRun {
				return fake.New(), nil
			}
			return customerio.New(cfg.CustomerIO.SiteID, cfg.CustomerIO.APIKey,
				customerio.WithBaseURL(cfg.CustomerIO.BaseURL))
		},
	}
}

// RunRelay consumes commands until ctx is done or a command outcome cannot be
// stored.
func RunRelay(ctx context.Context, cfg *config.Config, f relayFactories) error {
	topic := cfg.Kafka.CommandsTopicName
	if topic == "" {
		topic = "customerio.commands"
	}
	group := cfg.Relay.KafkaConsumerGroup
	if group == "" {
		group = "cio-relay"
	}
	dedupTTL := time.Duration(cfg.Relay.DedupTTLSeconds) * time.Second
	if dedupTTL <= 0 {
		dedupTTL = 24 * time.Hour
	}
	httpAddr := cfg.Relay.WorkerHTTPAddr
	if httpAddr == "" {
		httpAddr = ":8082"
	}

	cio, err := f.newCustomerIO(cfg)
	if err != nil {
		return err
	}

	st, closeDB, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeDB != nil {
		defer closeDB()
	}

	dedup, closeDedup := f.newDeduper(cfg)
	if closeDedup != nil {
		defer closeDedup()
	}

	consumer, closeConsumer := f.newConsumer(cfg, topic, group)
	if closeConsumer != nil {
		defer closeConsumer()
	}

	r := relay.New(cio, dedup, st).WithDedupTTL(dedupTTL)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := runRelayHTTPServer(ctx, relayHTTPOpts{
			httpAddr: httpAddr,
			relay:    r,
			checks:   healthChecks(st, dedup),
			store:    st,
			cfg:      cfg,
		}); err != nil && ctx.Err() == nil {
			slog.Error("relay http server stopped", "error", err.Error())
		}
	}()

	slog.Info("relay started", "topic", topic, "group", group, "dry_run", cfg.CustomerIO.DryRun)
	return consumer.Consume(ctx, func(ctx context.Context, msg kafka.Message) error {
		return r.Handle(ctx, msg.Key, msg.Value)
	})
}
