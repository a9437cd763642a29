package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/casetext/customerio-client/config"
	"github.com/casetext/customerio-client/internal/services/relay"
	"github.com/go-chi/chi/v5"
)

type relayHTTPOpts struct {
	httpAddr string
	onListen func(httpAddr string)

	relay  *relay.Relay
	store  deliveryStore
	checks map[string]func(ctx context.Context) error
	cfg    *config.Config
}

const healthCheckTimeout = 2 * time.Second

func newRelayRouter(opts relayHTTPOpts) chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		status, code := "ok", http.StatusOK
		results := make(map[string]string, len(opts.checks))
		for name, check := range opts.checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status, code = "unavailable", http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		writeJSON(w, code, map[string]any{"status": status, "checks": results})
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		if opts.relay == nil {
			writeJSON(w, http.StatusOK, map[string]string{"error": "relay not wired"})
			return
		}
		writeJSON(w, http.StatusOK, opts.relay.Stats())
	})

	r.Get("/stats/deliveries", func(w http.ResponseWriter, r *http.Request) {
		if opts.store == nil {
			writeJSON(w, http.StatusOK, map[string]string{"error": "storage not wired"})
			return
		}
		counts, err := opts.store.CountByStatus(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, counts)
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		if opts.cfg == nil {
			writeJSON(w, http.StatusOK, map[string]string{"error": "config not wired"})
			return
		}
		// no credentials here
		writeJSON(w, http.StatusOK, map[string]any{
			"topic":              opts.cfg.Kafka.CommandsTopicName,
			"kafkaConsumerGroup": opts.cfg.Relay.KafkaConsumerGroup,
			"dedupTTLSeconds":    opts.cfg.Relay.DedupTTLSeconds,
			"dryRun":             opts.cfg.CustomerIO.DryRun,
			"baseURL":            opts.cfg.CustomerIO.BaseURL,
			"siteIDSet":          opts.cfg.CustomerIO.SiteID != "",
			"apiKeySet":          opts.cfg.CustomerIO.APIKey != "",
		})
	})

	return r
}

func runRelayHTTPServer(ctx context.Context, opts relayHTTPOpts) error {
	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: newRelayRouter(opts), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	return srv.Serve(lis)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
