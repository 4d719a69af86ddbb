package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jirevwe/litecollector"
	"github.com/jirevwe/litecollector/config"
	"github.com/jirevwe/litecollector/job"
	"github.com/jirevwe/litecollector/metrics"
	"github.com/jirevwe/litecollector/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "", "path to the yaml config file, defaults are used when empty")
	requests := flag.Int("requests", 100, "number of sensor readings to request")
	sensors := flag.Int("sensors", 5, "number of distinct sensors")
	flag.Parse()

	if *sensors < 1 {
		*sensors = 1
	}

	if err := run(*configPath, *requests, *sensors); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func run(configPath string, requests, sensors int) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}

	level, err := cfg.Level()
	if err != nil {
		return err
	}
	slogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var post job.PostCollectFunc
	if cfg.Store.Driver != "" {
		s, err := store.Open(cfg.Store.Driver, cfg.Store.DSN, slogger)
		if err != nil {
			return err
		}
		defer s.Close()

		post = store.PostCollector(s, slogger)
	}

	d, err := litecollector.NewDispatcher(cfg.Dispatcher(job.New(collectReading, post), slogger))
	if err != nil {
		return err
	}
	defer d.Close()

	if cfg.MetricsAddr != "" && d.Metrics() != nil {
		srv := serveMetrics(cfg.MetricsAddr, d.Metrics(), slogger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	submit(ctx, d, requests, sensors, slogger)

	snapshot, err := json.Marshal(d.Snapshot())
	if err != nil {
		return err
	}
	slogger.Info("collection metrics", "snapshot", string(snapshot))

	if cfg.MetricsAddr != "" {
		slogger.Info("serving metrics until interrupted", "addr", cfg.MetricsAddr)
		<-ctx.Done()
	}

	return nil
}

// submit requests a reading from each sensor in turn, backing off while the
// dispatcher is full, and waits for all accepted requests to finish.
func submit(ctx context.Context, d *litecollector.Dispatcher, requests, sensors int, slogger *slog.Logger) {
	wg := &sync.WaitGroup{}

	for i := 0; i < requests && ctx.Err() == nil; i++ {
		requestID := uuid.NewString()
		payload := job.Payload{"sensor": fmt.Sprintf("sensor-%d", i%sensors)}

		wg.Add(1)
		err := d.SubmitAsync(requestID, payload, func(r *job.Result, err error) {
			defer wg.Done()

			switch {
			case err != nil:
				slogger.Error("reading faulted", "request_id", requestID, "error", err)
			case r.Error != nil:
				slogger.Warn("reading failed", "request_id", requestID, "error", r.Error.Error())
			default:
				slogger.Info("reading collected", "request_id", requestID, "source", r.Source, "quality", r.Quality)
			}
		})

		if err != nil {
			wg.Done()
			if !errors.Is(err, litecollector.ErrQueueFull) {
				slogger.Error(err.Error())
				break
			}

			slogger.Debug("dispatcher is full, backing off", "request_id", requestID)
			time.Sleep(50 * time.Millisecond)
			i--
		}
	}

	wg.Wait()
}

func serveMetrics(addr string, agg *metrics.Aggregator, slogger *slog.Logger) *http.Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector(agg, "litecollector"))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogger.Error("metrics server stopped", "error", err)
		}
	}()

	return srv
}
