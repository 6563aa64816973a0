package cli

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-metrics"
	gmprom "github.com/hashicorp/go-metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/raskyld/ipywire"
	"github.com/raskyld/ipywire/controls"
	"github.com/raskyld/ipywire/pkg/comm"
	"github.com/raskyld/ipywire/pkg/commquic"
	"github.com/raskyld/ipywire/pkg/commws"
	"github.com/raskyld/ipywire/pkg/notekit"
	"github.com/raskyld/ipywire/pkg/telemetry"
)

const (
	shutdownGracePeriod = 5 * time.Second
	sessionSetupTimeout = 10 * time.Second
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		listen     string
		quicListen string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a demo kernel to frontends",
		Long: `Serve a demo kernel. Every frontend connecting gets its own session
with a slider and a text box, and the changes it makes are logged.

Sessions are accepted on /ws (WebSocket) and optionally over QUIC. The
HTTP listener also serves /metrics and /healthz.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.HTTP.Listen = listen
			}
			if cmd.Flags().Changed("quic") {
				cfg.QUIC.Listen = quicListen
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := loggerFromContext(cmd.Context(), cmd.ErrOrStderr(), cfg.LogLevel)
			return serve(cmd.Context(), cfg, slog.New(slogHandler(logger)))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "TOML configuration file")
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP address, overrides http.listen")
	cmd.Flags().StringVar(&quicListen, "quic", "", "QUIC address, overrides quic.listen")
	return cmd
}

func serve(ctx context.Context, cfg Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	k, err := newKernel(cfg, logger, reg)
	if err != nil {
		return err
	}

	errs := make(chan error, 2)

	if cfg.HTTP.Listen != "" {
		srv := &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           k.router(reg),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("serving http", "addr", cfg.HTTP.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- fmt.Errorf("http: %w", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.QUIC.Listen != "" {
		cert, err := tls.LoadX509KeyPair(cfg.QUIC.CertFile, cfg.QUIC.KeyFile)
		if err != nil {
			return fmt.Errorf("quic: %w", err)
		}
		ln, err := commquic.Listen(cfg.QUIC.Listen, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS13,
		}, k.commOptions()...)
		if err != nil {
			return err
		}
		defer ln.Close()

		go func() {
			logger.Info("serving quic", "addr", ln.Addr().String())
			if err := k.acceptQUIC(ctx, ln); err != nil {
				errs <- fmt.Errorf("quic: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down", telemetry.LabelError.L(context.Cause(ctx)))
		return nil
	case err := <-errs:
		return err
	}
}

// kernel runs the demo sessions.
type kernel struct {
	cfg    Config
	logger *slog.Logger
	msink  metrics.MetricSink

	sessions atomic.Int64
}

func newKernel(cfg Config, logger *slog.Logger, reg prometheus.Registerer) (*kernel, error) {
	sink, err := gmprom.NewPrometheusSinkFrom(gmprom.PrometheusOpts{
		Registerer: reg,
		Expiration: time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register prometheus sink: %w", err)
	}
	return &kernel{
		cfg:    cfg,
		logger: logger,
		msink:  sink,
	}, nil
}

func (k *kernel) commOptions() []comm.Option {
	return []comm.Option{
		comm.WithLog(k.logger.Handler()),
		comm.WithMetricSink(k.msink),
		comm.WithMaxFrameSize(k.cfg.Session.MaxFrameSize),
	}
}

func (k *kernel) router(gatherer prometheus.Gatherer) http.Handler {
	ws := commws.Handler(func(r *http.Request, ep *comm.Endpoint) error {
		return k.startSession(ep, "websocket", r.RemoteAddr)
	}, k.commOptions()...)
	if k.cfg.HTTP.AllowAnyOrigin {
		ws.Upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", k.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	r.Handle("/ws", ws)
	return r
}

func (k *kernel) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": k.sessions.Load(),
	})
}

func (k *kernel) acceptQUIC(ctx context.Context, ln *commquic.Listener) error {
	for {
		ep, err := ln.Accept(ctx)
		if errors.Is(err, comm.ErrProtocolViolation) {
			k.logger.Warn("quic handshake failed", telemetry.LabelError.L(err))
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := k.startSession(ep, "quic", ""); err != nil {
			k.logger.Warn("quic session rejected", telemetry.LabelError.L(err))
			_ = ep.Close()
		}
	}
}

// startSession publishes the demo on ep. It must not wait on the frontend:
// the endpoint only reads once it returns.
func (k *kernel) startSession(ep *comm.Endpoint, transport, peer string) error {
	logger := k.logger.With(telemetry.LabelTransport.L(transport))
	if peer != "" {
		logger = logger.With(telemetry.LabelPeerAddr.L(peer))
	}
	labels := []metrics.Label{telemetry.LabelTransport.M(transport)}

	mgr, err := ipywire.NewManager(ep,
		ipywire.WithRegistry(controls.Registry()),
		ipywire.WithLog(logger.Handler()),
		ipywire.WithMetricSink(k.msink),
		ipywire.WithMetricLabels(labels),
		ipywire.WithEchoUpdates(k.cfg.Session.EchoUpdates),
		ipywire.WithSendTimeout(k.cfg.Session.SendTimeout.Duration),
	)
	if err != nil {
		return err
	}

	nk, err := notekit.NewManipulator(ep,
		notekit.WithLog(logger.Handler()),
		notekit.WithMetricSink(k.msink),
		notekit.WithMetricLabels(labels),
		notekit.WithTarget(k.cfg.Session.NotekitTarget),
		notekit.WithTimeout(k.cfg.Session.NotekitTimeout.Duration),
	)
	if err != nil {
		_ = mgr.Shutdown(context.Background())
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), sessionSetupTimeout)
	defer cancel()
	if err := publishDemo(ctx, mgr, logger); err != nil {
		_ = mgr.Shutdown(context.Background())
		return err
	}

	k.sessions.Add(1)
	logger.Info("session started")

	go func() {
		<-ep.Done()
		k.sessions.Add(-1)

		ctx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		_ = nk.Close(ctx)
		_ = mgr.Shutdown(ctx)
		logger.Info("session ended")
	}()

	if k.cfg.Session.InspectNotebook {
		go inspectNotebook(nk, logger)
	}
	return nil
}

// publishDemo displays a slider whose value is mirrored in a text box.
func publishDemo(ctx context.Context, mgr *ipywire.Manager, logger *slog.Logger) error {
	slider := controls.NewIntSlider(mgr)
	label := controls.NewText(mgr)
	box := controls.NewVBox(mgr, slider, label)

	if err := slider.Description.Set("value"); err != nil {
		return err
	}
	if err := label.Disabled.Set(true); err != nil {
		return err
	}

	slider.Value.OnChange(func(old, new int, origin ipywire.Origin) {
		logger.Info("slider moved", "old", old, "new", new, "origin", origin.String())
		if origin != ipywire.OriginRemote {
			return
		}
		if err := label.Value.Set(fmt.Sprintf("slider is at %d", new)); err != nil {
			logger.Warn("failed to update label", telemetry.LabelError.L(err))
		}
	})
	label.Value.OnChange(func(_, new string, origin ipywire.Origin) {
		if origin == ipywire.OriginRemote {
			logger.Info("text edited", "value", new)
		}
	})

	_, err := mgr.Display(ctx, box)
	return err
}

func inspectNotebook(nk *notekit.Manipulator, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), sessionSetupTimeout)
	defer cancel()

	version, err := nk.NbformatVersion(ctx)
	if err != nil {
		logger.Warn("notebook is not reachable", telemetry.LabelError.L(err))
		return
	}
	count, err := nk.CellCount(ctx)
	if err != nil {
		logger.Warn("failed to count cells", telemetry.LabelError.L(err))
		return
	}
	logger.Info("notebook inspected", "nbformat", version.String(), "cells", count)
}
