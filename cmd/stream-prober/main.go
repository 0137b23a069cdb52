package main

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"net/netip"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"stream-prober/internal/adapters/scriptfile"
	"stream-prober/internal/adapters/storage/memory"
	"stream-prober/internal/domain"
	cfgpkg "stream-prober/internal/infrastructure/config"
	"stream-prober/internal/infrastructure/monitor"
	obs "stream-prober/internal/infrastructure/observability"
	"stream-prober/internal/probe"
	"stream-prober/internal/transport/plain"
	"stream-prober/internal/transport/udp"
	"stream-prober/internal/usecase"
	"stream-prober/pkg/shared/id"
)

func main() {
	var (
		scriptPaths []string
		configPath  string
		connectTo   string
		bindAddr    string
		reportPath  string
		logLevel    string
		repeat      int
	)
	pflag.StringArrayVar(&scriptPaths, "script", nil, "YAML action script (repeatable)")
	pflag.StringVar(&configPath, "config", "", "optional TOML config file")
	pflag.StringVar(&connectTo, "connect-to", "", "peer address, host:port")
	pflag.StringVar(&bindAddr, "bind", "", "local UDP bind address")
	pflag.StringVar(&reportPath, "report", "", "report output path (- for stdout)")
	pflag.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	pflag.IntVar(&repeat, "repeat", 1, "number of sessions to run per script")
	pflag.Parse()

	cfg := cfgpkg.FromEnv()
	if configPath != "" {
		var err error
		cfg, err = cfgpkg.ApplyFile(cfg, configPath)
		if err != nil {
			obs.NewLogger("info").Fatal().Err(err).Msg("stream-prober: bad config file")
		}
	}
	if connectTo != "" {
		cfg.ConnectTo = connectTo
	}
	if bindAddr != "" {
		cfg.BindAddr = bindAddr
	}
	if reportPath != "" {
		cfg.ReportPath = reportPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger := obs.NewLogger(cfg.LogLevel)
	if len(scriptPaths) == 0 {
		logger.Fatal().Msg("stream-prober: at least one --script is required")
	}
	if cfg.ConnectTo == "" {
		logger.Fatal().Msg("stream-prober: --connect-to (or CONNECT_TO) is required")
	}
	peer, err := resolvePeer(cfg.ConnectTo)
	if err != nil {
		logger.Fatal().Err(err).Str("target", cfg.ConnectTo).Msg("stream-prober: cannot resolve peer")
	}
	bind, err := netip.ParseAddrPort(cfg.BindAddr)
	if err != nil {
		logger.Fatal().Err(err).Str("bind", cfg.BindAddr).Msg("stream-prober: bad bind address")
	}

	metrics := obs.NewMetrics()
	hub := monitor.NewHub()
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
		mux.HandleFunc("/monitor", hub.HandleWS)
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics and live monitor")
	}

	store := memory.NewStore(cfg.MaxReportRuns)
	svc := usecase.NewReportService(store)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ctx := context.Background()

	exitCode := 0
	for _, path := range scriptPaths {
		script, err := scriptfile.Load(path)
		if err != nil {
			logger.Fatal().Err(err).Str("script", path).Msg("stream-prober: bad script")
		}
		logger.Info().Str("script", script.Name).Str("peer", peer.String()).Int("actions", len(script.Actions)).Msg("stream-prober: starting probe")
		for i := 0; i < repeat; i++ {
			rec := runOnce(cfg, bind, peer, logger, metrics, hub, rng, script)
			_ = svc.Record(ctx, rec)
			if rec.Error != nil {
				exitCode = 1
			}
		}
	}

	if err := svc.WriteReportFile(ctx, cfg.ReportPath); err != nil {
		logger.Error().Err(err).Msg("stream-prober: report write failed")
		exitCode = 1
	}
	os.Exit(exitCode)
}

func runOnce(cfg cfgpkg.Config, bind, peer netip.AddrPort, logger *zerolog.Logger, metrics *obs.Metrics, hub *monitor.Hub, rng *rand.Rand, script *domain.Script) domain.RunRecord {
	rec := domain.RunRecord{ID: id.New(), Script: script.Name, StartedAt: time.Now().UTC()}
	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	summary, err := dialAndRun(cfg, bind, peer, logger, metrics, hub, rng, script, rec.ID)
	rec.FinishedAt = time.Now().UTC()
	if err != nil {
		msg := err.Error()
		rec.Error = &msg
		metrics.SessionsTotal.WithLabelValues(outcome(err)).Inc()
		logger.Error().Err(err).Str("session", rec.ID).Msg("probe failed")
		return rec
	}
	rec.Summary = summary
	metrics.SessionsTotal.WithLabelValues("ok").Inc()
	return rec
}

func dialAndRun(cfg cfgpkg.Config, bind, peer netip.AddrPort, logger *zerolog.Logger, metrics *obs.Metrics, hub *monitor.Hub, rng *rand.Rand, script *domain.Script, sessionID string) (*domain.ConnectionSummary, error) {
	sock, err := udp.Listen(bind)
	if err != nil {
		return nil, &domain.SetupError{Err: err}
	}
	defer sock.Close()
	poller, err := udp.NewPoller(sock)
	if err != nil {
		return nil, &domain.SetupError{Err: err}
	}
	defer poller.Close()

	sess, err := plain.Dial(sock.LocalAddr(), peer, plain.Options{
		IdleTimeout:     time.Duration(cfg.IdleTimeoutMs) * time.Millisecond,
		MaxDatagramSize: cfg.MaxDatagramSize,
	})
	if err != nil {
		return nil, &domain.SetupError{Err: err}
	}

	drv := &probe.Driver{
		Sess:        sess,
		Conn:        sock,
		Poller:      poller,
		Log:         logger,
		Metrics:     metrics,
		Hub:         hub,
		Rand:        rng,
		MaxDatagram: cfg.MaxDatagramSize,
		SessionID:   sessionID,
	}
	return drv.Run(script)
}

func outcome(err error) string {
	var ioErr *domain.IOError
	var setupErr *domain.SetupError
	switch {
	case errors.Is(err, domain.ErrHandshakeFail):
		return "handshake_fail"
	case errors.As(err, &ioErr):
		return "io_error"
	case errors.As(err, &setupErr):
		return "setup_error"
	}
	return "error"
}

// resolvePeer accepts a literal ip:port or a resolvable host:port.
func resolvePeer(target string) (netip.AddrPort, error) {
	if ap, err := netip.ParseAddrPort(target); err == nil {
		return ap, nil
	}
	ua, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return ua.AddrPort(), nil
}
