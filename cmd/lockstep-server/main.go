package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/lockstep/nbody-server/internal/httpapi"
	"github.com/lockstep/nbody-server/internal/metrics"
	"github.com/lockstep/nbody-server/internal/serverloop"
)

// Helper implementations moved to dedicated files: version.go, config.go, logger.go, session_init.go, metrics_logger.go, mdns.go.

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("nbody-server %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	sessions := initSessions(cfg, l)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	loopOpts := []serverloop.Option{serverloop.WithLogger(l)}
	if cfg.tickInterval > 0 {
		loopOpts = append(loopOpts, serverloop.WithTickInterval(cfg.tickInterval))
	}
	loop := serverloop.New(sessions, loopOpts...)

	mux := http.NewServeMux()
	api := &httpapi.Handler{Sessions: sessions, Loop: loop}
	api.Mount(mux)
	httpapi.StartIdleReaper(ctx, sessions)

	listener, err := net.Listen("tcp", cfg.listenAddr)
	if err != nil {
		l.Error("listen_error", "error", err)
		return
	}

	go loop.Run(ctx)
	go func() {
		if err := http.Serve(listener, mux); err != nil && ctx.Err() == nil {
			l.Error("http_server_error", "error", err)
			cancel()
		}
	}()

	// Start mDNS advertisement once the listener is bound.
	go func() {
		if !cfg.mdnsEnable {
			return
		}
		addr := listener.Addr().String()
		var portNum int
		if _, p, err := net.SplitHostPort(addr); err == nil {
			if pn, perr := strconv.Atoi(p); perr == nil {
				portNum = pn
			}
		}
		if portNum == 0 { // fallback attempt if format unexpected
			lastColon := strings.LastIndex(addr, ":")
			if lastColon >= 0 {
				if pn, perr := strconv.Atoi(addr[lastColon+1:]); perr == nil {
					portNum = pn
				}
			}
		}
		cleanupMDNS, err := startMDNS(ctx, cfg, portNum)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
			return
		}
		l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", portNum)
		go func() { <-ctx.Done(); cleanupMDNS() }()
	}()

	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()
	_ = listener.Close()
	wg.Wait()
}
