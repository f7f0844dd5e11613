package main

import (
	"log/slog"

	"github.com/lockstep/nbody-server/internal/hub"
	"github.com/lockstep/nbody-server/internal/session"
)

func initSessions(cfg *appConfig, l *slog.Logger) *session.Manager {
	policy := hub.PolicyDrop
	switch cfg.hubPolicy {
	case "drop":
		policy = hub.PolicyDrop
	case "kick":
		policy = hub.PolicyKick
	default:
		l.Warn("unknown_hub_policy", "policy", cfg.hubPolicy, "used", "drop")
	}
	policyStr := map[hub.BackpressurePolicy]string{hub.PolicyDrop: "drop", hub.PolicyKick: "kick"}[policy]
	l.Info("build_info", "version", version, "commit", commit, "date", date)
	l.Info("session_config", "policy", policyStr, "buffer", cfg.hubBuffer, "idle_timeout", cfg.idleTimeout)
	l.Info("transport_config", "data_addr", cfg.dataAddr, "public_addr", cfg.publicAddr)
	return session.NewManagerWithTransport(cfg.idleTimeout, cfg.hubBuffer, policy, cfg.dataAddr, cfg.publicAddr)
}
