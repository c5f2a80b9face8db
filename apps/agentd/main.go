// agentd serves decision agents over two transports: line-delimited
// JSON on stdio (the default, for sidecar deployment) and WebSocket
// when AGENTD_LISTEN is set.
package main

import (
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"

	"vaultpilot/agent"
	"vaultpilot/apps/agentd/internal/access"
	"vaultpilot/apps/agentd/internal/audit"
	"vaultpilot/apps/agentd/internal/gateway"
	"vaultpilot/apps/agentd/internal/manifest"
)

func main() {
	m, source, err := manifest.FromEnv()
	if err != nil {
		log.Fatalf("[AgentD] Failed to load manifest: %v", err)
	}
	registry, err := manifest.NewRegistry(m)
	if err != nil {
		log.Fatalf("[AgentD] Failed to build agent registry: %v", err)
	}
	logLoadReports(registry)

	auditService, auditMode, err := audit.NewServiceFromEnv()
	if err != nil {
		log.Fatalf("[AgentD] Failed to init audit service: %v", err)
	}
	defer auditService.Close()

	log.Printf("[AgentD] Manifest: %s", source)
	log.Printf("[AgentD] Audit mode: %s", auditMode)

	if addr := strings.TrimSpace(os.Getenv("AGENTD_LISTEN")); addr != "" {
		runServer(addr, registry, auditService)
		return
	}
	runStdio(registry, auditService)
}

// logLoadReports surfaces weight-loading drift at startup. Missing
// tensors stay at zero and unexpected ones are ignored; both usually
// mean the bundle and the manifest disagree about the architecture.
func logLoadReports(registry *manifest.Registry) {
	for _, name := range registry.Names() {
		report := registry.Report(name)
		if report == nil {
			continue
		}
		if report.Clean() {
			log.Printf("[Weights] %s: all %d tensors loaded", name, report.Loaded)
			continue
		}
		for _, missing := range report.Missing {
			log.Printf("[Weights] %s: missing tensor %s (kept at zero)", name, missing)
		}
		for _, unexpected := range report.Unexpected {
			log.Printf("[Weights] %s: unexpected tensor %s (ignored)", name, unexpected)
		}
		log.Printf("[Weights] %s: loaded %d tensors, %d missing, %d unexpected",
			name, report.Loaded, len(report.Missing), len(report.Unexpected))
	}
}

// runStdio binds one session to stdin/stdout. The protocol owns
// stdout; all logging stays on stderr.
func runStdio(registry *manifest.Registry, auditService audit.Service) {
	name := strings.TrimSpace(os.Getenv("AGENTD_AGENT"))
	if name == "" {
		name = registry.DefaultAgent()
	}
	ev, err := registry.NewEvaluator(name)
	if err != nil {
		log.Fatalf("[AgentD] %v", err)
	}

	session := agent.NewSession(uuid.NewString(), name, ev, audit.NewRecorder(auditService))
	log.Printf("[AgentD] Serving agent %s (obs_dim=%d) on stdio (session=%s)", name, session.ObsDim(), session.ID())
	if err := agent.Serve(os.Stdin, os.Stdout, session); err != nil {
		log.Fatalf("[AgentD] Transport error: %v", err)
	}

	snap := session.Snapshot()
	log.Printf("[AgentD] Session closed: inferences=%d, resets=%d, failures=%d",
		snap.Inferences, snap.Resets, snap.Failures)
}

func runServer(addr string, registry *manifest.Registry, auditService audit.Service) {
	guard, accessMode, err := access.NewGuardFromEnv()
	if err != nil {
		log.Fatalf("[AgentD] Failed to init access guard: %v", err)
	}

	gw := gateway.New(registry, auditService)
	auditHTTP := audit.NewHTTPHandler(auditService)

	mux := http.NewServeMux()
	mux.Handle("/ws", guard.Wrap(http.HandlerFunc(gw.HandleWebSocket)))
	mux.HandleFunc("/agents", gw.HandleAgents)
	mux.Handle("/audit/recent", guard.Wrap(http.HandlerFunc(auditHTTP.HandleRecent)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	log.Printf("[AgentD] Access mode: %s", accessMode)
	log.Printf("[AgentD] Starting WebSocket server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("[AgentD] Failed to start: %v", err)
	}
}
