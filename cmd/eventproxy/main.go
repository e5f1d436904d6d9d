// Command eventproxy relays browser protocol events from a remote (or
// local) browser session to any number of websocket subscribers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/odvcencio/eventproxy/pkg/config"
	"github.com/odvcencio/eventproxy/pkg/proxy"
	"github.com/odvcencio/eventproxy/pkg/server"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "eventproxy: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("eventproxy", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	listenAddr := fs.String("listen", "", "address to serve the websocket and control API on")
	providerKind := fs.String("provider", "", "session provider: browserbase or local")
	sessionID := fs.String("session-id", "", "existing Browserbase session to attach to (default: create one)")
	apiKey := fs.String("api-key", "", "Browserbase API key (default: BROWSERBASE_API_KEY)")
	projectID := fs.String("project-id", "", "Browserbase project id (default: BROWSERBASE_PROJECT_ID)")
	noConnect := fs.Bool("no-connect", false, "start the server without acquiring a session (connect via the API)")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Printf("eventproxy %s (%s, built %s)\n", version, commit, buildDate)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	// Flags override file and environment.
	if strings.TrimSpace(*listenAddr) != "" {
		cfg.ListenAddr = strings.TrimSpace(*listenAddr)
	}
	if strings.TrimSpace(*providerKind) != "" {
		cfg.Provider.Kind = strings.TrimSpace(*providerKind)
	}
	if strings.TrimSpace(*sessionID) != "" {
		cfg.Provider.SessionID = strings.TrimSpace(*sessionID)
	}
	if strings.TrimSpace(*apiKey) != "" {
		cfg.Provider.APIKey = strings.TrimSpace(*apiKey)
	}
	if strings.TrimSpace(*projectID) != "" {
		cfg.Provider.ProjectID = strings.TrimSpace(*projectID)
	}

	engine, err := proxy.NewEngine(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer engine.Close(context.Background())

	if !*noConnect {
		if err := engine.Connect(ctx); err != nil {
			return fmt.Errorf("connecting browser session: %w", err)
		}
	}

	return server.New(engine, cfg.ListenAddr).Start(ctx)
}
