package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marzbot/marzbot/internal/config"
	"github.com/marzbot/marzbot/internal/logging"
	"github.com/marzbot/marzbot/internal/monitoring"
	"github.com/marzbot/marzbot/internal/notifications"
	"github.com/marzbot/marzbot/internal/panel"
	"github.com/marzbot/marzbot/internal/statestore"
	"github.com/marzbot/marzbot/internal/webhook"
	"github.com/marzbot/marzbot/pkg/marzneshin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const metricsPort = 9091

var rootCmd = &cobra.Command{
	Use:     "marzbot",
	Short:   "marzbot - Marzneshin panel operations bot",
	Long:    `marzbot watches a Marzneshin proxy panel, alerts operators about unhealthy nodes and relays user deactivation events from the panel webhook`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("marzbot %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// sudoPanel routes monitoring calls through the sudo admin's client,
// resolved per call so credential reloads take effect without a restart.
type sudoPanel struct {
	manager *panel.Manager
}

func (p *sudoPanel) ListNodes(ctx context.Context, opts marzneshin.ListNodesOptions) (*marzneshin.NodePage, error) {
	client, err := p.manager.SudoClient()
	if err != nil {
		return nil, err
	}
	return client.ListNodes(ctx, opts)
}

func (p *sudoPanel) ResyncNode(ctx context.Context, nodeID int64) error {
	client, err := p.manager.SudoClient()
	if err != nil {
		return err
	}
	return client.ResyncNode(ctx, nodeID)
}

func runServer() {
	// Baseline logger for early startup logs, replaced once config is loaded
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "marzbot",
	})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "marzbot",
	})

	log.Info().Str("version", Version).Msg("Starting marzbot")

	// Context that cancels on shutdown, stopping every worker loop
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startMetricsServer(ctx, fmt.Sprintf("%s:%d", cfg.WebhookAddress, metricsPort))

	store := statestore.New(cfg.StateFile)
	manager := panel.NewManager(cfg.PanelURL, cfg.RequestTimeout, cfg.Admins)
	dispatcher := notifications.NewDispatcher(notifications.NewTelegramSender(cfg.BotToken))

	monitor := monitoring.New(monitoring.Config{
		PollInterval:     cfg.PollInterval,
		ReminderInterval: cfg.ReminderInterval,
	}, store, &sudoPanel{manager: manager}, dispatcher, manager.SudoRecipients)
	go monitor.Run(ctx)

	queue := webhook.NewQueue()
	worker := webhook.NewWorker(queue, manager, dispatcher)
	go worker.Run(ctx)

	ingress := webhook.NewServer(cfg.WebhookSecret, queue)
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.WebhookAddress, cfg.WebhookPort),
		Handler:           ingress.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Watch admins.json so credential and recipient changes apply live
	adminsWatcher, err := config.NewAdminsWatcher(cfg.AdminsFile, func(admins []config.Admin) {
		manager.SetAdmins(admins)
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create admins watcher, admin changes will require restart")
	} else {
		if err := adminsWatcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start admins watcher")
		}
		defer adminsWatcher.Stop()
	}

	go func() {
		log.Info().
			Str("host", cfg.WebhookAddress).
			Int("port", cfg.WebhookPort).
			Msg("Webhook ingress listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start webhook server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	reloadChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	signal.Notify(reloadChan, syscall.SIGHUP)

	for {
		select {
		case <-reloadChan:
			log.Info().Msg("Received SIGHUP, reloading admin groups...")
			admins, err := config.LoadAdmins(cfg.AdminsFile)
			if err != nil {
				log.Error().Err(err).Msg("Failed to reload admin groups")
				continue
			}
			manager.SetAdmins(admins)
			log.Info().Int("groups", len(admins)).Msg("Admin groups reloaded")

		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("Shutting down")
			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Failed to shut down webhook server cleanly")
			}
			return
		}
	}
}
