package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/striezel/botvinnik-sub001/internal/bot"
	"github.com/striezel/botvinnik-sub001/internal/bot/plugins"
	"github.com/striezel/botvinnik-sub001/internal/matrix"
	"github.com/striezel/botvinnik-sub001/pkg/chatlog"
	"github.com/striezel/botvinnik-sub001/pkg/config"
	"github.com/striezel/botvinnik-sub001/pkg/log"
	"github.com/striezel/botvinnik-sub001/pkg/metrics"
)

var watchConfig bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the homeserver and start answering commands",
	Long: `Connect to the configured Matrix homeserver, join pending invites and
answer prefixed commands until stopped via signal or the stop command.`,
	RunE: runBot,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&watchConfig, "watch-config", true, "Watch the config file and hot-reload deactivated commands and stop users")
}

func runBot(cmd *cobra.Command, args []string) error {
	configPath, err := resolveConfigPath()
	if err != nil {
		return err
	}

	watcher, err := config.NewConfigWatcher(configPath)
	if err != nil {
		return err
	}
	cfg := watcher.GetConfig()

	log.InitLogger(os.Stderr, logLevel(cfg.Logging.Level), cfg.Logging.Pretty)

	overrides := make(map[string]interface{})
	cmd.Flags().Visit(func(flag *pflag.Flag) {
		overrides[flag.Name] = flag.Value.String()
	})
	if len(overrides) > 0 {
		log.WithFields(overrides).Debug("command line overrides")
	}

	token := cfg.Matrix.AccessToken
	userID := cfg.Matrix.UserID
	if token == "" {
		log.WithField("user_id", userID).Info("no access token configured, logging in with password")
		token, userID, err = matrix.LoginWithPassword(cfg.Matrix.Homeserver, userID, cfg.Matrix.Password, 0)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
	}

	client := matrix.NewClient(cfg.Matrix.Homeserver, token, userID, 0)
	client.SetRateLimit(cfg.Matrix.SendRate, cfg.Matrix.SendBurst)

	router := bot.NewRouter()
	router.SetDeactivated(cfg.Bot.DeactivatedCommands)

	var chat *chatlog.ChatLog
	if cfg.Logging.ChatLog {
		chat = chatlog.New(os.Stdout)
	}

	var metricsServer *metrics.Server
	var botMetrics *metrics.Metrics
	if cfg.Metrics.Addr != "" {
		metricsServer = metrics.NewServer(metrics.ServerConfig{Addr: cfg.Metrics.Addr})
		botMetrics = metricsServer.GetMetrics()
	}

	b := bot.New(client, router, bot.Options{
		Prefix:         cfg.Bot.Prefix,
		StopUsers:      cfg.Bot.StopUsers,
		SyncTimeout:    time.Duration(cfg.Matrix.SyncTimeoutMs) * time.Millisecond,
		CommandTimeout: cfg.Bot.CommandTimeout,
		QueueSize:      cfg.Bot.QueueSize,
		ChatLog:        chat,
		Metrics:        botMetrics,
	})

	if err := registerPlugins(router, b, client, botMetrics); err != nil {
		return err
	}

	if watchConfig {
		watcher.OnConfigChange(func(_, newConfig *config.Config) {
			router.SetDeactivated(newConfig.Bot.DeactivatedCommands)
			b.SetStopUsers(newConfig.Bot.StopUsers)
		})
		go watcher.StartWatching()
		defer watcher.StopWatching()
	}

	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.WithError(err).Error("metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Stop(shutdownCtx); err != nil {
				log.WithError(err).Warn("metrics server shutdown failed")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.WithField("signal", sig.String()).Info("shutdown signal received")
		cancel()
	}()

	log.WithFields(map[string]interface{}{
		"user_id":    userID,
		"homeserver": cfg.Matrix.Homeserver,
		"prefix":     cfg.Bot.Prefix,
	}).Info("bot starting")

	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("bot stopped")
	return nil
}

// registerPlugins wires the standard plugin set into the router.
func registerPlugins(router *bot.Router, b *bot.Bot, client *matrix.Client, m *metrics.Metrics) error {
	var uploader plugins.Uploader = client
	if m != nil {
		uploader = &countingUploader{client: client, metrics: m}
	}

	all := []bot.Plugin{
		plugins.NewCore(b, router),
		plugins.NewPing(),
		plugins.NewRot13(),
		plugins.NewFortune(),
		plugins.NewXkcd(uploader),
		plugins.NewWeather(),
	}
	for _, p := range all {
		if err := router.Register(p); err != nil {
			return fmt.Errorf("failed to register plugin: %w", err)
		}
	}
	return nil
}

// countingUploader records upload outcomes before delegating to the
// homeserver client.
type countingUploader struct {
	client  *matrix.Client
	metrics *metrics.Metrics
}

func (u *countingUploader) UploadMedia(data []byte, contentType, filename string) (string, error) {
	uri, err := u.client.UploadMedia(data, contentType, filename)
	if err != nil {
		u.metrics.MediaUploads.WithLabelValues(metrics.UploadFailed).Inc()
		return "", err
	}
	u.metrics.MediaUploads.WithLabelValues(metrics.UploadOK).Inc()
	return uri, nil
}

func logLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
