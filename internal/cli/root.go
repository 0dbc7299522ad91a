// Package cli provides the operator command-line interface for the chat and
// call backend.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"chatcall/backend/internal/auth"
	"chatcall/backend/internal/calllog"
	"chatcall/backend/internal/chathub"
	"chatcall/backend/internal/config"
	"chatcall/backend/internal/conversation"
	"chatcall/backend/internal/gateway"
	"chatcall/backend/internal/storage"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool
	direct  bool

	cfg        config.Config
	logger     *slog.Logger
	closeLog   func() error
	storageSvc *storage.Service

	store     *conversation.Store
	calls     *calllog.Tracker
	listeners *chathub.ManagerService
)

var rootCmd = &cobra.Command{
	Use:   "chatcall-admin",
	Short: "Inspect and maintain chats and call logs",
	Long: `chatcall-admin talks to the persistence gateway (or, with --direct,
to PostgreSQL) to inspect chat threads and call history.

Examples:
  chatcall-admin calls user-42
  chatcall-admin messages streamer-1_user-42 --page-size 50
  chatcall-admin watch streamer-1_user-42
  chatcall-admin delete-chat streamer-1_user-42 --force`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}
		logger, closeLog = cfg.Logger("admin")

		gw, err := connect(cmd.Context())
		if err != nil {
			return err
		}

		opts := chathub.DefaultOptions()
		opts.Interval = cfg.PollInterval
		opts.Deduplicate = cfg.PollDeduplicate
		opts.FailureThreshold = cfg.PollFailureThreshold
		listeners = chathub.NewManagerService(opts, logger)

		store = conversation.NewStore(gw, listeners, logger, cfg.MaxPageSize)
		calls = calllog.NewTracker(gw, logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if listeners != nil {
			listeners.CloseAll()
		}
		if storageSvc != nil && storageSvc.Redis != nil {
			if err := storageSvc.Redis.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close redis: %v\n", err)
			}
		}
		if closeLog != nil {
			_ = closeLog()
		}
	},
}

// connect is the gateway factory used by every command.
var connect = openGateway

// openGateway returns the HTTP gateway client, or the PostgreSQL store when
// --direct is set.
func openGateway(ctx context.Context) (gateway.Gateway, error) {
	if !direct {
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("JWT_SECRET is required to call the gateway")
		}
		signer := auth.NewSigner(cfg.JWTSecret, cfg.TokenTTL).WithAudience(auth.GatewayAudience)
		tokens := auth.NewSignedTokenSource(signer, cfg.ServiceSubject)
		return gateway.NewClient(cfg.GatewayURL, tokens, &http.Client{Timeout: cfg.RequestTimeout}), nil
	}

	db, err := storage.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	storageSvc = storage.NewStorageService(db, nil, logger)
	if cfg.RedisAddr != "" {
		rdb, err := storage.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		storageSvc.Redis = rdb
	}
	return storageSvc, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&direct, "direct", false, "use PostgreSQL directly instead of the gateway")

	rootCmd.AddCommand(callsCmd)
	rootCmd.AddCommand(chatsCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(deleteChatCmd)
}
