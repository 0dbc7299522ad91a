package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatcall/backend/internal/chathub"
	"chatcall/backend/internal/models"

	"github.com/spf13/cobra"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch <chat-id>",
	Short: "Follow a chat and print new messages as they arrive",
	Long: `Poll a chat and print each new message until interrupted.

With --direct and REDIS_ADDR set, the last printed message is remembered
across runs.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "poll interval (default POLL_INTERVAL)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	chatID := args[0]
	if _, err := store.GetChat(cmd.Context(), chatID); err != nil {
		return fmt.Errorf("get chat: %w", err)
	}

	var opts []chathub.Option
	if watchInterval > 0 {
		opts = append(opts, chathub.WithInterval(watchInterval))
	}
	if storageSvc != nil && storageSvc.Redis != nil {
		opts = append(opts, chathub.WithCursor(storageSvc, "cli:"+chatID))
	}

	out := cmd.OutOrStdout()
	cancel := store.SetupMessageListener(chatID, func(m models.Message) {
		printMessage(out, m)
	}, opts...)
	defer cancel()

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s, press Ctrl-C to stop.\n", chatID)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
	case <-cmd.Context().Done():
	}
	return nil
}
