package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats <chat-id>",
	Short: "Summarize a chat's history",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := store.GetChatStats(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get chat stats: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Chat:      %s\n", stats.ChatID)
	fmt.Fprintf(out, "Messages:  %d (%d images, %d reported, %d deleted)\n",
		stats.TotalMessages, stats.ImageMessages, stats.ReportedMessages, stats.DeletedMessages)
	for participant, n := range stats.UnreadByParticipant {
		fmt.Fprintf(out, "Unread:    %s has %d\n", participant, n)
	}
	if stats.FirstMessageAt != nil {
		fmt.Fprintf(out, "First:     %s\n", stats.FirstMessageAt.Local().Format(time.DateTime))
		fmt.Fprintf(out, "Last:      %s\n", stats.LastMessageAt.Local().Format(time.DateTime))
	}
	if stats.Blocked {
		fmt.Fprintln(out, "Status:    blocked")
	}
	return nil
}
