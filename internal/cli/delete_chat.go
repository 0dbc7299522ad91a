package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var deleteForce bool

var deleteChatCmd = &cobra.Command{
	Use:   "delete-chat <chat-id>",
	Short: "Delete a chat and all of its messages",
	Long: `Delete a chat and all of its messages (cascade delete).
Requires confirmation unless --force is used.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeleteChat,
}

func init() {
	deleteChatCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "skip confirmation")
}

func runDeleteChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	chatID := args[0]

	stats, err := store.GetChatStats(ctx, chatID)
	if err != nil {
		return fmt.Errorf("get chat: %w", err)
	}

	out := cmd.OutOrStdout()
	if !deleteForce {
		fmt.Fprintf(out, "About to delete %s with %d message(s)\n", chatID, stats.TotalMessages)
		fmt.Fprint(out, "\nContinue? [y/N]: ")

		reader := bufio.NewReader(cmd.InOrStdin())
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	if err := store.DeleteChat(ctx, chatID); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	fmt.Fprintf(out, "Deleted: %s\n", chatID)
	return nil
}
