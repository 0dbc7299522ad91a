package cli

import (
	"fmt"
	"io"
	"time"

	"chatcall/backend/internal/models"

	"github.com/spf13/cobra"
)

var (
	chatsStreamer string
	chatsUser     string
	pageNumber    int
	pageSize      int
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List chats of a streamer or a user",
	Long: `List chats ordered by latest activity.

Examples:
  chatcall-admin chats --streamer streamer-1
  chatcall-admin chats --user user-42 --page 2`,
	RunE: runChats,
}

func init() {
	chatsCmd.Flags().StringVar(&chatsStreamer, "streamer", "", "streamer id")
	chatsCmd.Flags().StringVar(&chatsUser, "user", "", "user id")
	chatsCmd.MarkFlagsMutuallyExclusive("streamer", "user")
	chatsCmd.MarkFlagsOneRequired("streamer", "user")
	addPageFlags(chatsCmd)
}

func addPageFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&pageNumber, "page", 1, "page number (1-indexed)")
	cmd.Flags().IntVarP(&pageSize, "page-size", "n", 20, "items per page")
}

func runChats(cmd *cobra.Command, args []string) error {
	var (
		page models.Page[models.Chat]
		err  error
	)
	if chatsStreamer != "" {
		page, err = store.GetChatList(cmd.Context(), pageSize, pageNumber, chatsStreamer)
	} else {
		page, err = store.GetUserChatList(cmd.Context(), pageSize, pageNumber, chatsUser)
	}
	if err != nil {
		return fmt.Errorf("list chats: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, c := range page.Items {
		blocked := ""
		if c.Blocked {
			blocked = " [blocked by " + c.BlockedBy + "]"
		}
		fmt.Fprintf(out, "%s  %s  %q%s\n", c.LastMessageAt.Local().Format(time.DateTime), c.ID, c.LastMessage, blocked)
	}
	printPageFooter(out, page.CurrentPage, page.TotalPages, page.HasMore)
	return nil
}

func printPageFooter(w io.Writer, current, total int, hasMore bool) {
	fmt.Fprintf(w, "\npage %d of %d", current, total)
	if hasMore {
		fmt.Fprint(w, " (more available)")
	}
	fmt.Fprintln(w)
}
