package cli

import (
	"fmt"
	"io"
	"time"

	"chatcall/backend/internal/models"

	"github.com/spf13/cobra"
)

var messagesCmd = &cobra.Command{
	Use:   "messages <chat-id>",
	Short: "Print one page of a chat's history, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runMessages,
}

func init() {
	addPageFlags(messagesCmd)
}

func runMessages(cmd *cobra.Command, args []string) error {
	page, err := store.GetMessages(cmd.Context(), args[0], pageSize, pageNumber)
	if err != nil {
		return fmt.Errorf("get messages: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(page.Items) == 0 {
		fmt.Fprintln(out, "No messages.")
		return nil
	}
	for _, m := range page.Items {
		printMessage(out, m)
	}
	printPageFooter(out, page.CurrentPage, page.TotalPages, page.HasMore)
	return nil
}

func printMessage(w io.Writer, m models.Message) {
	var marks string
	if m.ReadAt != nil {
		marks += " ✓"
	}
	if m.Flags.IsReported {
		marks += " [reported]"
	}
	if m.Flags.IsDeleted {
		marks += " [deleted]"
	}
	fmt.Fprintf(w, "%s  %-12s %-6s %s%s\n",
		m.Timestamp.Local().Format(time.DateTime), m.SenderID, m.Type, m.Body, marks)
}
