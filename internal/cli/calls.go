package cli

import (
	"fmt"
	"strconv"
	"time"

	"chatcall/backend/internal/models"

	"github.com/spf13/cobra"
)

var callsCmd = &cobra.Command{
	Use:   "calls <user-id>",
	Short: "Show a user's call history, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runCalls,
}

func runCalls(cmd *cobra.Command, args []string) error {
	logs, err := calls.GetCallLogs(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get call logs: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(logs) == 0 {
		fmt.Fprintln(out, "No calls found.")
		return nil
	}

	for _, l := range logs {
		fmt.Fprintf(out, "%s  %-9s  %s -> %s  %s\n",
			l.StartTime.Local().Format(time.DateTime), l.Status, l.CallerID, l.ReceiverID, callDuration(l))
	}
	fmt.Fprintf(out, "\n%d call(s)\n", len(logs))
	return nil
}

func callDuration(l models.CallLog) string {
	if l.Duration == nil {
		return "-"
	}
	return (time.Duration(*l.Duration) * time.Second).String() + " (" + strconv.FormatInt(*l.Duration, 10) + "s)"
}
