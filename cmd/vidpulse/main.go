package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vidpulse",
		Short:         "Track YouTube video metrics, growth and milestones",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(trackCmd())
	root.AddCommand(untrackCmd())
	root.AddCommand(listCmd())
	root.AddCommand(ingestCmd())
	root.AddCommand(discoverCmd())
	root.AddCommand(alertsCmd())
	root.AddCommand(readCmd())
	root.AddCommand(reportCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func trackCmd() *cobra.Command {
	var (
		file       string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "track [url-or-id...]",
		Short: "Start tracking videos by URL or id",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && file == "" {
				return fmt.Errorf("give at least one video url or id, or --file")
			}
			return runTrack(cmd.Context(), args, file, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read one url or id per line (- for stdin)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func untrackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "untrack <url-or-id>",
		Short: "Stop refreshing a video, keeping its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUntrack(cmd.Context(), args[0])
		},
	}
}

func listCmd() *cobra.Command {
	var (
		all        bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked videos with their latest counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), all, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include untracked videos")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func ingestCmd() *cobra.Command {
	var (
		hour       int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Refresh every tracked video once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), hour, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&hour, "hour", -1, "evaluate growth as if run at this hour today (default: now)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func discoverCmd() *cobra.Command {
	var (
		channel    string
		track      bool
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List recent uploads of a channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			if channel == "" {
				return fmt.Errorf("--channel is required")
			}
			return runDiscover(cmd.Context(), channel, track, limit, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "", "channel id (UC...)")
	cmd.Flags().BoolVar(&track, "track", false, "start tracking the uploads")
	cmd.Flags().IntVar(&limit, "limit", 15, "max uploads")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func alertsCmd() *cobra.Command {
	var (
		all        bool
		video      string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Show unread alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAlerts(cmd.Context(), all, video, limit, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include read alerts")
	cmd.Flags().StringVar(&video, "video", "", "only alerts of this video")
	cmd.Flags().IntVar(&limit, "limit", 50, "max alerts to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <alert-id>",
		Short: "Mark an alert as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(cmd.Context(), args[0])
		},
	}
}

func reportCmd() *cobra.Command {
	var (
		days       int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "report <url-or-id>",
		Short: "Show trend, suggestions and comment insights for a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.Context(), args[0], days, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "analysis window in days")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
