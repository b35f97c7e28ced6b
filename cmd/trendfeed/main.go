package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "trendfeed",
		Short: "Aggregate and rank trending content from configured sources",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $TRENDFEED_CONFIG or ./config.yaml)")

	root.AddCommand(refreshCmd())
	root.AddCommand(feedCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func refreshCmd() *cobra.Command {
	var sources []string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch stale sources and persist their items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(sources)
		},
	}

	cmd.Flags().StringSliceVar(&sources, "source", nil, "specific source IDs to refresh (e.g., hackernews,lobsters)")
	return cmd
}

func feedCmd() *cobra.Command {
	var (
		mode       string
		category   string
		timeRange  string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Print the ranked feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeed(mode, category, timeRange, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "ranking mode: hot, rising, top, trending (default: hot)")
	cmd.Flags().StringVar(&category, "category", "", "filter by category (news, research, code, video, community)")
	cmd.Flags().StringVar(&timeRange, "range", "", "time range: day, week, month (default: day)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with background refresh and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
