package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/route-attendance/internal/attendance"
	"github.com/kozaktomas/route-attendance/internal/config"
	"github.com/kozaktomas/route-attendance/internal/database"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the persisted HNSW candidate index",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the HNSW index from the template store and save it",
	Long: `Rebuild the HNSW index from all active templates and save it to
HNSW_INDEX_PATH, so that serve starts without rebuilding.`,
	Args: cobra.NoArgs,
	RunE: runIndexRebuild,
}

var indexInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show metadata of the saved HNSW index",
	Args:  cobra.NoArgs,
	RunE:  runIndexInfo,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexRebuildCmd)
	indexCmd.AddCommand(indexInfoCmd)

	indexInfoCmd.Flags().Bool("json", false, "Output as JSON")
}

func runIndexRebuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.HNSW.IndexPath == "" {
		return errors.New("HNSW_INDEX_PATH is required to save the index")
	}

	refresher := a.refresher
	if refresher == nil {
		index := database.NewHNSWIndex(attendance.IndexDistance(a.cfg.Match.Metric), a.cfg.Match.CandidateLimit)
		refresher = attendance.NewIndexRefresher(index, a.templates, a.cfg.HNSW.IndexPath, 0, a.logger, a.metrics)
	}

	start := time.Now()
	if err := refresher.Refresh(ctx); err != nil {
		return err
	}

	meta, err := database.LoadHNSWMetadata(a.cfg.HNSW.IndexPath)
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d templates on %d routes in %s (saved to %s)\n",
		meta.TemplateCount, meta.RouteCount, time.Since(start).Round(time.Millisecond), a.cfg.HNSW.IndexPath)
	return nil
}

func runIndexInfo(cmd *cobra.Command, args []string) error {
	path := config.Load().HNSW.IndexPath
	if path == "" {
		return errors.New("HNSW_INDEX_PATH is not set")
	}

	meta, err := database.LoadHNSWMetadata(path)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(meta)
	}

	fmt.Printf("Path:      %s\n", path)
	fmt.Printf("Templates: %d\n", meta.TemplateCount)
	fmt.Printf("Routes:    %d\n", meta.RouteCount)
	fmt.Printf("Distance:  %s\n", meta.Distance)
	fmt.Printf("Built:     %s (%s ago)\n",
		meta.BuildTime.Format(time.RFC3339), time.Since(meta.BuildTime).Round(time.Second))
	return nil
}
