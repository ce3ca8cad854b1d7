package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tunesync/tunesync/internal/rpc"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, scheduler, and store status",
		RunE:  runStatus,
	}
}

func runStatus(_ *cobra.Command, _ []string) error {
	resp, err := callDaemon("status", nil)
	if err != nil {
		return err
	}

	var payload rpc.StatusPayload
	if err := resp.DecodeData(&payload); err != nil {
		return err
	}

	if wantJSON() {
		return printJSON(payload)
	}

	printStatusText(payload)

	return nil
}

func printStatusText(p rpc.StatusPayload) {
	schedState := "running"

	switch {
	case p.Scheduler.Paused:
		schedState = "paused"
	case !p.Scheduler.Running:
		schedState = "stopped"
	}

	fmt.Printf("Scheduler: %s (every %d min, %s mode)\n",
		schedState, p.Scheduler.IntervalMinutes, p.Scheduler.Mode)
	fmt.Printf("Engine:    %s\n", p.Engine.State)
	fmt.Printf("Last sync: %s\n", formatSyncTime(p.Scheduler.LastSyncAt))

	if !p.Scheduler.Paused {
		fmt.Printf("Next sync: %s\n", formatSyncTime(p.Scheduler.NextSyncAt))
	}

	if s := p.Engine.LastStats; s != nil {
		fmt.Printf("Last cycle: +%d spotify, +%d yandex, -%d spotify, -%d yandex, %d cross-matched, %d unmatched, %d retried, %d errors\n",
			s.SpotifyAdded, s.YandexAdded, s.SpotifyRemoved, s.YandexRemoved,
			s.CrossMatched, s.Unmatched, s.RetriedOK, s.Errors)
	}

	fmt.Printf("Library:   %d mappings, %d spotify liked, %d yandex liked, %d unmatched, %d runs\n",
		p.Store.Mappings, p.Store.SpotifyLiked, p.Store.YandexLiked,
		p.Store.Unmatched, p.Store.Runs)
}

// formatSyncTime returns a compact local timestamp, or "never".
func formatSyncTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	return t.Local().Format("Jan _2 15:04:05")
}
