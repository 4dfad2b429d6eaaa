package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/shobhitrajxyz/anonymate-app/internal/config"
	"github.com/shobhitrajxyz/anonymate-app/internal/peer"
	"github.com/shobhitrajxyz/anonymate-app/internal/signaling"
)

var statsServerURL string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show live user, queue, and room counts from a broker",
	Long: `Query a running broker's /stats endpoint.

Examples:
  anonymate stats
  anonymate stats --server wss://anonymate.app/ws`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(clientOptsWithServer(statsServerURL))
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		stats, err := fetchStats(ctx, cfg.StatsURL())
		if err != nil {
			return err
		}

		renderStats(os.Stdout, cfg.StatsURL(), stats)
		return nil
	},
}

func fetchStats(ctx context.Context, url string) (*signaling.Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, peer.NewError("build stats request", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, peer.NewError("fetch stats", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, peer.WrapError("fetch stats", peer.ErrConnectionFailed, resp.Status)
	}

	var stats signaling.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, peer.NewError("decode stats", err)
	}
	return &stats, nil
}

func renderStats(w io.Writer, source string, stats *signaling.Stats) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Broker " + source)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Users online", stats.Users},
		{"Waiting in queue", stats.Queued},
		{"Open rooms", stats.Rooms},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})
	t.Render()
	fmt.Fprintln(w)
}

func clientOptsWithServer(serverURL string) config.Options {
	return config.Options{ServerURL: serverURL}
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringVar(&statsServerURL, "server", "", "Broker websocket URL (env SERVER_URL)")
}
