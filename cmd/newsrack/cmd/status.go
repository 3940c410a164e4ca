package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mpetitjean/newsrack/internal/track"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tracked articles",
	Long: `Status prints the locally tracked articles from the state file,
most recent first. No network calls are made.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	stateFile := viper.GetString("state_file")
	snap := track.Load(stateFile)

	if len(snap) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No tracked articles in %s\n", stateFile)
		return nil
	}

	urls := make([]string, 0, len(snap))
	for url := range snap {
		urls = append(urls, url)
	}
	sort.Slice(urls, func(i, j int) bool {
		return snap[urls[i]].AddedAt.After(snap[urls[j]].AddedAt)
	})

	now := time.Now()
	fmt.Fprintf(cmd.OutOrStdout(), "%d tracked article(s) in %s\n\n", len(snap), stateFile)
	for _, url := range urls {
		e := snap[url]
		fmt.Fprintf(cmd.OutOrStdout(), "%-10s  id=%-12s  %s\n", formatAge(e.Age(now)), e.BookmarkID, url)
		if e.Source != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "            from %s\n", e.Source)
		}
	}
	return nil
}

// formatAge renders a duration the way a human scans a cron log: whole
// hours or days, no sub-minute noise.
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
