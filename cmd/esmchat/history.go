package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/yunseo-dev/esmchat/internal/history"
)

var (
	historyHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	historyIDStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
	historyCountStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	historyDateStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the local history mirror",
	Long: `Inspect the local mirror of fetched chat transcripts.

The mirror is refreshed after every finished turn; the server stays the
source of truth. These commands work offline.`,
}

var (
	searchSession string
	searchLimit   int
)

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := openCache(cmd.Context())
		if err != nil {
			return err
		}
		defer cache.Close()

		metas, err := cache.Sessions(cmd.Context())
		if err != nil {
			return err
		}
		if len(metas) == 0 {
			fmt.Println(historyHeaderStyle.Render("No cached sessions"))
			return nil
		}

		fmt.Println(historyHeaderStyle.Render(fmt.Sprintf("Found %d session(s)", len(metas))))
		fmt.Println()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tTitle\tMessages\tUpdated")
		for _, meta := range metas {
			title := meta.Title
			if title == "" {
				title = "(no title)"
			}
			if len([]rune(title)) > 50 {
				title = string([]rune(title)[:47]) + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				historyIDStyle.Render(meta.SessionID),
				title,
				historyCountStyle.Render(strconv.Itoa(meta.Messages)),
				historyDateStyle.Render(meta.UpdatedAt.Format("2006-01-02 15:04")))
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print one cached transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := openCache(cmd.Context())
		if err != nil {
			return err
		}
		defer cache.Close()

		msgs, err := cache.Messages(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			fmt.Println(historyHeaderStyle.Render("No cached messages for " + args[0]))
			return nil
		}
		for _, m := range msgs {
			fmt.Printf("%s %s\n%s\n\n",
				historyDateStyle.Render(m.Timestamp.Format("15:04")),
				historyCountStyle.Render(string(m.Role)),
				m.Content)
		}
		return nil
	},
}

var historySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search across cached transcripts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		search, err := openSearch()
		if err != nil {
			return err
		}
		defer search.Close()

		hits, err := search.Search(strings.Join(args, " "), searchSession, searchLimit)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			fmt.Println(historyHeaderStyle.Render("No matches"))
			return nil
		}
		for _, hit := range hits {
			fmt.Printf("%s  %s  %s\n",
				historyIDStyle.Render(hit.SessionID),
				historyCountStyle.Render(hit.Role),
				truncateLine(hit.Content, 100))
		}
		return nil
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show mirror size and counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := openCache(cmd.Context())
		if err != nil {
			return err
		}
		defer cache.Close()

		metas, err := cache.Sessions(cmd.Context())
		if err != nil {
			return err
		}
		total := 0
		for _, meta := range metas {
			total += meta.Messages
		}
		size, err := cache.Size()
		if err != nil {
			return err
		}

		fmt.Printf("Sessions:   %d\n", len(metas))
		fmt.Printf("Messages:   %d\n", total)
		fmt.Printf("Cache size: %s\n", units.HumanSize(float64(size)))
		return nil
	},
}

func openCache(ctx context.Context) (*history.Cache, error) {
	manager, _, err := loadSetup()
	if err != nil {
		return nil, err
	}
	dbPath, _, err := ensureDataDir(manager)
	if err != nil {
		return nil, err
	}
	return history.Open(ctx, dbPath)
}

func openSearch() (*history.SearchIndex, error) {
	manager, _, err := loadSetup()
	if err != nil {
		return nil, err
	}
	_, indexPath, err := ensureDataDir(manager)
	if err != nil {
		return nil, err
	}
	return history.OpenSearchIndex(indexPath)
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historySearchCmd)
	historyCmd.AddCommand(historyStatsCmd)

	historySearchCmd.Flags().StringVar(&searchSession, "session", "", "Restrict the search to one session")
	historySearchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum number of hits")
}
