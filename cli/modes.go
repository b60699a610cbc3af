package cli

import (
	"fmt"

	"github.com/glasspath/communique/share"
	"github.com/glasspath/communique/tui"
	"github.com/spf13/cobra"
)

func newModesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "List send modes, marking the default one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := share.ParseMode(a.prefs.DefaultSendMode)
			if err != nil {
				def = share.Unknown
			}
			fmt.Fprint(cmd.OutOrStdout(), tui.RenderModes(share.Modes(), def))
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently shared email, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := share.NewHistory(a.historyStore()).List()
			if err != nil {
				return err
			}
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}
			fmt.Fprint(cmd.OutOrStdout(), tui.RenderHistory(records))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "show at most this many entries, 0 for all")
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget everything shared so far",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := share.NewHistory(a.historyStore()).Clear()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %v history entries\n", n)
			return nil
		},
	})
	return cmd
}
