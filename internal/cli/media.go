package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openkiosk/signsync/internal/cms"
)

// MediaCmd returns the media command group
func MediaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media",
		Short: "Inspect CMS library media",
	}
	cmd.AddCommand(mediaFindCmd())
	return cmd
}

func mediaFindCmd() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "find <name>...",
		Short: "Look up library media ids by display name",
		Long: `Look up media ids the same way a sync cycle does before deleting
widgets: exact fileName match first, then exact name, then a free-text
search. Useful for checking what a remove would touch.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer rt.shutdown()

			located := cms.FindMediaIDs(cmd.Context(), rt.client, args)
			for _, name := range args {
				ids := located[name]
				if len(ids) == 0 {
					fmt.Printf("%s: no match\n", name)
					continue
				}
				fmt.Printf("%s: %v\n", name, ids)
			}
			return nil
		},
	}

	registerCommonFlags(cmd.Flags(), &flags)
	return cmd
}
