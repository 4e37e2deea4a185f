package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// PlanCmd returns the plan command
func PlanCmd() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what a sync cycle would do, without doing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer rt.shutdown()

			plan, err := rt.syncer.BuildPlan(cmd.Context())
			if err != nil {
				return err
			}
			if plan.Empty() {
				fmt.Println("no changes")
				return nil
			}

			add := color.New(color.FgGreen)
			replace := color.New(color.FgYellow)
			remove := color.New(color.FgRed)
			for _, name := range plan.Add {
				add.Printf("  + upload   %s\n", name)
			}
			for _, known := range plan.Replace {
				replace.Printf("  ~ replace  %s (was %s)\n", known.Name, known.FormatName)
			}
			for _, known := range plan.Remove {
				remove.Printf("  - remove   %s (%s)\n", known.Name, known.FormatName)
			}
			fmt.Printf("%d to upload, %d to replace, %d to remove, %d unchanged\n",
				len(plan.Add), len(plan.Replace), len(plan.Remove), len(plan.Unchanged))
			return nil
		},
	}

	registerCommonFlags(cmd.Flags(), &flags)
	return cmd
}
