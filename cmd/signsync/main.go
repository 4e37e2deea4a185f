package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openkiosk/signsync/internal/cli"
	"github.com/openkiosk/signsync/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "signsync",
		Short:   "signsync - keep a CMS playlist in step with a local media directory",
		Version: version.String(),
		Long: `signsync uploads new and changed files from a local directory to a
Xibo-compatible CMS, replaces the playlist widgets that referenced the
old copies, and records what it did in a manifest so the next run only
touches what changed.`,
	}

	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.PlanCmd())
	rootCmd.AddCommand(cli.MediaCmd())
	rootCmd.AddCommand(cli.VersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
