package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cookframe",
	Short: "Turn a recipe into one illustrated image per cooking step",
	Long: `cookframe parses a recipe (a dish name, instruction text, a .txt/.pdf file or a
recipe web page) into steps, writes a visual scene for every step and renders
each scene to step_<n>_image.png.`,
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to cookframe.yaml")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(visualizeCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(promptsCmd)
	rootCmd.AddCommand(historyCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cookframe %s\n", Version)
	},
}
