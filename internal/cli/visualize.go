package cli

import (
	"strings"

	"github.com/rahul/cookframe/internal/agent"
	"github.com/spf13/cobra"
)

var (
	visualizeOutputDir  string
	visualizeSceneSheet bool
)

var visualizeCmd = &cobra.Command{
	Use:   "visualize <dish|text|file|url>",
	Short: "Run the full pipeline and write one image per step",
	Long: `visualize resolves the request (dish name, instruction text, .txt/.pdf file
or recipe URL), parses it into steps, describes a scene for every step and
writes step_<n>_image.png files to the output directory.`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(visualizeOutputDir)
		if err != nil {
			return err
		}
		defer a.close()

		return a.runPipeline(cmd.Context(), cmd.OutOrStdout(), agent.Request{
			Input:      strings.Join(args, " "),
			SceneSheet: visualizeSceneSheet,
		})
	},
}

func init() {
	visualizeCmd.Flags().StringVarP(&visualizeOutputDir, "output-dir", "o", "", "Directory for step images (overrides app.output_dir)")
	visualizeCmd.Flags().BoolVar(&visualizeSceneSheet, "scene-sheet", false, "Also write the scene descriptions to scenes.md")
}
