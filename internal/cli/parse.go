package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/rahul/cookframe/internal/agent"
	"github.com/rahul/cookframe/internal/ingest"
	"github.com/spf13/cobra"
)

var (
	parseVisualize bool
	parseOutputDir string
)

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Parse a .txt or .pdf recipe into structured JSON",
	Long: `parse extracts the text of a recipe document and asks the recipe parser for a
schema-checked recipe, printed as JSON. With --visualize the parsed steps go
on to the scene descriptor and image generator.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if !ingest.SupportedExtension(path) {
			return fmt.Errorf("%w: %s", ingest.ErrUnsupportedFormat, filepath.Ext(path))
		}

		a, err := newApp(parseOutputDir)
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		text, err := ingest.LoadDocument(ctx, path)
		if err != nil {
			return err
		}

		ag, err := a.roleAgent(agent.RoleRecipeParser, a.cfg.Agents.RecipeParser)
		if err != nil {
			return err
		}
		parser, err := agent.NewRecipeParser(ag)
		if err != nil {
			return err
		}
		parsed, err := parser.Parse(ctx, text, filepath.Base(path))
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}

		out := cmd.OutOrStdout()
		data, err := json.MarshalIndent(parsed, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))

		if !parseVisualize {
			return nil
		}
		return a.runPipeline(ctx, out, agent.Request{
			Source: &ingest.Source{Kind: ingest.KindFile, Name: filepath.Base(path), Text: text},
			Steps:  parsed.StepRecords(),
		})
	},
}

func init() {
	parseCmd.Flags().BoolVar(&parseVisualize, "visualize", false, "Continue into scene descriptions and step images")
	parseCmd.Flags().StringVarP(&parseOutputDir, "output-dir", "o", "", "Directory for step images (overrides app.output_dir)")
}
