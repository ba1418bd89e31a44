package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rahul/cookframe/internal/agent"
	"github.com/rahul/cookframe/internal/report"
	"github.com/spf13/cobra"
)

var (
	promptsSequential bool
	promptsFile       string
	promptsOutput     string
	promptsLimit      int
)

var promptsCmd = &cobra.Command{
	Use:   "prompts [concept...]",
	Short: "Write photo-realistic image prompts for food concepts",
	Long: `prompts asks the concept prompter for one image prompt per concept and writes
them to a report file. Concepts come from the arguments and, with --file, from
a text file with one concept per line.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		concepts := append([]string(nil), args...)
		if promptsFile != "" {
			fromFile, err := readConcepts(promptsFile)
			if err != nil {
				return err
			}
			concepts = append(concepts, fromFile...)
		}
		if len(concepts) == 0 {
			return fmt.Errorf("no concepts given")
		}

		a, err := newApp("")
		if err != nil {
			return err
		}
		defer a.close()

		ag, err := a.roleAgent(agent.RoleConceptPrompter, a.cfg.Agents.ConceptPrompter)
		if err != nil {
			return err
		}
		prompter := &agent.ConceptPrompter{Agent: ag, Limit: promptsLimit}

		var results []agent.ConceptResult
		if promptsSequential {
			results = prompter.Sequential(cmd.Context(), concepts)
		} else {
			results = prompter.Batch(cmd.Context(), concepts)
		}

		path := promptsOutput
		if path == "" {
			path = a.cfg.App.ReportPath
		}
		if err := report.WritePromptReport(path, results); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d prompt(s) written to %s\n", len(results), path)
		return nil
	},
}

func init() {
	promptsCmd.Flags().BoolVar(&promptsSequential, "sequential", false, "Generate prompts one at a time")
	promptsCmd.Flags().StringVarP(&promptsFile, "file", "f", "", "Read concepts from a file, one per line")
	promptsCmd.Flags().StringVarP(&promptsOutput, "output", "o", "", "Report path (overrides app.report_path)")
	promptsCmd.Flags().IntVar(&promptsLimit, "concurrency", 4, "Maximum concurrent model calls in batch mode")
}

// readConcepts returns the non-empty, non-comment lines of path.
func readConcepts(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading concepts: %w", err)
	}
	defer f.Close()

	var concepts []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		concepts = append(concepts, line)
	}
	return concepts, sc.Err()
}
