package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rahul/cookframe/internal/agent"
)

const (
	Title     = "GEMINI AI PHOTO-REALISTIC IMAGE PROMPTS"
	ruleWidth = 70
)

// Render writes the prompt report for results in input order.
func Render(w io.Writer, results []agent.ConceptResult) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, Title)
	fmt.Fprintln(bw, strings.Repeat("=", ruleWidth))
	fmt.Fprintln(bw)
	for _, r := range results {
		fmt.Fprintf(bw, "CONCEPT: %s\n", r.Concept)
		fmt.Fprintf(bw, "PROMPT: %s\n", r.Prompt)
		fmt.Fprintln(bw, strings.Repeat("-", ruleWidth))
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// WritePromptReport writes the report to path, replacing any previous file.
func WritePromptReport(path string, results []agent.ConceptResult) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := Render(f, results); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}
