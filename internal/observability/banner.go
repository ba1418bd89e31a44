package observability

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

const (
	colorReset    = "\033[0m"
	colorPurple   = "\033[35m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
)

// termMu serialises terminal output so progress lines and log writes never
// interleave mid-line.
var termMu sync.Mutex

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

type termWriter struct{}

func (tw termWriter) Write(p []byte) (n int, err error) {
	termMu.Lock()
	defer termMu.Unlock()
	return os.Stderr.Write(p)
}

// NewTermWriter returns an io.Writer suitable for log.SetOutput().
func NewTermWriter() io.Writer {
	return termWriter{}
}

func PrintBanner(w io.Writer) {
	banner := `
                  __   ____
  _________  ____/ /__/ __/________ _____ ___  ___
 / ___/ __ \/ __ \/ //_/ /_/ ___/ __ ` + "`" + `/ __ ` + "`" + `__ \/ _ \
/ /__/ /_/ / /_/ / ,< / __/ /  / /_/ / / / / / /  __/
\___/\____/\____/_/|_/_/ /_/   \__,_/_/ /_/ /_/\___/

            >> ONE PICTURE PER STEP <<
`
	color := isTerminal(w)
	width := termWidth()

	termMu.Lock()
	defer termMu.Unlock()
	for _, l := range strings.Split(banner, "\n") {
		padding := clamp((width-len(l))/2, 0, width)
		if color {
			fmt.Fprintf(w, "%s%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan, l, colorReset)
		} else {
			fmt.Fprintf(w, "%s%s\n", strings.Repeat(" ", padding), l)
		}
	}
}

// FormatProgress renders a one-line progress bar for a run, fitted to width.
func FormatProgress(s Snapshot, width int) string {
	label := fmt.Sprintf("[%s]", s.Stage)
	if s.Total == 0 {
		return fmt.Sprintf("%s %v", label, s.Elapsed)
	}

	counter := fmt.Sprintf("%d/%d", s.Step, s.Total)
	barWidth := clamp(width-len(label)-len(counter)-16, 10, 40)
	filled := clamp(s.Step*barWidth/s.Total, 0, barWidth)
	bar := strings.Repeat("█", filled) + strings.Repeat("▒", barWidth-filled)
	return fmt.Sprintf("%s %s %s %v", label, bar, counter, s.Elapsed)
}

// PrintProgress writes the current progress line for a run.
func PrintProgress(w io.Writer, s *Status) {
	line := FormatProgress(s.Snapshot(), termWidth())

	termMu.Lock()
	defer termMu.Unlock()
	if isTerminal(w) {
		color := colorPurple
		if strings.HasPrefix(line, "[failed]") {
			color = colorNeonMag
		}
		fmt.Fprintf(w, "%s%s%s\n", color, line, colorReset)
		return
	}
	fmt.Fprintln(w, line)
}
