package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeStage       EventType = "stage"
	EventTypeToolCall    EventType = "tool_call"
	EventTypeToolResult  EventType = "tool_result"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeCost        EventType = "cost"
	EventTypeImage       EventType = "image"
	EventTypeLLM         EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging. Events go to out as JSON lines; llm
// events are also appended to a size-rotated file under the log directory.
type Logger struct {
	mu         sync.Mutex
	out        io.Writer
	llmLogPath string
	maxSize    int64
}

// NewLogger writes events to stdout. An empty logDir disables the llm file.
func NewLogger(logDir string) *Logger {
	l := &Logger{
		out:     os.Stdout,
		maxSize: 10 * 1024 * 1024, // 10MB
	}
	if logDir != "" {
		l.llmLogPath = filepath.Join(logDir, "llm.jsonl")
	}
	return l
}

// NewNopLogger discards every event.
func NewNopLogger() *Logger {
	l := NewLogger("")
	l.out = io.Discard
	return l
}

func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

func (l *Logger) SetMaxSize(n int64) {
	l.maxSize = n
}

// Log emits a structured JSON event.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		data = []byte(fmt.Sprintf("{\"error\": \"failed to marshal event: %v\"}", err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	termMu.Lock()
	fmt.Fprintln(l.out, string(data))
	termMu.Unlock()

	if evt.Type == EventTypeLLM && l.llmLogPath != "" {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

// rotateLogs keeps a single .old generation.
func (l *Logger) rotateLogs() {
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

func (l *Logger) LogStage(runID, from, to string) {
	l.Log(Event{
		Type:  EventTypeStage,
		RunID: runID,
		Data:  map[string]string{"from": from, "to": to},
	})
}

func (l *Logger) LogToolCall(runID, tool, args string) {
	l.Log(Event{
		Type:  EventTypeToolCall,
		RunID: runID,
		Data: map[string]string{
			"tool": tool,
			"args": args,
		},
	})
}

func (l *Logger) LogToolResult(runID, tool string, bytes int, err error) {
	data := map[string]any{"tool": tool, "bytes": bytes}
	if err != nil {
		data["error"] = err.Error()
	}
	l.Log(Event{Type: EventTypeToolResult, RunID: runID, Data: data})
}

func (l *Logger) LogPolicy(runID, tool, effect, reason string) {
	l.Log(Event{
		Type:  EventTypePolicyCheck,
		RunID: runID,
		Data: map[string]string{
			"tool":   tool,
			"effect": effect,
			"reason": reason,
		},
	})
}

func (l *Logger) LogCost(runID, agent string, promptTokens, completionTokens int, model string) {
	l.Log(Event{
		Type:  EventTypeCost,
		RunID: runID,
		Agent: agent,
		Data: map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
			"model":             model,
		},
	})
}

func (l *Logger) LogImage(runID string, step int, path string, size int) {
	l.Log(Event{
		Type:  EventTypeImage,
		RunID: runID,
		Data: map[string]any{
			"step_number": step,
			"path":        path,
			"bytes":       size,
		},
	})
}

func (l *Logger) LogLLM(runID, agent string, prompt any, response string) {
	l.Log(Event{
		Type:  EventTypeLLM,
		RunID: runID,
		Agent: agent,
		Data: map[string]any{
			"prompt":   prompt,
			"response": response,
		},
	})
}
