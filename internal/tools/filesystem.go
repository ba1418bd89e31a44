package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Workspace is the output directory of a run. Every path it hands out stays
// inside Root.
type Workspace struct {
	Root string
}

func NewWorkspace(root string) *Workspace {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = filepath.Clean(root)
	}
	return &Workspace{Root: absRoot}
}

// Resolve maps a relative name to a path inside the workspace.
func (w *Workspace) Resolve(name string) (string, error) {
	if name == "" || filepath.IsAbs(name) {
		return "", fmt.Errorf("unsafe path attempt: %q", name)
	}
	targetPath := filepath.Join(w.Root, name)
	rel, err := filepath.Rel(w.Root, targetPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("unsafe path attempt: %s", name)
	}
	return targetPath, nil
}

func (w *Workspace) WriteFile(name string, data []byte) (string, error) {
	path, err := w.Resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return path, nil
}

func (w *Workspace) ReadFile(name string) ([]byte, error) {
	path, err := w.Resolve(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// List returns the file names directly under the workspace root.
func (w *Workspace) List() ([]string, error) {
	entries, err := os.ReadDir(w.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// FilesystemTool exposes the workspace to the pipeline as a tool.
type FilesystemTool struct {
	Workspace *Workspace
}

func NewFilesystemTool(ws *Workspace) *FilesystemTool {
	return &FilesystemTool{Workspace: ws}
}

func (f *FilesystemTool) Name() string {
	return "filesystem"
}

func (f *FilesystemTool) Description() string {
	return "Read, write and list text files in the output directory."
}

func (f *FilesystemTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"enum":        []string{"read", "write", "list"},
				"description": "The operation to perform",
			},
			"filename": map[string]any{
				"type":        "string",
				"description": "The name of the file, relative to the output directory",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The content to write (only for 'write' command)",
			},
		},
		"required": []string{"command"},
	}
}

func (f *FilesystemTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Command  string `json:"command"`
		Filename string `json:"filename"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}

	switch args.Command {
	case "read":
		data, err := f.Workspace.ReadFile(args.Filename)
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		return string(data), nil
	case "write":
		path, err := f.Workspace.WriteFile(args.Filename, []byte(args.Content))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Successfully wrote to %s", path), nil
	case "list":
		names, err := f.Workspace.List()
		if err != nil {
			return "", err
		}
		if len(names) == 0 {
			return "Directory is empty", nil
		}
		return strings.Join(names, "\n"), nil
	default:
		return "", fmt.Errorf("invalid command %q, use 'read', 'write' or 'list'", args.Command)
	}
}
