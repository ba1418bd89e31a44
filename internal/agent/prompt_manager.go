package agent

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
)

const (
	RoleInstructionParser = "instruction_parser"
	RoleSceneDescriptor   = "scene_descriptor"
	RoleImageGenerator    = "image_generator"
	RoleRecipeParser      = "recipe_parser"
	RoleConceptPrompter   = "concept_prompter"
)

//go:embed prompts/*.md
var defaultPrompts embed.FS

// commonPrompt is appended to every role prompt when present in the override directory.
const commonPrompt = "common.md"

// PromptManager resolves role prompts. A file named <role>.md in Directory
// replaces the built-in prompt for that role.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

func (pm *PromptManager) Get(role string) (string, error) {
	var parts []string

	base, err := pm.readOverride(role + ".md")
	if err != nil {
		return "", err
	}
	if base == "" {
		data, err := defaultPrompts.ReadFile("prompts/" + role + ".md")
		if err != nil {
			return "", fmt.Errorf("no prompt for role %s", role)
		}
		base = string(data)
	}
	parts = append(parts, strings.TrimSpace(base))

	common, err := pm.readOverride(commonPrompt)
	if err != nil {
		log.Printf("Warning: Failed to read %s: %v", commonPrompt, err)
	} else if common != "" {
		parts = append(parts, strings.TrimSpace(common))
	}

	return strings.Join(parts, "\n\n---\n\n"), nil
}

func (pm *PromptManager) readOverride(name string) (string, error) {
	if pm.Directory == "" {
		return "", nil
	}
	path := filepath.Join(pm.Directory, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file %s: %w", path, err)
	}
	return string(data), nil
}
