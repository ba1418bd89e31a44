package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rahul/cookframe/internal/imaging"
	"github.com/rahul/cookframe/internal/recipe"
)

const (
	InstructionParserName = "instruction_parser_agent"
	SceneDescriptorName   = "scene_descriptor_agent"
	ImageGeneratorName    = "image_generator_agent"
)

type StepParser interface {
	Parse(ctx context.Context, request string) ([]recipe.StepRecord, error)
}

type SceneWriter interface {
	DescribeText(ctx context.Context, parsedSteps string) ([]recipe.SceneRecord, error)
}

type StepIllustrator interface {
	Generate(ctx context.Context, scene recipe.SceneRecord) (*imaging.Image, error)
}

// InstructionParserTool parses cooking instructions into structured steps.
type InstructionParserTool struct {
	Parser StepParser
}

func (t *InstructionParserTool) Name() string { return InstructionParserName }

func (t *InstructionParserTool) Description() string {
	return "Parses cooking instructions or a dish name into structured steps."
}

func (t *InstructionParserTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Raw cooking instructions or the name of a dish",
			},
		},
		"required": []string{"query"},
	}
}

func (t *InstructionParserTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", fmt.Errorf("invalid input: empty query")
	}
	steps, err := t.Parser.Parse(ctx, args.Query)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(steps)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// SceneDescriptorTool turns parsed steps into scene descriptions.
type SceneDescriptorTool struct {
	Descriptor SceneWriter
}

func (t *SceneDescriptorTool) Name() string { return SceneDescriptorName }

func (t *SceneDescriptorTool) Description() string {
	return "Generates detailed scene descriptions for image generation."
}

func (t *SceneDescriptorTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"parsed_steps": map[string]any{
				"type":        "string",
				"description": "Structured steps from the instruction parser",
			},
		},
		"required": []string{"parsed_steps"},
	}
}

func (t *SceneDescriptorTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		ParsedSteps string `json:"parsed_steps"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	scenes, err := t.Descriptor.DescribeText(ctx, args.ParsedSteps)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(scenes)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ImageResult is what the image generator tool reports for a written step.
type ImageResult struct {
	StepNumber int    `json:"step_number"`
	Path       string `json:"path"`
	Bytes      int    `json:"bytes"`
}

// ImageGeneratorTool draws one step and writes step_<n>_image.png.
type ImageGeneratorTool struct {
	Generator StepIllustrator
	Workspace *Workspace
}

func (t *ImageGeneratorTool) Name() string { return ImageGeneratorName }

func (t *ImageGeneratorTool) Description() string {
	return "Generates an image corresponding to a single step."
}

func (t *ImageGeneratorTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"scene_description": map[string]any{"type": "string"},
			"step_number":       map[string]any{"type": "integer"},
			"key_elements": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Elements that must be visible; a comma separated string is also accepted",
			},
			"continuity_notes": map[string]any{"type": "string"},
		},
		"required": []string{"scene_description", "step_number"},
	}
}

func (t *ImageGeneratorTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		SceneDescription string          `json:"scene_description"`
		StepNumber       int             `json:"step_number"`
		KeyElements      json.RawMessage `json:"key_elements"`
		ContinuityNotes  string          `json:"continuity_notes"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if args.StepNumber <= 0 {
		return "", fmt.Errorf("invalid input: step_number must be positive, got %d", args.StepNumber)
	}
	if strings.TrimSpace(args.SceneDescription) == "" {
		return "", fmt.Errorf("invalid input: empty scene_description for step %d", args.StepNumber)
	}

	scene := recipe.SceneRecord{
		StepNumber:       args.StepNumber,
		SceneDescription: args.SceneDescription,
		KeyElements:      elementList(args.KeyElements),
		ContinuityNotes:  args.ContinuityNotes,
	}
	img, err := t.Generator.Generate(ctx, scene)
	if err != nil {
		return "", err
	}
	path, err := t.Workspace.WriteFile(imaging.StepFilename(scene.StepNumber), img.Data)
	if err != nil {
		return "", fmt.Errorf("failed to save image for step %d: %w", scene.StepNumber, err)
	}

	out, err := json.Marshal(ImageResult{StepNumber: scene.StepNumber, Path: path, Bytes: len(img.Data)})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// elementList accepts either a JSON array of strings or a comma separated string.
func elementList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
