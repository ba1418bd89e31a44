package recipe

import (
	"errors"
	"fmt"
)

var (
	// ErrNoParsableOutput is returned when model output yields no records at all.
	ErrNoParsableOutput = errors.New("no parsable output")

	// ErrNoValidJSON is returned when a recipe parse response contains no JSON object.
	ErrNoValidJSON = errors.New("no valid JSON in model output")

	ErrInvalidSteps  = errors.New("invalid step records")
	ErrInvalidScenes = errors.New("invalid scene records")
)

// StepRecord is one cooking action produced by the instruction parser.
type StepRecord struct {
	StepNumber  int      `json:"step_number"`
	Action      string   `json:"action"`
	Ingredients []string `json:"ingredients"`
	Tools       []string `json:"tools"`
}

// SceneRecord is the visual prompt for one step, produced by the scene descriptor.
type SceneRecord struct {
	StepNumber       int      `json:"step_number"`
	SceneDescription string   `json:"scene_description"`
	KeyElements      []string `json:"key_elements"`
	ContinuityNotes  string   `json:"continuity_notes"`
}

// Ingredient is a line of a recipe's ingredient list.
type Ingredient struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity" describe:"amount with unit, empty if unspecified"`
	Notes    string `json:"notes" describe:"preparation notes, empty if none"`
}

// StepAction is one instruction of a schema-parsed recipe.
type StepAction struct {
	Action          string   `json:"action" describe:"short imperative verb phrase"`
	Details         string   `json:"details"`
	IngredientsUsed []string `json:"ingredients_used"`
	Tools           []string `json:"tools"`
}

// ParsedRecipe is the schema-checked form of a whole recipe document.
type ParsedRecipe struct {
	Title          string       `json:"title"`
	Yield          string       `json:"yield" describe:"servings or quantity produced"`
	Ingredients    []Ingredient `json:"ingredients"`
	Steps          []StepAction `json:"steps"`
	Notes          string       `json:"notes"`
	SourceFilename string       `json:"source_filename" describe:"leave empty"`
}

// Validate checks the minimum a parsed recipe needs to be useful downstream.
func (r *ParsedRecipe) Validate() error {
	if len(r.Steps) == 0 {
		return errors.New("recipe has no steps")
	}
	for i, s := range r.Steps {
		if s.Action == "" {
			return fmt.Errorf("recipe step %d has no action", i+1)
		}
	}
	return nil
}

// StepRecords numbers the recipe's steps from 1 so the recipe can feed the
// scene stage directly.
func (r *ParsedRecipe) StepRecords() []StepRecord {
	out := make([]StepRecord, 0, len(r.Steps))
	for i, s := range r.Steps {
		action := s.Action
		if s.Details != "" {
			action = s.Action + ": " + s.Details
		}
		out = append(out, StepRecord{
			StepNumber:  i + 1,
			Action:      action,
			Ingredients: s.IngredientsUsed,
			Tools:       s.Tools,
		})
	}
	return out
}
