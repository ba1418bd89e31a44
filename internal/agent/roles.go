package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/rahul/cookframe/internal/imaging"
	"github.com/rahul/cookframe/internal/recipe"
	"github.com/tmc/langchaingo/outputparser"
	"github.com/tmc/langchaingo/prompts"
	"golang.org/x/sync/errgroup"
)

// InstructionParser turns a recipe request into numbered steps.
type InstructionParser struct {
	Agent *Agent
}

func (p *InstructionParser) Parse(ctx context.Context, request string) ([]recipe.StepRecord, error) {
	raw, err := p.Agent.Invoke(ctx, request)
	if err != nil {
		return nil, err
	}
	steps, err := recipe.DecodeSteps(raw)
	if err != nil {
		return nil, fmt.Errorf("instruction parser output: %w", err)
	}
	if err := recipe.ValidateSteps(steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// SceneDescriptor writes one visual scene per step.
type SceneDescriptor struct {
	Agent *Agent
}

func (d *SceneDescriptor) Describe(ctx context.Context, steps []recipe.StepRecord) ([]recipe.SceneRecord, error) {
	raw, err := d.Agent.Invoke(ctx, recipe.RenderSteps(steps))
	if err != nil {
		return nil, err
	}
	scenes, err := recipe.DecodeScenes(raw)
	if err != nil {
		return nil, fmt.Errorf("scene descriptor output: %w", err)
	}
	return recipe.ValidateScenes(steps, scenes)
}

// DescribeText is Describe for steps that arrive as text, in JSON or field format.
func (d *SceneDescriptor) DescribeText(ctx context.Context, parsedSteps string) ([]recipe.SceneRecord, error) {
	steps, err := recipe.DecodeSteps(parsedSteps)
	if err != nil {
		return nil, fmt.Errorf("scene descriptor input: %w", err)
	}
	if err := recipe.ValidateSteps(steps); err != nil {
		return nil, err
	}
	return d.Describe(ctx, steps)
}

const recipeHumanTemplate = `Recipe text:
{{.document_text}}

Format instructions:
{{.format_instructions}}
`

// RecipeParser parses a whole recipe document into a schema-checked ParsedRecipe.
type RecipeParser struct {
	Agent              *Agent
	template           prompts.PromptTemplate
	formatInstructions string
}

func NewRecipeParser(a *Agent) (*RecipeParser, error) {
	defined, err := outputparser.NewDefined(recipe.ParsedRecipe{})
	if err != nil {
		return nil, fmt.Errorf("failed to build recipe schema: %w", err)
	}
	return &RecipeParser{
		Agent:              a,
		template:           prompts.NewPromptTemplate(recipeHumanTemplate, []string{"document_text", "format_instructions"}),
		formatInstructions: defined.GetFormatInstructions(),
	}, nil
}

func (p *RecipeParser) FormatInstructions() string {
	return p.formatInstructions
}

func (p *RecipeParser) Parse(ctx context.Context, text, sourceFilename string) (*recipe.ParsedRecipe, error) {
	human, err := p.template.Format(map[string]any{
		"document_text":       text,
		"format_instructions": p.formatInstructions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render recipe prompt: %w", err)
	}
	raw, err := p.Agent.Invoke(ctx, human)
	if err != nil {
		return nil, err
	}
	return recipe.DecodeParsedRecipe(raw, sourceFilename)
}

// ImageGenerator draws one step from its scene record.
type ImageGenerator struct {
	Backend           imaging.Backend
	SystemPrompt      string
	IncludeContinuity bool
}

// Prompt is the text sent to the image backend for a scene.
func (g *ImageGenerator) Prompt(scene recipe.SceneRecord) string {
	prompt := strings.TrimSpace(scene.SceneDescription)
	if !g.IncludeContinuity {
		return prompt
	}
	var extra []string
	if len(scene.KeyElements) > 0 {
		extra = append(extra, "Key elements: "+strings.Join(scene.KeyElements, ", "))
	}
	if notes := strings.TrimSpace(scene.ContinuityNotes); notes != "" {
		extra = append(extra, "Continuity notes: "+notes)
	}
	if len(extra) == 0 {
		return prompt
	}
	return prompt + "\n\n" + strings.Join(extra, "\n")
}

func (g *ImageGenerator) Generate(ctx context.Context, scene recipe.SceneRecord) (*imaging.Image, error) {
	res, err := g.Backend.GenerateImage(ctx, g.SystemPrompt, g.Prompt(scene))
	if err != nil {
		return nil, err
	}
	data, err := imaging.ExtractImage(res.Items)
	if err != nil {
		return nil, fmt.Errorf("step %d: %w", scene.StepNumber, err)
	}
	png, err := imaging.EnsurePNG(data)
	if err != nil {
		return nil, fmt.Errorf("step %d: %w", scene.StepNumber, err)
	}
	return &imaging.Image{StepNumber: scene.StepNumber, Data: png}, nil
}

// ConceptResult pairs a concept with the image prompt written for it.
type ConceptResult struct {
	Concept string
	Prompt  string
}

// ConceptPrompter writes photo-realistic image prompts for free-form concepts.
type ConceptPrompter struct {
	Agent *Agent
	// Limit caps concurrent model calls in Batch. Zero means no limit.
	Limit int
}

func (c *ConceptPrompter) Generate(ctx context.Context, concept string) (string, error) {
	out, err := c.Agent.Invoke(ctx, "Concept: "+concept)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Batch runs every concept concurrently. If any call fails the whole set is
// redone one at a time, where a failure only affects its own item.
func (c *ConceptPrompter) Batch(ctx context.Context, concepts []string) []ConceptResult {
	if len(concepts) <= 1 {
		return c.Sequential(ctx, concepts)
	}

	outs := make([]string, len(concepts))
	g, gctx := errgroup.WithContext(ctx)
	if c.Limit > 0 {
		g.SetLimit(c.Limit)
	}
	for i, concept := range concepts {
		g.Go(func() error {
			p, err := c.Generate(gctx, concept)
			if err != nil {
				return err
			}
			outs[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("[ConceptPrompter] batch processing error, falling back to sequential: %v", err)
		return c.Sequential(ctx, concepts)
	}

	results := make([]ConceptResult, len(concepts))
	for i, concept := range concepts {
		results[i] = ConceptResult{Concept: concept, Prompt: outs[i]}
	}
	return results
}

func (c *ConceptPrompter) Sequential(ctx context.Context, concepts []string) []ConceptResult {
	results := make([]ConceptResult, 0, len(concepts))
	for _, concept := range concepts {
		p, err := c.Generate(ctx, concept)
		if err != nil {
			p = fmt.Sprintf("Error generating prompt: %v", err)
		}
		results = append(results, ConceptResult{Concept: concept, Prompt: p})
	}
	return results
}
