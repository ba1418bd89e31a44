package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/rahul/cookframe/internal/imaging"
	"github.com/rahul/cookframe/internal/observability"
	"github.com/rahul/cookframe/internal/recipe"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/fake"
)

// funcModel answers through reply and remembers every request. It is safe for
// concurrent use.
type funcModel struct {
	mu    sync.Mutex
	reply func(input string) (string, error)
	info  map[string]any
	seen  [][]llms.MessageContent
}

func (m *funcModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	m.seen = append(m.seen, messages)
	m.mu.Unlock()

	last := messages[len(messages)-1]
	input := fmt.Sprint(last.Parts[0])
	if tp, ok := last.Parts[0].(llms.TextContent); ok {
		input = tp.Text
	}
	out, err := m.reply(input)
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: out, GenerationInfo: m.info}},
	}, nil
}

func (m *funcModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

type memRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *memRecorder) AddMessage(ctx context.Context, runID, agent, role, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, runID+"|"+agent+"|"+role+"|"+content)
	return nil
}

// pngBackend returns a one pixel PNG as a data URL, or a JPEG when the
// prompt contains one of the jpeg markers.
type pngBackend struct {
	mu      sync.Mutex
	prompts []string
	fail    map[string]bool
	jpeg    map[string]bool
}

func (b *pngBackend) GenerateImage(ctx context.Context, system, prompt string) (*imaging.ImageResponse, error) {
	b.mu.Lock()
	b.prompts = append(b.prompts, prompt)
	b.mu.Unlock()
	for marker := range b.fail {
		if strings.Contains(prompt, marker) {
			return &imaging.ImageResponse{Items: []imaging.ContentItem{{Type: "text", Text: "I cannot draw that"}}}, nil
		}
	}
	url := imaging.DataURL("image/png", tinyPNG())
	for marker := range b.jpeg {
		if strings.Contains(prompt, marker) {
			url = imaging.DataURL("image/jpeg", tinyJPEG())
		}
	}
	return &imaging.ImageResponse{Items: []imaging.ContentItem{
		{Type: "text", Text: "Here is your image"},
		{Type: "image_url", ImageURL: &imaging.ImageURL{URL: url}},
	}}, nil
}

func tinyPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 200, G: 120, B: 40, A: 255})
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

func tinyJPEG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 240, G: 220, B: 180, A: 255})
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}

func TestAgent_Invoke(t *testing.T) {
	model := &funcModel{
		reply: func(in string) (string, error) { return "echo: " + in, nil },
		info:  map[string]any{"InputTokens": 12, "OutputTokens": 5},
	}
	var events bytes.Buffer
	logger := observability.NewLogger("")
	logger.SetOutput(&events)
	rec := &memRecorder{}

	a := NewAgent(RoleInstructionParser, "You parse recipes.", model)
	a.Logger = logger
	a.Recorder = rec
	a.ModelName = "test-model"

	ctx := WithRunID(context.Background(), "run-1")
	out, err := a.Invoke(ctx, "pancakes")
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if out != "echo: pancakes" {
		t.Errorf("unexpected output %q", out)
	}

	msgs := model.seen[0]
	if len(msgs) != 2 || msgs[0].Role != llms.ChatMessageTypeSystem || msgs[1].Role != llms.ChatMessageTypeHuman {
		t.Fatalf("unexpected messages: %+v", msgs)
	}

	logged := events.String()
	if !strings.Contains(logged, `"type":"llm"`) || !strings.Contains(logged, `"total_tokens":17`) {
		t.Errorf("missing llm or cost events: %s", logged)
	}
	if len(rec.msgs) != 2 || rec.msgs[0] != "run-1|instruction_parser|human|pancakes" {
		t.Errorf("unexpected transcript: %v", rec.msgs)
	}
}

func TestAgent_InvokeErrors(t *testing.T) {
	failing := &funcModel{reply: func(string) (string, error) { return "", errors.New("rate limited") }}
	a := NewAgent("scene_descriptor", "", failing)
	if _, err := a.Invoke(context.Background(), "x"); err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("expected wrapped model error, got %v", err)
	}

	empty := NewAgent("scene_descriptor", "", fake.NewFakeLLM(nil))
	if _, err := empty.Invoke(context.Background(), "x"); err == nil {
		t.Error("expected error from model without responses")
	}
}

func TestTokenCounts(t *testing.T) {
	tests := []struct {
		info    map[string]any
		in, out int
		ok      bool
	}{
		{map[string]any{"InputTokens": 3, "OutputTokens": 4}, 3, 4, true},
		{map[string]any{"PromptTokens": int64(7), "CompletionTokens": float64(2)}, 7, 2, true},
		{map[string]any{"StopReason": "end_turn"}, 0, 0, false},
		{nil, 0, 0, false},
	}
	for _, tt := range tests {
		in, out, ok := tokenCounts(tt.info)
		if in != tt.in || out != tt.out || ok != tt.ok {
			t.Errorf("tokenCounts(%v) = %d, %d, %v", tt.info, in, out, ok)
		}
	}
}

func TestInstructionParser_Parse(t *testing.T) {
	fieldFormat := "**Step 1**\n- step_number: 1\n- action: Boil water\n- ingredients: water, salt\n- tools: pot\n\n- step_number: 2\n- action: Cook pasta\n- ingredients: spaghetti\n- tools: none\n"
	p := &InstructionParser{Agent: NewAgent(RoleInstructionParser, "", fake.NewFakeLLM([]string{fieldFormat}))}

	steps, err := p.Parse(context.Background(), "spaghetti")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(steps) != 2 || steps[1].Action != "Cook pasta" || len(steps[0].Ingredients) != 2 {
		t.Errorf("unexpected steps: %+v", steps)
	}
	if steps[1].Tools != nil {
		t.Errorf("expected no tools for step 2, got %v", steps[1].Tools)
	}

	bad := &InstructionParser{Agent: NewAgent(RoleInstructionParser, "", fake.NewFakeLLM([]string{"I am not sure what you mean."}))}
	if _, err := bad.Parse(context.Background(), "?"); !errors.Is(err, recipe.ErrNoParsableOutput) {
		t.Errorf("expected ErrNoParsableOutput, got %v", err)
	}

	gap := &InstructionParser{Agent: NewAgent(RoleInstructionParser, "", fake.NewFakeLLM([]string{`[{"step_number":1,"action":"a"},{"step_number":3,"action":"b"}]`}))}
	if _, err := gap.Parse(context.Background(), "?"); !errors.Is(err, recipe.ErrInvalidSteps) {
		t.Errorf("expected ErrInvalidSteps, got %v", err)
	}
}

func TestSceneDescriptor_Describe(t *testing.T) {
	steps := []recipe.StepRecord{
		{StepNumber: 1, Action: "Boil water", Tools: []string{"pot"}},
		{StepNumber: 2, Action: "Cook pasta"},
	}
	model := &funcModel{reply: func(in string) (string, error) {
		if !strings.Contains(in, "- action: Boil water") {
			return "", fmt.Errorf("descriptor did not receive rendered steps: %q", in)
		}
		return "Here you go:\n```json\n[" +
			`{"step_number":2,"scene_description":"Pasta swirls in the pot","key_elements":["pasta"],"continuity_notes":"same pot"},` +
			`{"step_number":1,"scene_description":"A steel pot on a gas flame","key_elements":["pot","flame"],"continuity_notes":""}` +
			"]\n```", nil
	}}
	d := &SceneDescriptor{Agent: NewAgent(RoleSceneDescriptor, "", model)}

	scenes, err := d.Describe(context.Background(), steps)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if len(scenes) != 2 || scenes[0].StepNumber != 1 || scenes[1].StepNumber != 2 {
		t.Errorf("scenes not ordered by step: %+v", scenes)
	}

	if _, err := d.DescribeText(context.Background(), recipe.RenderSteps(steps)); err != nil {
		t.Errorf("DescribeText failed: %v", err)
	}

	missing := &SceneDescriptor{Agent: NewAgent(RoleSceneDescriptor, "", fake.NewFakeLLM([]string{
		`[{"step_number":1,"scene_description":"A pot"}]`,
	}))}
	if _, err := missing.Describe(context.Background(), steps); !errors.Is(err, recipe.ErrInvalidScenes) {
		t.Errorf("expected ErrInvalidScenes, got %v", err)
	}
}

func TestRecipeParser_Parse(t *testing.T) {
	var got string
	model := &funcModel{reply: func(in string) (string, error) {
		got = in
		return "Sure! {\"title\":\"Toast\",\"yield\":\"1 slice\",\"ingredients\":[{\"name\":\"bread\",\"quantity\":\"1 slice\"}]," +
			"\"steps\":[{\"action\":\"Toast bread\",\"details\":\"until golden\",\"tools\":[\"toaster\"]}],\"notes\":\"\"} Enjoy.", nil
	}}
	p, err := NewRecipeParser(NewAgent(RoleRecipeParser, "", model))
	if err != nil {
		t.Fatalf("NewRecipeParser failed: %v", err)
	}
	if !strings.Contains(p.FormatInstructions(), "title") {
		t.Errorf("format instructions do not describe the schema: %s", p.FormatInstructions())
	}

	r, err := p.Parse(context.Background(), "Toast the bread until golden.", "toast.txt")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !strings.Contains(got, "Toast the bread until golden.") {
		t.Errorf("document text missing from prompt: %q", got)
	}
	if r.Title != "Toast" || r.SourceFilename != "toast.txt" || len(r.Steps) != 1 {
		t.Errorf("unexpected recipe: %+v", r)
	}

	noJSON, _ := NewRecipeParser(NewAgent(RoleRecipeParser, "", fake.NewFakeLLM([]string{"no recipe here"})))
	if _, err := noJSON.Parse(context.Background(), "x", "x.txt"); !errors.Is(err, recipe.ErrNoValidJSON) {
		t.Errorf("expected ErrNoValidJSON, got %v", err)
	}
}

func TestImageGenerator(t *testing.T) {
	scene := recipe.SceneRecord{
		StepNumber:       3,
		SceneDescription: "Golden toast on a plate",
		KeyElements:      []string{"toast", "plate"},
		ContinuityNotes:  "same white plate",
	}

	g := &ImageGenerator{Backend: &pngBackend{}, IncludeContinuity: true}
	prompt := g.Prompt(scene)
	if !strings.Contains(prompt, "Key elements: toast, plate") || !strings.Contains(prompt, "Continuity notes: same white plate") {
		t.Errorf("unexpected prompt: %q", prompt)
	}
	g.IncludeContinuity = false
	if g.Prompt(scene) != "Golden toast on a plate" {
		t.Errorf("continuity should be left out: %q", g.Prompt(scene))
	}

	img, err := g.Generate(context.Background(), scene)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if img.StepNumber != 3 || !bytes.HasPrefix(img.Data, []byte("\x89PNG")) {
		t.Errorf("unexpected image: step %d, %d bytes", img.StepNumber, len(img.Data))
	}

	refusing := &ImageGenerator{Backend: &pngBackend{fail: map[string]bool{"toast": true}}}
	if _, err := refusing.Generate(context.Background(), scene); !errors.Is(err, imaging.ErrNoImageFound) {
		t.Errorf("expected ErrNoImageFound, got %v", err)
	}
}

func TestConceptPrompter_Batch(t *testing.T) {
	model := &funcModel{reply: func(in string) (string, error) {
		return "A photo of " + strings.TrimPrefix(in, "Concept: "), nil
	}}
	c := &ConceptPrompter{Agent: NewAgent(RoleConceptPrompter, "", model), Limit: 2}

	concepts := []string{"lemon tart", "ramen", "paella", "bao"}
	results := c.Batch(context.Background(), concepts)
	if len(results) != len(concepts) {
		t.Fatalf("expected %d results, got %d", len(concepts), len(results))
	}
	for i, r := range results {
		if r.Concept != concepts[i] || r.Prompt != "A photo of "+concepts[i] {
			t.Errorf("result %d = %+v", i, r)
		}
	}
}

func TestConceptPrompter_FallsBackToSequential(t *testing.T) {
	model := &funcModel{reply: func(in string) (string, error) {
		if strings.Contains(in, "burnt") {
			return "", errors.New("content filtered")
		}
		return "ok", nil
	}}
	c := &ConceptPrompter{Agent: NewAgent(RoleConceptPrompter, "", model)}

	results := c.Batch(context.Background(), []string{"fresh bread", "burnt bread", "soup"})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Prompt != "ok" || results[2].Prompt != "ok" {
		t.Errorf("healthy items should still succeed: %+v", results)
	}
	if !strings.HasPrefix(results[1].Prompt, "Error generating prompt: ") || !strings.Contains(results[1].Prompt, "content filtered") {
		t.Errorf("unexpected error text: %q", results[1].Prompt)
	}
}
