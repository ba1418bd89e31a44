package agent

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rahul/cookframe/internal/governance"
	"github.com/rahul/cookframe/internal/imaging"
	"github.com/rahul/cookframe/internal/ingest"
	"github.com/rahul/cookframe/internal/observability"
	"github.com/rahul/cookframe/internal/recipe"
	"github.com/rahul/cookframe/internal/store"
	"github.com/rahul/cookframe/internal/tools"
	"github.com/tmc/langchaingo/llms/fake"
)

const (
	parserReply = `[{"step_number":1,"action":"Boil salted water","ingredients":["water","salt"],"tools":["pot"]},` +
		`{"step_number":2,"action":"Cook the spaghetti","ingredients":["spaghetti"],"tools":["pot"]},` +
		`{"step_number":3,"action":"Drain and plate","ingredients":[],"tools":["colander","plate"]}]`

	descriptorReply = "- step_number: 1\n- scene_description: A steel pot of water on a gas flame\n- key_elements: pot, flame\n- continuity_notes: steel pot on the left burner\n\n" +
		"- step_number: 2\n- scene_description: Spaghetti fanning out in the boiling pot\n- key_elements: spaghetti, pot\n- continuity_notes: same steel pot\n\n" +
		"- step_number: 3\n- scene_description: Steaming spaghetti on a white plate\n- key_elements: colander, plate\n- continuity_notes: same spaghetti\n"
)

type pipeline struct {
	orch    *Orchestrator
	ws      *tools.Workspace
	backend *pngBackend
	runs    *store.RunStore
	events  *bytes.Buffer
}

func newPipeline(t *testing.T, parser, descriptor string, policy governance.PolicyEngine) *pipeline {
	t.Helper()

	runs, err := store.NewRunStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewRunStore failed: %v", err)
	}
	t.Cleanup(func() { runs.Close() })

	events := &bytes.Buffer{}
	logger := observability.NewLogger("")
	logger.SetOutput(events)

	parserAgent := NewAgent(RoleInstructionParser, "parse", fake.NewFakeLLM([]string{parser}))
	parserAgent.Recorder = runs
	descAgent := NewAgent(RoleSceneDescriptor, "describe", fake.NewFakeLLM([]string{descriptor}))

	ws := tools.NewWorkspace(t.TempDir())
	backend := &pngBackend{}
	registry := tools.NewRegistry()
	registry.Register(&tools.InstructionParserTool{Parser: &InstructionParser{Agent: parserAgent}})
	registry.Register(&tools.SceneDescriptorTool{Descriptor: &SceneDescriptor{Agent: descAgent}})
	registry.Register(&tools.ImageGeneratorTool{
		Generator: &ImageGenerator{Backend: backend, IncludeContinuity: true},
		Workspace: ws,
	})
	registry.Register(tools.NewFilesystemTool(ws))

	orch := NewOrchestrator(registry, ingest.NewResolver(nil), policy, logger)
	orch.Store = runs
	return &pipeline{orch: orch, ws: ws, backend: backend, runs: runs, events: events}
}

func TestOrchestrator_Run(t *testing.T) {
	p := newPipeline(t, parserReply, descriptorReply, nil)
	var progress bytes.Buffer
	p.orch.Progress = &progress

	res, err := p.orch.Run(context.Background(), Request{
		Input:      "Boil water.\nCook spaghetti.\nDrain and plate.",
		SceneSheet: true,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.State != StateDone {
		t.Errorf("expected state done, got %s", res.State)
	}
	if res.Source.Kind != ingest.KindText {
		t.Errorf("expected text source, got %s", res.Source.Kind)
	}
	if len(res.Steps) != 3 || len(res.Scenes) != 3 || len(res.Images) != 3 {
		t.Fatalf("unexpected result sizes: %d steps, %d scenes, %d images", len(res.Steps), len(res.Scenes), len(res.Images))
	}

	for i, img := range res.Images {
		if img.StepNumber != i+1 {
			t.Errorf("image %d has step %d", i, img.StepNumber)
		}
		want := filepath.Join(p.ws.Root, imaging.StepFilename(i+1))
		if img.Path != want {
			t.Errorf("image path = %s, want %s", img.Path, want)
		}
		if _, err := os.Stat(want); err != nil {
			t.Errorf("missing %s: %v", want, err)
		}
	}

	if len(p.backend.prompts) != 3 || !strings.Contains(p.backend.prompts[1], "Continuity notes: same steel pot") {
		t.Errorf("unexpected image prompts: %q", p.backend.prompts)
	}

	sheet, err := p.ws.ReadFile(SceneSheetName)
	if err != nil {
		t.Fatalf("scene sheet not written: %v", err)
	}
	if scenes, err := recipe.ReadScenes(string(sheet)); err != nil || len(scenes) != 3 {
		t.Errorf("scene sheet does not read back: %v", err)
	}

	run, entries, err := p.runs.GetRun(context.Background(), res.RunID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Status != store.StatusDone || len(entries) != 3 {
		t.Errorf("unexpected ledger state: %+v, %d steps", run, len(entries))
	}
	if entries[2].Action != "Drain and plate" || entries[2].SceneDescription == "" || entries[2].ImagePath == "" {
		t.Errorf("step entry not fully recorded: %+v", entries[2])
	}

	transcript, err := p.runs.GetTranscript(context.Background(), res.RunID, RoleInstructionParser)
	if err != nil || len(transcript) != 2 {
		t.Errorf("expected parser transcript of 2 messages, got %d (%v)", len(transcript), err)
	}

	if !strings.Contains(progress.String(), "[generating_images]") || !strings.Contains(progress.String(), "3/3") {
		t.Errorf("unexpected progress output: %q", progress.String())
	}
	for _, evt := range []string{`"type":"stage"`, `"type":"policy_check"`, `"type":"tool_call"`, `"type":"image"`} {
		if !strings.Contains(p.events.String(), evt) {
			t.Errorf("missing %s event", evt)
		}
	}
}

func TestOrchestrator_RunDishName(t *testing.T) {
	parser := `[{"step_number":1,"action":"Boil salted water","ingredients":["water","salt"],"tools":["pot"]},` +
		`{"step_number":2,"action":"Cook the spaghetti until al dente","ingredients":["spaghetti"],"tools":["pot"]},` +
		`{"step_number":3,"action":"Fry the guanciale until crisp","ingredients":["guanciale"],"tools":["pan"]},` +
		`{"step_number":4,"action":"Whisk eggs with pecorino and pepper","ingredients":["eggs","pecorino","black pepper"],"tools":["bowl","whisk"]},` +
		`{"step_number":5,"action":"Toss pasta with guanciale and egg off the heat","ingredients":[],"tools":["pan","tongs"]}]`
	descriptor := "```json\n[" +
		`{"step_number":1,"scene_description":"A steel pot of salted water on a gas flame","key_elements":["pot"],"continuity_notes":""},` +
		`{"step_number":2,"scene_description":"Spaghetti bending into the boiling pot","key_elements":["spaghetti","pot"],"continuity_notes":"same pot"},` +
		`{"step_number":3,"scene_description":"Golden guanciale sizzling in a black pan","key_elements":["guanciale","pan"],"continuity_notes":""},` +
		`{"step_number":4,"scene_description":"Yellow egg and pecorino mixture in a glass bowl","key_elements":["bowl","whisk"],"continuity_notes":""},` +
		`{"step_number":5,"scene_description":"Creamy carbonara tossed with tongs in the pan","key_elements":["pan","tongs"],"continuity_notes":"same black pan"}` +
		"]\n```"
	p := newPipeline(t, parser, descriptor, nil)
	p.backend.jpeg = map[string]bool{"Golden guanciale": true}

	res, err := p.orch.Run(context.Background(), Request{Input: "Spaghetti Carbonara"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Source.Kind != ingest.KindDish || res.Source.Name != "Spaghetti Carbonara" {
		t.Errorf("unexpected source: %+v", res.Source)
	}
	if len(res.Steps) < 4 {
		t.Fatalf("expected at least 4 steps, got %d", len(res.Steps))
	}
	if len(res.Scenes) != len(res.Steps) || len(res.Images) != len(res.Steps) {
		t.Fatalf("%d steps, %d scenes, %d images", len(res.Steps), len(res.Scenes), len(res.Images))
	}

	signature := []byte("\x89PNG\r\n\x1a\n")
	for i, step := range res.Steps {
		if res.Scenes[i].StepNumber != step.StepNumber {
			t.Errorf("scene %d describes step %d", i, res.Scenes[i].StepNumber)
		}
		path := filepath.Join(p.ws.Root, imaging.StepFilename(step.StepNumber))
		data, err := os.ReadFile(path)
		if err != nil {
			t.Errorf("step %d: %v", step.StepNumber, err)
			continue
		}
		if !bytes.HasPrefix(data, signature) {
			t.Errorf("%s is not a PNG: % x", path, data[:min(len(data), 8)])
		}
		if res.Images[i].Bytes != len(data) {
			t.Errorf("step %d reported %d bytes, file has %d", step.StepNumber, res.Images[i].Bytes, len(data))
		}
	}
}

func TestOrchestrator_PreparsedSteps(t *testing.T) {
	p := newPipeline(t, "unused", descriptorReply, nil)
	steps := []recipe.StepRecord{
		{StepNumber: 1, Action: "Boil salted water"},
		{StepNumber: 2, Action: "Cook the spaghetti"},
		{StepNumber: 3, Action: "Drain and plate"},
	}

	res, err := p.orch.Run(context.Background(), Request{
		Source: &ingest.Source{Kind: ingest.KindFile, Name: "spaghetti.pdf"},
		Steps:  steps,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Images) != 3 {
		t.Errorf("expected 3 images, got %d", len(res.Images))
	}
	if strings.Contains(p.events.String(), tools.InstructionParserName) {
		t.Error("parser tool should not be called for pre-parsed steps")
	}
}

func TestOrchestrator_StageFailures(t *testing.T) {
	t.Run("unparsable parser output", func(t *testing.T) {
		p := newPipeline(t, "Sorry, I can't help with that.", descriptorReply, nil)
		res, err := p.orch.Run(context.Background(), Request{Input: "Boil water.\nEat."})
		if !errors.Is(err, recipe.ErrNoParsableOutput) {
			t.Fatalf("expected ErrNoParsableOutput, got %v", err)
		}
		if !strings.HasPrefix(err.Error(), string(StateParsing)) {
			t.Errorf("error not tagged with stage: %v", err)
		}
		if res.State != StateFailed || len(res.Images) != 0 {
			t.Errorf("unexpected result: %+v", res)
		}
		run, _, _ := p.runs.GetRun(context.Background(), res.RunID)
		if run == nil || run.Status != store.StatusFailed || run.Error == "" {
			t.Errorf("ledger should record the failure: %+v", run)
		}
	})

	t.Run("scene for unknown step", func(t *testing.T) {
		bad := strings.Replace(descriptorReply, "- step_number: 3", "- step_number: 4", 1)
		p := newPipeline(t, parserReply, bad, nil)
		_, err := p.orch.Run(context.Background(), Request{Input: "Boil water.\nEat."})
		if !errors.Is(err, recipe.ErrInvalidScenes) || !strings.HasPrefix(err.Error(), string(StateDescribing)) {
			t.Fatalf("expected ErrInvalidScenes from describing stage, got %v", err)
		}
	})

	t.Run("image failure keeps earlier images", func(t *testing.T) {
		p := newPipeline(t, parserReply, descriptorReply, nil)
		p.backend.fail = map[string]bool{"Spaghetti fanning out": true}

		res, err := p.orch.Run(context.Background(), Request{Input: "Boil water.\nEat."})
		if !errors.Is(err, imaging.ErrNoImageFound) {
			t.Fatalf("expected ErrNoImageFound, got %v", err)
		}
		if !strings.Contains(err.Error(), "step 2") {
			t.Errorf("error should name the step: %v", err)
		}
		if len(res.Images) != 1 || res.Images[0].StepNumber != 1 {
			t.Errorf("expected only step 1 image, got %+v", res.Images)
		}
		if _, err := os.Stat(filepath.Join(p.ws.Root, imaging.StepFilename(1))); err != nil {
			t.Errorf("step 1 image should stay on disk: %v", err)
		}
		if _, err := os.Stat(filepath.Join(p.ws.Root, imaging.StepFilename(3))); !os.IsNotExist(err) {
			t.Error("step 3 should never be attempted")
		}
		if len(p.backend.prompts) != 2 {
			t.Errorf("expected 2 backend calls, got %d", len(p.backend.prompts))
		}
	})

	t.Run("policy denies image prompt", func(t *testing.T) {
		policy, err := governance.NewPolicyEngine(nil, []string{`(?i)gas flame`})
		if err != nil {
			t.Fatal(err)
		}
		p := newPipeline(t, parserReply, descriptorReply, policy)
		res, err := p.orch.Run(context.Background(), Request{Input: "Boil water.\nEat."})
		if !errors.Is(err, governance.ErrPolicyDenied) {
			t.Fatalf("expected ErrPolicyDenied, got %v", err)
		}
		if len(p.backend.prompts) != 0 || len(res.Images) != 0 {
			t.Error("denied call must not reach the backend")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		p := newPipeline(t, parserReply, descriptorReply, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res, err := p.orch.Run(ctx, Request{Input: "Boil water.\nEat."})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		run, _, _ := p.runs.GetRun(context.Background(), res.RunID)
		if run == nil || run.Status != store.StatusFailed {
			t.Errorf("cancelled run should be closed as failed: %+v", run)
		}
	})
}
