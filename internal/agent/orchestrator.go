package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"
	"github.com/rahul/cookframe/internal/governance"
	"github.com/rahul/cookframe/internal/imaging"
	"github.com/rahul/cookframe/internal/ingest"
	"github.com/rahul/cookframe/internal/observability"
	"github.com/rahul/cookframe/internal/recipe"
	"github.com/rahul/cookframe/internal/store"
	"github.com/rahul/cookframe/internal/tools"
)

// State is where a pipeline run currently is.
type State string

const (
	StateIdle       State = "idle"
	StateParsing    State = "parsing_instructions"
	StateDescribing State = "describing_scenes"
	StateGenerating State = "generating_images"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// SceneSheetName is written to the output directory when Request.SceneSheet is set.
const SceneSheetName = "scenes.md"

// Request is one pipeline invocation. Input is resolved through ingest unless
// Source is already set. When Steps is set the parsing stage is skipped.
type Request struct {
	Input      string
	Source     *ingest.Source
	Steps      []recipe.StepRecord
	SceneSheet bool
}

// Result is what a run produced. On failure it still lists the images that
// were written before the failing stage.
type Result struct {
	RunID  string
	State  State
	Source *ingest.Source
	Steps  []recipe.StepRecord
	Scenes []recipe.SceneRecord
	Images []tools.ImageResult
}

// SourceResolver turns a raw request into recipe text.
type SourceResolver interface {
	Resolve(ctx context.Context, input string) (*ingest.Source, error)
}

// Orchestrator runs the parser, descriptor and image generator tools in a
// fixed order. Stages never overlap and images are generated one at a time.
type Orchestrator struct {
	Registry *tools.Registry
	Resolver SourceResolver
	Policy   governance.PolicyEngine
	Logger   *observability.Logger
	Store    *store.RunStore
	Status   *observability.Status
	// Progress receives one progress line per transition. Nil disables it.
	Progress io.Writer
}

func NewOrchestrator(registry *tools.Registry, resolver SourceResolver, policy governance.PolicyEngine, logger *observability.Logger) *Orchestrator {
	if policy == nil {
		policy = governance.NewDefaultPolicyEngine()
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Orchestrator{
		Registry: registry,
		Resolver: resolver,
		Policy:   policy,
		Logger:   logger,
		Status:   observability.NewStatus(),
	}
}

// run carries the mutable state of a single invocation.
type run struct {
	o     *Orchestrator
	id    string
	state State
	res   *Result
}

func (r *run) transition(to State) {
	r.o.Logger.LogStage(r.id, string(r.state), string(to))
	r.state = to
	r.res.State = to
	r.o.Status.SetStage(string(to))
	r.o.printProgress()
}

func (o *Orchestrator) printProgress() {
	if o.Progress != nil {
		observability.PrintProgress(o.Progress, o.Status)
	}
}

// Run executes the whole pipeline. The first error stops the run and is
// returned wrapped with the name of the stage it happened in.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	r := &run{o: o, id: uuid.NewString(), state: StateIdle}
	r.res = &Result{RunID: r.id, State: StateIdle}
	ctx = WithRunID(ctx, r.id)
	o.Status = observability.NewStatus()

	src := req.Source
	if src == nil {
		if o.Resolver == nil {
			return r.res, errors.New("no recipe source and no resolver configured")
		}
		resolved, err := o.Resolver.Resolve(ctx, req.Input)
		if err != nil {
			r.transition(StateFailed)
			return r.res, fmt.Errorf("resolving input: %w", err)
		}
		src = resolved
	}
	r.res.Source = src

	// The ledger entry is opened and closed even when ctx is already done.
	ledgerCtx := context.WithoutCancel(ctx)
	if o.Store != nil {
		if err := o.Store.StartRun(ledgerCtx, r.id, src.Name, string(src.Kind)); err != nil {
			log.Printf("[Orchestrator] failed to record run start: %v", err)
		}
	}

	err := r.execute(ctx, src, req)
	if err != nil {
		r.transition(StateFailed)
	} else {
		r.transition(StateDone)
	}

	if o.Store != nil {
		if ferr := o.Store.FinishRun(ledgerCtx, r.id, err); ferr != nil {
			log.Printf("[Orchestrator] failed to record run end: %v", ferr)
		}
	}
	return r.res, err
}

func (r *run) execute(ctx context.Context, src *ingest.Source, req Request) error {
	steps := req.Steps
	if len(steps) == 0 {
		r.transition(StateParsing)
		parsed, err := r.parse(ctx, src.Text)
		if err != nil {
			return fmt.Errorf("%s: %w", StateParsing, err)
		}
		steps = parsed
	} else if err := recipe.ValidateSteps(steps); err != nil {
		return fmt.Errorf("%s: %w", StateParsing, err)
	}
	r.res.Steps = steps
	r.recordSteps(ctx, steps, nil)

	r.transition(StateDescribing)
	scenes, err := r.describe(ctx, steps)
	if err != nil {
		return fmt.Errorf("%s: %w", StateDescribing, err)
	}
	r.res.Scenes = scenes
	r.recordSteps(ctx, nil, scenes)

	if req.SceneSheet {
		if err := r.writeSceneSheet(ctx, scenes); err != nil {
			return fmt.Errorf("%s: %w", StateDescribing, err)
		}
	}

	r.transition(StateGenerating)
	for i, scene := range scenes {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: step %d: %w", StateGenerating, scene.StepNumber, err)
		}
		r.o.Status.SetProgress(i+1, len(scenes))
		r.o.printProgress()

		img, err := r.generate(ctx, scene)
		if err != nil {
			return fmt.Errorf("%s: step %d: %w", StateGenerating, scene.StepNumber, err)
		}
		r.res.Images = append(r.res.Images, *img)
		r.o.Logger.LogImage(r.id, img.StepNumber, img.Path, img.Bytes)
		if r.o.Store != nil {
			entry := store.StepEntry{StepNumber: img.StepNumber, ImagePath: img.Path}
			if err := r.o.Store.RecordStep(ctx, r.id, entry); err != nil {
				log.Printf("[Orchestrator] failed to record image for step %d: %v", img.StepNumber, err)
			}
		}
	}
	return nil
}

func (r *run) parse(ctx context.Context, text string) ([]recipe.StepRecord, error) {
	out, err := r.callTool(ctx, tools.InstructionParserName, map[string]string{"query": text})
	if err != nil {
		return nil, err
	}
	steps, err := recipe.DecodeSteps(out)
	if err != nil {
		return nil, err
	}
	if err := recipe.ValidateSteps(steps); err != nil {
		return nil, err
	}
	return steps, nil
}

func (r *run) describe(ctx context.Context, steps []recipe.StepRecord) ([]recipe.SceneRecord, error) {
	out, err := r.callTool(ctx, tools.SceneDescriptorName, map[string]string{"parsed_steps": recipe.RenderSteps(steps)})
	if err != nil {
		return nil, err
	}
	scenes, err := recipe.DecodeScenes(out)
	if err != nil {
		return nil, err
	}
	return recipe.ValidateScenes(steps, scenes)
}

func (r *run) generate(ctx context.Context, scene recipe.SceneRecord) (*tools.ImageResult, error) {
	out, err := r.callTool(ctx, tools.ImageGeneratorName, scene)
	if err != nil {
		return nil, err
	}
	var img tools.ImageResult
	if err := json.Unmarshal([]byte(out), &img); err != nil {
		return nil, fmt.Errorf("unexpected image tool output: %w", err)
	}
	if img.Path == "" {
		return nil, imaging.ErrNoImageFound
	}
	return &img, nil
}

func (r *run) writeSceneSheet(ctx context.Context, scenes []recipe.SceneRecord) error {
	_, err := r.callTool(ctx, "filesystem", map[string]string{
		"command":  "write",
		"filename": SceneSheetName,
		"content":  recipe.RenderScenes(scenes),
	})
	return err
}

// callTool marshals args, checks them against the policy and executes the
// named tool.
func (r *run) callTool(ctx context.Context, name string, args any) (string, error) {
	input, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s arguments: %w", name, err)
	}

	res, err := governance.Enforce(ctx, r.o.Policy, governance.Request{
		Tool:      name,
		Arguments: string(input),
		RunID:     r.id,
	})
	r.o.Logger.LogPolicy(r.id, name, string(res.Effect), res.Reason)
	if err != nil {
		return "", err
	}

	r.o.Logger.LogToolCall(r.id, name, string(input))
	out, err := r.o.Registry.Call(ctx, name, string(input))
	r.o.Logger.LogToolResult(r.id, name, len(out), err)
	return out, err
}

func (r *run) recordSteps(ctx context.Context, steps []recipe.StepRecord, scenes []recipe.SceneRecord) {
	if r.o.Store == nil {
		return
	}
	var entries []store.StepEntry
	for _, s := range steps {
		entries = append(entries, store.StepEntry{StepNumber: s.StepNumber, Action: s.Action})
	}
	for _, s := range scenes {
		entries = append(entries, store.StepEntry{StepNumber: s.StepNumber, SceneDescription: s.SceneDescription})
	}
	for _, e := range entries {
		if err := r.o.Store.RecordStep(ctx, r.id, e); err != nil {
			log.Printf("[Orchestrator] failed to record step %d: %v", e.StepNumber, err)
		}
	}
}
