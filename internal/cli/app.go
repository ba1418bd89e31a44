package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/rahul/cookframe/internal/agent"
	"github.com/rahul/cookframe/internal/governance"
	"github.com/rahul/cookframe/internal/ingest"
	"github.com/rahul/cookframe/internal/observability"
	"github.com/rahul/cookframe/internal/store"
	"github.com/rahul/cookframe/internal/tools"
	"github.com/rahul/cookframe/pkg/config"
)

// app holds what every command shares: configuration, logging and the run ledger.
type app struct {
	cfg     *config.Config
	logger  *observability.Logger
	prompts *agent.PromptManager
	runs    *store.RunStore
}

// loadQuiet loads the configuration without printing anything.
func loadQuiet() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func newApp(outputDir string) (*app, error) {
	cfg, err := loadQuiet()
	if err != nil {
		return nil, err
	}
	if outputDir != "" {
		cfg.App.OutputDir = outputDir
	}

	if cfg.Logging.Banner {
		observability.PrintBanner(os.Stdout)
	}

	logger := observability.NewLogger(cfg.Logging.Dir)
	if !cfg.Logging.Events {
		logger.SetOutput(io.Discard)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		prompts: agent.NewPromptManager(cfg.App.PromptDir),
	}
	if cfg.Memory.Type == "sqlite" && cfg.Memory.Path != "" {
		runs, err := store.NewRunStore(cfg.Memory.Path)
		if err != nil {
			return nil, fmt.Errorf("opening run store: %w", err)
		}
		a.runs = runs
	}
	return a, nil
}

func (a *app) close() {
	if a.runs != nil {
		if err := a.runs.Close(); err != nil {
			log.Printf("failed to close run store: %v", err)
		}
	}
}

func (a *app) roleAgent(role string, ac config.AgentConfig) (*agent.Agent, error) {
	ag, err := agent.NewRoleAgent(a.cfg, role, ac, a.prompts)
	if err != nil {
		return nil, err
	}
	ag.Logger = a.logger
	if a.runs != nil {
		ag.Recorder = a.runs
	}
	return ag, nil
}

// orchestrator wires the three pipeline agents into tools and returns an
// orchestrator writing to the configured output directory.
func (a *app) orchestrator(ctx context.Context) (*agent.Orchestrator, error) {
	parser, err := a.roleAgent(agent.RoleInstructionParser, a.cfg.Agents.InstructionParser)
	if err != nil {
		return nil, err
	}
	descriptor, err := a.roleAgent(agent.RoleSceneDescriptor, a.cfg.Agents.SceneDescriptor)
	if err != nil {
		return nil, err
	}
	backend, err := agent.NewImageBackend(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	imageSystem, err := a.prompts.Get(agent.RoleImageGenerator)
	if err != nil {
		return nil, err
	}

	ws := tools.NewWorkspace(a.cfg.App.OutputDir)
	registry := tools.NewRegistry()
	registry.Register(&tools.InstructionParserTool{Parser: &agent.InstructionParser{Agent: parser}})
	registry.Register(&tools.SceneDescriptorTool{Descriptor: &agent.SceneDescriptor{Agent: descriptor}})
	registry.Register(&tools.ImageGeneratorTool{
		Generator: &agent.ImageGenerator{
			Backend:           backend,
			SystemPrompt:      imageSystem,
			IncludeContinuity: a.cfg.Image.IncludeContinuity,
		},
		Workspace: ws,
	})
	registry.Register(tools.NewFilesystemTool(ws))

	var searcher *ingest.Searcher
	if a.cfg.Search.Enabled {
		searcher, err = ingest.NewSearcher(a.cfg.Search.MaxResults)
		if err != nil {
			log.Printf("Warning: Failed to initialize search: %v", err)
		}
	}

	policy, err := governance.NewPolicyEngine(a.cfg.Policy.DenyTools, a.cfg.Policy.DenyPatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	orch := agent.NewOrchestrator(registry, ingest.NewResolver(searcher), policy, a.logger)
	orch.Store = a.runs
	orch.Progress = os.Stdout
	return orch, nil
}

// runPipeline runs req and prints what was written.
func (a *app) runPipeline(ctx context.Context, out io.Writer, req agent.Request) error {
	orch, err := a.orchestrator(ctx)
	if err != nil {
		return err
	}
	res, err := orch.Run(ctx, req)
	if res != nil {
		for _, img := range res.Images {
			fmt.Fprintf(out, "step %d: %s (%d bytes)\n", img.StepNumber, img.Path, img.Bytes)
		}
	}
	if err != nil {
		if res != nil && len(res.Images) > 0 {
			fmt.Fprintf(out, "run %s stopped after %d image(s)\n", res.RunID, len(res.Images))
		}
		return err
	}
	fmt.Fprintf(out, "run %s: %d step image(s) written to %s\n", res.RunID, len(res.Images), a.cfg.App.OutputDir)
	return nil
}
