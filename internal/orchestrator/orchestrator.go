package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/patchpilot/patchpilot/internal/config"
	"github.com/patchpilot/patchpilot/internal/gitops"
	"github.com/patchpilot/patchpilot/internal/llm"
	"github.com/patchpilot/patchpilot/internal/observability"
	"github.com/patchpilot/patchpilot/internal/sandbox"
	"github.com/patchpilot/patchpilot/internal/semantic"
	"github.com/patchpilot/patchpilot/internal/stream"
	"github.com/patchpilot/patchpilot/internal/telemetry"
	"github.com/patchpilot/patchpilot/internal/tools"
)

// Options wires an Orchestrator's collaborators.
type Options struct {
	Config    config.OrchestratorConfig
	Factory   sandbox.Factory
	Registry  *llm.Registry
	Publisher *gitops.Publisher
	Engine    *semantic.Engine
	Sink      telemetry.Sink
	Metrics   *observability.Metrics
	Logger    *zap.Logger
	Model     string
}

// Orchestrator drives one coding session from request to pull request:
// provision, clone, bounded reasoning turns, verification, publication.
type Orchestrator struct {
	cfg       config.OrchestratorConfig
	factory   sandbox.Factory
	registry  *llm.Registry
	publisher *gitops.Publisher
	engine    *semantic.Engine
	sink      telemetry.Sink
	metrics   *observability.Metrics
	logger    *zap.Logger
	model     string
}

// New builds an orchestrator. Sink and Logger default to no-ops;
// Metrics may be nil.
func New(opts Options) *Orchestrator {
	sink := opts.Sink
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:       opts.Config,
		factory:   opts.Factory,
		registry:  opts.Registry,
		publisher: opts.Publisher,
		engine:    opts.Engine,
		sink:      sink,
		metrics:   opts.Metrics,
		logger:    logger,
		model:     opts.Model,
	}
}

// Run executes one session, emitting ordered progress events. It owns
// the emitter and closes it when the stream ends; the environment is
// always torn down, including on panic paths through runtime errors.
func (o *Orchestrator) Run(ctx context.Context, req Request, emitter *stream.Emitter) Summary {
	defer emitter.Close()
	start := time.Now()
	emit := func(ev stream.Event) { emitter.Emit(ctx, ev) }

	summary := o.run(ctx, req, emit)

	outcome := summary.Outcome
	o.metrics.RecordSession(outcome, time.Since(start), summary.Turns)
	o.sink.Record("session.finished", map[string]any{
		"outcome":     outcome,
		"turns":       summary.Turns,
		"files":       len(summary.Changes),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return summary
}

func (o *Orchestrator) run(ctx context.Context, req Request, emit sandbox.EmitFunc) Summary {
	summary := Summary{Outcome: "failed", Phase: PhaseInit}

	if err := req.Validate(); err != nil {
		emit(stream.Error(err.Error()))
		summary.Err = err
		return summary
	}

	emit(stream.Status("starting coding session", map[string]any{
		"repo": req.RepoURL,
	}))
	o.sink.Record("session.started", map[string]any{"repo": req.RepoURL})

	env, err := o.factory.Create(ctx, req.RepoURL)
	if err != nil {
		o.metrics.RecordProvisioning(string(o.factory.Backing()), "error")
		return o.fail(summary, emit, "provision environment", err)
	}
	o.metrics.RecordProvisioning(string(env.Backing()), "ok")
	emit(stream.Event{
		Type:      stream.KindSandbox,
		Message:   fmt.Sprintf("provisioned %s environment", env.Backing()),
		Workspace: env.ID(),
	})
	defer func() {
		if terr := env.Terminate(); terr != nil {
			o.logger.Warn("environment teardown failed",
				zap.String("workspace", env.ID()),
				zap.Error(terr))
		}
	}()

	if err := env.Clone(ctx, req.RepoURL, emit); err != nil {
		return o.fail(summary, emit, "clone repository", err)
	}

	summary.Phase = PhaseAnalyzing
	emit(analyzeRepository(ctx, env))

	ranked, err := o.engine.Rank(ctx, env, req.Prompt, o.cfg.MaxContextFiles)
	if err != nil {
		// Ranking is best effort; the session continues on bare prompt.
		o.logger.Debug("context ranking unavailable", zap.Error(err))
	}
	if len(ranked) > 0 {
		names := make([]string, len(ranked))
		for i, r := range ranked {
			names[i] = r.Path
		}
		emit(stream.Info("sampled context files: " + strings.Join(names, ", ")))
	}

	model := o.model
	if req.Model != "" {
		model = req.Model
	}
	provider, route, err := o.registry.Resolve(model)
	if err != nil {
		return o.fail(summary, emit, "resolve model", err)
	}

	dispatcher := tools.NewDispatcher(env, req.RepoURL, emit, o.logger)
	changes := newChangeSet()
	messages := []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: buildSystemPrompt()},
		{Role: llm.RoleUser, Content: buildUserPrompt(req.Prompt, ranked, o.cfg.MaxFileBytes)},
	}

	summary.Phase = PhaseGenerating
	turnsUsed := 0
	for turnsUsed < o.cfg.MaxTurns {
		turnsUsed++
		_, done, err := o.turn(ctx, provider, route, &messages, dispatcher, changes, emit)
		if err != nil {
			summary.Turns = turnsUsed
			return o.fail(summary, emit, "reasoning turn", err)
		}
		if done {
			break
		}
	}
	summary.Turns = turnsUsed

	summary.Phase = PhaseVerifying
	for _, category := range verifyChanges(changes, o.cfg.MinSourceFiles, o.cfg.RequireDocs) {
		retried := false
		if turnsUsed < o.cfg.MaxTurns {
			turnsUsed++
			retried = true
			messages = append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: buildRetryPrompt(category)})
			if _, _, err := o.turn(ctx, provider, route, &messages, dispatcher, changes, emit); err != nil {
				o.logger.Warn("verification retry failed", zap.String("category", category), zap.Error(err))
			}
		}

		still := verifyChanges(changes, o.cfg.MinSourceFiles, o.cfg.RequireDocs)
		if !contains(still, category) {
			continue
		}
		if retried {
			o.sink.Record("session.retry_exhausted", map[string]any{"category": category})
		}
		emit(stream.Info("generating fallback content for missing " + category))
		for _, call := range fallbackCalls(category, req.Prompt) {
			result, derr := dispatcher.Dispatch(ctx, call)
			if derr != nil {
				o.logger.Warn("fallback generation failed", zap.String("tool", call.Name), zap.Error(derr))
				continue
			}
			changes.record(gitops.Change{
				Path:        result.FilePath,
				Action:      actionFor(call.Name),
				Description: result.Description,
				Content:     result.Content,
			})
		}
	}
	summary.Turns = turnsUsed
	summary.Changes = changes.list()

	if len(summary.Changes) == 0 {
		return o.fail(summary, emit, "verify changes", errors.New("session produced no changes"))
	}

	summary.Phase = PhaseFinalizing
	for _, ch := range summary.Changes {
		payload := map[string]any{"action": ch.Action}
		if ch.Reasoning != "" {
			payload["reasoning"] = ch.Reasoning
		}
		emit(stream.Event{
			Type:    stream.KindCompletedChange,
			Message: ch.Description,
			File:    ch.Path,
			Payload: payload,
		})
	}

	pub, pubErr := o.publisher.Publish(ctx, env, req.RepoURL, req.Prompt, summary.Changes, emit)
	summary.Branch = pub.Branch
	summary.PRURL = pub.PRURL
	o.metrics.RecordGitOp("publish", gitOpResult(pubErr))

	telemetryAttrs := map[string]any{
		"turns":         summary.Turns,
		"files_changed": len(summary.Changes),
		"branch":        pub.Branch,
	}

	var prErr *gitops.PRCreationError
	var pushErr *gitops.PushError
	switch {
	case pubErr == nil && pub.PRURL != "":
		summary.Outcome = "completed"
		summary.Phase = PhaseDone
		telemetryAttrs["pr_url"] = pub.PRURL
		emit(stream.Completion("created pull request: "+pub.PRURL, telemetryAttrs))
	case pubErr == nil && pub.Pushed:
		summary.Outcome = "completed"
		summary.Phase = PhaseDone
		emit(stream.Completion("pushed branch "+pub.Branch+" (no pull request URL reported)", telemetryAttrs))
	case pubErr == nil:
		summary.Outcome = "completed"
		summary.Phase = PhaseDone
		emit(stream.Completion("changes committed on "+pub.Branch+" in the workspace", telemetryAttrs))
	case errors.As(pubErr, &prErr) && pub.Pushed:
		// Branch is live; only the PR is missing.
		summary.Outcome = "partial"
		summary.Phase = PhaseDone
		summary.Err = pubErr
		emit(stream.SoftError("pull request creation failed: " + prErr.Error()))
		emit(stream.Completion("pushed branch "+pub.Branch+", open the pull request manually", telemetryAttrs))
	case errors.As(pubErr, &pushErr) && pub.Committed:
		// Changes are committed in the workspace; only publication failed.
		summary.Outcome = "partial"
		summary.Phase = PhaseDone
		summary.Err = pubErr
		emit(stream.SoftError("push failed: " + pushErr.Error()))
		emit(stream.Completion("changes committed on "+pub.Branch+" but not published", telemetryAttrs))
	default:
		summary.Err = pubErr
		return o.fail(summary, emit, "publish changes", pubErr)
	}

	return summary
}

// turn performs one chat exchange and dispatches any tool calls. done
// reports that the model finished without requesting tools.
func (o *Orchestrator) turn(
	ctx context.Context,
	provider llm.Provider,
	route llm.ModelRoute,
	messages *[]llm.ChatMessage,
	dispatcher *tools.Dispatcher,
	changes *changeSet,
	emit sandbox.EmitFunc,
) (llm.ChatResponse, bool, error) {
	resp, err := provider.Chat(ctx, llm.ChatRequest{
		Model:       route.Model,
		Messages:    *messages,
		Tools:       tools.Catalog(),
		MaxTokens:   pickMaxTokens(o.cfg.MaxTokens, route.MaxTokens),
		Temperature: pickTemperature(o.cfg.Temperature, route.Temperature),
	})
	if err != nil {
		return llm.ChatResponse{}, false, err
	}

	*messages = append(*messages, resp.Message)
	if text := strings.TrimSpace(resp.Message.Content); text != "" {
		emit(stream.Event{Type: stream.KindAIAnalysis, Message: text})
	}

	if len(resp.ToolCalls) == 0 {
		return resp, true, nil
	}

	for _, call := range resp.ToolCalls {
		args, derr := call.Decode()
		var result *tools.Result
		if derr == nil {
			result, derr = dispatcher.Dispatch(ctx, tools.Call{
				ID:   call.ID,
				Name: call.Function.Name,
				Args: args,
			})
		}

		var content string
		if derr != nil {
			o.metrics.RecordToolCall(call.Function.Name, "error")
			emit(stream.SoftError(derr.Error()))
			content = "error: " + derr.Error()
		} else {
			o.metrics.RecordToolCall(call.Function.Name, "ok")
			switch call.Function.Name {
			case tools.NameCreateFile, tools.NameModifyFile:
				changes.record(gitops.Change{
					Path:        result.FilePath,
					Action:      actionFor(call.Function.Name),
					Description: result.Description,
					Reasoning:   result.Reasoning,
					Content:     result.Content,
				})
				content = fmt.Sprintf("wrote %s", result.FilePath)
			case tools.NameDeleteFile:
				changes.record(gitops.Change{
					Path:        result.FilePath,
					Action:      actionFor(call.Function.Name),
					Description: result.Description,
					Reasoning:   result.Reasoning,
				})
				content = fmt.Sprintf("deleted %s", result.FilePath)
			case tools.NameReadFile:
				content = result.Content
			default:
				content = result.Description
			}
		}
		*messages = append(*messages, llm.ChatMessage{
			Role:       llm.RoleTool,
			ToolCallID: call.ID,
			Name:       call.Function.Name,
			Content:    content,
		})
	}
	return resp, false, nil
}

func (o *Orchestrator) fail(summary Summary, emit sandbox.EmitFunc, op string, err error) Summary {
	o.logger.Error("session failed", zap.String("op", op), zap.Error(err))
	o.sink.Record("session.error", map[string]any{"op": op, "error": err.Error()})
	emit(stream.Error(op + ": " + err.Error()))
	summary.Outcome = "failed"
	summary.Phase = PhaseFailed
	if summary.Err == nil {
		summary.Err = err
	}
	return summary
}

func actionFor(toolName string) string {
	switch toolName {
	case tools.NameModifyFile:
		return "modified"
	case tools.NameDeleteFile:
		return "deleted"
	}
	return "created"
}

func gitOpResult(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func pickTemperature(cfgTemp, routeTemp float64) float64 {
	if cfgTemp > 0 {
		return cfgTemp
	}
	if routeTemp > 0 {
		return routeTemp
	}
	return 0.2
}

func pickMaxTokens(cfgMax, routeMax int) int {
	if cfgMax > 0 {
		return cfgMax
	}
	if routeMax > 0 {
		return routeMax
	}
	return 0
}
