// Package worker drives the model-call / tool-call iteration loop and the
// delegation tree. One Runtime owns one sandbox, one approval session, and
// one conversation; delegated workers get independently derived copies.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/schleuse-ai/schleuse/internal/approval"
	"github.com/schleuse-ai/schleuse/internal/events"
	"github.com/schleuse-ai/schleuse/internal/llm"
	"github.com/schleuse-ai/schleuse/internal/logger"
	"github.com/schleuse-ai/schleuse/internal/sandbox"
	"github.com/schleuse-ai/schleuse/internal/session"
	"github.com/schleuse-ai/schleuse/internal/tools"
	"github.com/schleuse-ai/schleuse/internal/tools/builtin"
)

var (
	// ErrIterationLimit means the loop hit its configured bound. This is a
	// terminal failure for the run, never a silent truncation.
	ErrIterationLimit = errors.New("worker: iteration limit exceeded")
	// ErrWorkerNotAllowed means the target is missing from the caller's
	// allow-list.
	ErrWorkerNotAllowed = errors.New("worker: target not in allow-list")
	// ErrWorkerUnknown means no definition exists for the target name.
	ErrWorkerUnknown = errors.New("worker: unknown target")
	// ErrDelegationCycle means the target already appears on the delegation
	// path.
	ErrDelegationCycle = errors.New("worker: delegation cycle")
	// ErrDelegationDepth means the delegation depth bound would be exceeded.
	ErrDelegationDepth = errors.New("worker: delegation depth exceeded")
)

const (
	defaultMaxIterations   = 25
	defaultMaxDelegation   = 3
	defaultMaxOutputTokens = 4096
)

// Result is the outcome of one run.
type Result struct {
	Text        string
	Usage       llm.Usage
	Iterations  int
	ToolCalls   int
	Interrupted bool
}

// Config assembles a root runtime.
type Config struct {
	Definition Definition
	Client     llm.Client
	Controller *approval.Controller
	Files      *sandbox.Files
	Sink       events.Sink
	// Workers maps names to the definitions delegation may target.
	Workers            map[string]Definition
	MaxIterations      int
	MaxDelegationDepth int
	Temperature        float64
	MaxTokens          int
	Log                *logger.Logger
}

// Runtime drives the agent loop for one worker.
type Runtime struct {
	def        Definition
	client     llm.Client
	controller *approval.Controller
	files      *sandbox.Files
	sink       events.Sink
	workers    map[string]Definition

	registry *tools.Registry
	executor *tools.Executor
	sess     *session.Session
	tree     *TreeState
	log      *logger.Logger

	nodeID         string
	depth          int
	delegationPath []string
	maxIterations  int
	maxDepth       int
	temperature    float64
	maxTokens      int

	// interrupted is shared with delegated children so one interrupt stops
	// the whole run cooperatively.
	interrupted *atomic.Bool

	// extraUsage collects usage folded back from delegated children within
	// the current run.
	extraMu    sync.Mutex
	extraUsage llm.Usage
}

// New builds the root runtime for a worker definition.
func New(cfg Config) (*Runtime, error) {
	if err := cfg.Definition.Validate(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("worker %q requires a model client", cfg.Definition.Name)
	}
	if cfg.Files == nil {
		return nil, fmt.Errorf("worker %q requires a sandbox", cfg.Definition.Name)
	}

	sink := cfg.Sink
	if sink == nil {
		sink = events.NullSink{}
	}
	log := cfg.Log
	if log == nil {
		log = logger.Global().WithPrefix("worker")
	}

	maxIterations := cfg.MaxIterations
	if cfg.Definition.MaxIterations > 0 {
		maxIterations = cfg.Definition.MaxIterations
	}
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	maxDepth := cfg.MaxDelegationDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxDelegation
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxOutputTokens
	}

	r := &Runtime{
		def:            cfg.Definition,
		client:         cfg.Client,
		controller:     cfg.Controller,
		files:          cfg.Files,
		sink:           sink,
		workers:        cfg.Workers,
		sess:           session.NewSession(session.GenerateID(), cfg.Files.Sandbox().Root()),
		tree:           NewTreeState(),
		log:            log,
		nodeID:         NewNodeID(),
		depth:          0,
		delegationPath: []string{cfg.Definition.Name},
		maxIterations:  maxIterations,
		maxDepth:       maxDepth,
		temperature:    cfg.Temperature,
		maxTokens:      maxTokens,
		interrupted:    new(atomic.Bool),
	}

	if cfg.Definition.Model != "" && cfg.Definition.Model != cfg.Client.GetModelName() {
		log.Warn("worker %s prefers model %q, client uses %q",
			cfg.Definition.Name, cfg.Definition.Model, cfg.Client.GetModelName())
	}

	r.buildRegistry()
	r.updateTree(func(t *Tree) *Tree {
		return t.Insert(Node{ID: r.nodeID, Name: r.def.Name, Status: StatusPending})
	})

	return r, nil
}

// buildRegistry assembles this runtime's tool set: the builtin tools bound
// to its own sandbox and session, filtered by the definition's tool list,
// plus delegation when permitted.
func (r *Runtime) buildRegistry() {
	registry := tools.NewRegistry()
	builtin.RegisterAll(registry, r.files, r.sess)
	if len(r.def.Tools) > 0 {
		filtered := tools.NewRegistry()
		for _, name := range r.def.Tools {
			if tool, ok := registry.Get(name); ok {
				filtered.Register(tool)
			} else {
				r.log.Warn("worker %s lists unknown tool %q", r.def.Name, name)
			}
		}
		registry = filtered
	}
	if len(r.def.Workers) > 0 {
		registry.Register(NewDelegateTool(r))
	}
	r.registry = registry
	r.executor = tools.NewExecutor(registry, r.controller, r.delegationPath, r.log)
}

// Interrupt requests cooperative cancellation. The flag is checked at the
// start of each iteration; a tool call already in flight finishes first.
func (r *Runtime) Interrupt() {
	r.interrupted.Store(true)
}

// Session returns the runtime's conversation state.
func (r *Runtime) Session() *session.Session { return r.sess }

// Registry returns the runtime's tool registry.
func (r *Runtime) Registry() *tools.Registry { return r.registry }

// Tree returns the current delegation tree snapshot.
func (r *Runtime) Tree() *Tree { return r.tree.Current() }

// DelegationPath returns the ancestry of this runtime, oldest first.
func (r *Runtime) DelegationPath() []string {
	return append([]string(nil), r.delegationPath...)
}

// Run executes the agent loop for one input. Depth-0 workers retain their
// conversation across calls; delegated workers are single-shot.
func (r *Runtime) Run(ctx context.Context, input string) (*Result, error) {
	// A depth-0 runtime outlives an interrupt; the flag covers one run.
	if r.depth == 0 {
		r.interrupted.Store(false)
	}

	r.sess.AddMessage(&session.Message{Role: "user", Content: input})
	r.setStatus(StatusRunning)
	r.sink.Status(r.def.Name, string(StatusRunning))

	// Session approval memory must die with this run no matter how it ends.
	defer r.finishRun()

	result := &Result{}

	for result.Iterations < r.maxIterations {
		if r.interrupted.Load() || ctx.Err() != nil {
			r.log.Info("worker %s interrupted after %d iterations", r.def.Name, result.Iterations)
			result.Interrupted = true
			r.foldDelegatedUsage(result)
			r.setStatus(StatusError)
			r.sink.Status(r.def.Name, "interrupted")
			return result, nil
		}

		result.Iterations++

		messages := r.modelMessages()
		resp, err := r.client.CompleteWithRequest(ctx, &llm.CompletionRequest{
			Messages:     messages,
			Tools:        r.registry.Definitions(),
			Temperature:  r.temperature,
			MaxTokens:    r.maxTokens,
			SystemPrompt: r.def.Instructions,
		})
		if err != nil {
			r.setStatus(StatusError)
			return result, fmt.Errorf("model call failed in iteration %d: %w", result.Iterations, err)
		}

		usage := r.turnUsage(resp, messages)
		result.Usage.Add(usage)
		r.sess.AddUsage(usage)

		if resp.Content != "" {
			r.sink.MessageShown(r.def.Name, "assistant", resp.Content)
		}

		if len(resp.ToolCalls) == 0 {
			result.Text = resp.Content
			r.sess.AddMessage(&session.Message{Role: "assistant", Content: resp.Content})
			r.foldDelegatedUsage(result)
			r.setStatus(StatusComplete)
			r.sink.Status(r.def.Name, string(StatusComplete))
			r.sink.SessionEnded(r.def.Name, r.sess.GetUsage())
			return result, nil
		}

		r.sess.AddMessage(&session.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		r.runToolCalls(ctx, resp.ToolCalls, result)
	}

	r.foldDelegatedUsage(result)
	r.setStatus(StatusError)
	return result, fmt.Errorf("%w: %d iterations, %d tool calls", ErrIterationLimit, result.Iterations, result.ToolCalls)
}

// turnUsage returns the provider-reported usage for one model turn, falling
// back to a local token estimate when the provider omits the figures (some
// providers do on streamed or truncated turns). Run accounting must never
// silently read zero for a turn that consumed tokens.
func (r *Runtime) turnUsage(resp *llm.CompletionResponse, prompt []*llm.Message) llm.Usage {
	if resp.Usage.Total() > 0 {
		return resp.Usage
	}
	model := r.client.GetModelName()
	return llm.Usage{
		InputTokens:  int64(llm.EstimateMessageTokens(model, prompt)),
		OutputTokens: int64(llm.EstimateTokens(model, resp.Content)),
	}
}

// foldDelegatedUsage drains usage accumulated by delegated children into the
// run result.
func (r *Runtime) foldDelegatedUsage(result *Result) {
	r.extraMu.Lock()
	result.Usage.Add(r.extraUsage)
	r.extraUsage = llm.Usage{}
	r.extraMu.Unlock()
}

// runToolCalls executes one model turn's calls concurrently and appends the
// results in the order the model requested them.
func (r *Runtime) runToolCalls(ctx context.Context, toolCalls []llm.ToolCall, result *Result) {
	calls := make([]*tools.ToolCall, len(toolCalls))
	for i, call := range toolCalls {
		calls[i] = &tools.ToolCall{ID: call.ID, Name: call.Name, Parameters: call.Arguments}
		r.sink.ToolStarted(r.def.Name, events.ToolEvent{
			CallID:    call.ID,
			Name:      call.Name,
			Arguments: call.Arguments,
		})
	}

	results := r.executor.ExecuteBatch(ctx, calls)
	result.ToolCalls += len(calls)

	for i, toolResult := range results {
		call := calls[i]
		r.sink.ToolFinished(r.def.Name, events.ToolEvent{
			CallID:     call.ID,
			Name:       call.Name,
			DurationMs: toolResult.DurationMs,
			IsError:    toolResult.IsError(),
			Summary:    toolResult.Text(),
		})
		r.sess.AddMessage(&session.Message{
			Role:     "tool",
			Content:  toolResult.Text(),
			ToolID:   call.ID,
			ToolName: call.Name,
			IsError:  toolResult.IsError(),
		})
	}
}

// finishRun drops run-scoped approval memory. Session patterns never outlive
// the run that created them.
func (r *Runtime) finishRun() {
	if r.controller != nil {
		r.controller.ClearSession()
	}
}

func (r *Runtime) modelMessages() []*llm.Message {
	stored := r.sess.GetMessages()
	messages := make([]*llm.Message, 0, len(stored))
	for _, msg := range stored {
		messages = append(messages, &llm.Message{
			Role:      msg.Role,
			Content:   msg.Content,
			ToolCalls: msg.ToolCalls,
			ToolID:    msg.ToolID,
			ToolName:  msg.ToolName,
			IsError:   msg.IsError,
		})
	}
	return messages
}

func (r *Runtime) setStatus(status Status) {
	tree := r.updateTree(func(t *Tree) *Tree {
		return t.SetStatus(r.nodeID, status)
	})
	r.sink.TreeUpdated(tree.Snapshot())
}

func (r *Runtime) updateTree(fn func(*Tree) *Tree) *Tree {
	return r.tree.Update(fn)
}

// Delegate runs another worker as a child of this one. Fatal only for this
// call: the delegating run continues and sees failures as tool errors.
func (r *Runtime) Delegate(ctx context.Context, workerName, task string) (*Result, error) {
	if !r.def.AllowsWorker(workerName) {
		return nil, fmt.Errorf("%w: %q is not in the allow-list of %q", ErrWorkerNotAllowed, workerName, r.def.Name)
	}
	for _, ancestor := range r.delegationPath {
		if ancestor == workerName {
			return nil, fmt.Errorf("%w: %q already appears on the delegation path %v", ErrDelegationCycle, workerName, r.delegationPath)
		}
	}
	if r.depth+1 > r.maxDepth {
		return nil, fmt.Errorf("%w: depth %d exceeds maximum %d", ErrDelegationDepth, r.depth+1, r.maxDepth)
	}
	childDef, ok := r.workers[workerName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrWorkerUnknown, workerName)
	}

	// The child's boundary is derived from ours and can only narrow.
	childFiles, err := r.files.Restrict(childDef.Restrict)
	if err != nil {
		return nil, fmt.Errorf("derive sandbox for %q: %w", workerName, err)
	}

	childPath := append(append([]string(nil), r.delegationPath...), workerName)
	child := &Runtime{
		def:            childDef,
		client:         r.client,
		controller:     r.forkController(),
		files:          childFiles,
		sink:           r.sink,
		workers:        r.workers,
		sess:           session.NewSession(session.GenerateID(), childFiles.Sandbox().Root()),
		tree:           r.tree,
		log:            r.log.WithPrefix(workerName),
		nodeID:         NewNodeID(),
		depth:          r.depth + 1,
		delegationPath: childPath,
		maxIterations:  r.maxIterations,
		maxDepth:       r.maxDepth,
		temperature:    r.temperature,
		maxTokens:      r.maxTokens,
		interrupted:    r.interrupted,
	}
	if childDef.MaxIterations > 0 {
		child.maxIterations = childDef.MaxIterations
	}
	child.buildRegistry()

	tree := r.updateTree(func(t *Tree) *Tree {
		return t.Insert(Node{
			ID:       child.nodeID,
			Name:     workerName,
			Task:     task,
			Status:   StatusPending,
			ParentID: r.nodeID,
		})
	})
	r.sink.TreeUpdated(tree.Snapshot())

	childResult, runErr := child.Run(ctx, task)

	status := StatusComplete
	if runErr != nil || (childResult != nil && childResult.Interrupted) {
		status = StatusError
	}
	tree = r.updateTree(func(t *Tree) *Tree {
		return t.SetStatus(child.nodeID, status)
	})
	r.sink.TreeUpdated(tree.Snapshot())

	// The child's usage folds into the parent's run total.
	if childResult != nil {
		r.sess.AddUsage(childResult.Usage)
		r.extraMu.Lock()
		r.extraUsage.Add(childResult.Usage)
		r.extraMu.Unlock()
	}

	return childResult, runErr
}

func (r *Runtime) forkController() *approval.Controller {
	if r.controller == nil {
		return nil
	}
	return r.controller.Fork()
}
