package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/schleuse-ai/schleuse/internal/approval"
	"github.com/schleuse-ai/schleuse/internal/config"
	"github.com/schleuse-ai/schleuse/internal/events"
	"github.com/schleuse-ai/schleuse/internal/fs"
	"github.com/schleuse-ai/schleuse/internal/llm"
	"github.com/schleuse-ai/schleuse/internal/logger"
	"github.com/schleuse-ai/schleuse/internal/sandbox"
	"github.com/schleuse-ai/schleuse/internal/worker"
)

const defaultInstructions = `You are a careful assistant working inside a sandboxed directory.
Use the available tools to read, write and inspect files, run commands, and
delegate subtasks to other workers when they are available. Ask for nothing
outside the sandbox.`

func main() {
	if err := run(); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	var (
		configPath   string
		providerName string
		modelName    string
		approvalMode string
		rootDir      string
		workersPath  string
	)

	fset := flag.NewFlagSet("schleuse", flag.ContinueOnError)
	fset.SetOutput(os.Stderr)
	fset.StringVar(&configPath, "config", config.GetConfigPath(), "Path to the configuration file")
	fset.StringVar(&providerName, "provider", "", "LLM provider (anthropic, openai)")
	fset.StringVar(&modelName, "model", "", "Model name override")
	fset.StringVar(&approvalMode, "approval", "", "Approval mode (interactive, approve_all, auto_deny)")
	fset.StringVar(&rootDir, "root", "", "Sandbox root directory (defaults to the working directory)")
	fset.StringVar(&workersPath, "workers", "", "Path to a JSON file with delegatable worker definitions")
	fset.Usage = func() {
		fmt.Fprintf(fset.Output(), "Usage: %s [options] [\"your prompt here\"]\n\n", os.Args[0])
		fmt.Fprintln(fset.Output(), "Without a prompt, schleuse starts an interactive session.")
		fmt.Fprintln(fset.Output(), "\nOptions:")
		fset.PrintDefaults()
	}
	if parseErr := fset.Parse(os.Args[1:]); parseErr != nil {
		return parseErr
	}
	prompt := strings.TrimSpace(strings.Join(fset.Args(), " "))

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Environment overrides for logging, useful when the config file is shared.
	if envLevel := strings.TrimSpace(os.Getenv("SCHLEUSE_LOG_LEVEL")); envLevel != "" {
		cfg.LogLevel = envLevel
	}
	if envPath := strings.TrimSpace(os.Getenv("SCHLEUSE_LOG_PATH")); envPath != "" {
		cfg.LogPath = envPath
	}
	if providerName != "" {
		cfg.Provider = providerName
	}
	if approvalMode != "" {
		cfg.ApprovalMode = approvalMode
	}
	if rootDir != "" {
		cfg.Sandbox.Root = rootDir
	}

	if initErr := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); initErr != nil {
		return fmt.Errorf("failed to initialize logger: %w", initErr)
	}
	defer func() {
		if err != nil {
			logger.Error("Fatal error: %v", err)
		}
		if closeErr := logger.Global().Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", closeErr)
		}
	}()
	logger.Info("schleuse starting, provider=%s root=%s", cfg.Provider, cfg.Sandbox.Root)

	client, err := buildClient(cfg, modelName)
	if err != nil {
		return err
	}

	sb, err := sandbox.Resolve(cfg.Sandbox)
	if err != nil {
		return fmt.Errorf("failed to resolve sandbox: %w", err)
	}
	backend := fs.NewCachedFS(time.Duration(cfg.CacheTTL)*time.Second, cfg.MaxCacheEntries)
	defer func() {
		if closeErr := backend.Close(); closeErr != nil {
			logger.Warn("failed to close filesystem backend: %v", closeErr)
		}
	}()
	files := sandbox.NewFiles(sb, backend)

	sink := events.NewConsoleSink(os.Stdout, os.Stdin)
	controller := approval.NewController(approval.Options{
		Mode:      approval.ParseMode(cfg.ApprovalMode),
		Consent:   sink.RequestConsent,
		Timeout:   time.Duration(cfg.ConsentTimeout) * time.Second,
		Blocked:   cfg.BlockedTools,
		Overrides: cfg.ToolConsent,
		Permanent: patternsFromRules(cfg.ApprovalRules),
		OnRemember: func(p approval.Pattern) {
			prefix := p.DescriptionPrefix
			if prefix == "" {
				prefix = p.Type
			}
			cfg.AddApprovalRule(prefix, p.Allow)
			if saveErr := cfg.Save(configPath); saveErr != nil {
				logger.Warn("failed to persist approval rule %q: %v", prefix, saveErr)
			}
		},
	})

	workers, err := loadWorkers(workersPath)
	if err != nil {
		return err
	}

	rootDef := worker.Definition{
		Name:         "assistant",
		Instructions: defaultInstructions,
		Workers:      workerNames(workers),
	}
	runtime, err := worker.New(worker.Config{
		Definition:         rootDef,
		Client:             client,
		Controller:         controller,
		Files:              files,
		Sink:               sink,
		Workers:            workers,
		MaxIterations:      cfg.MaxIterations,
		MaxDelegationDepth: cfg.MaxDelegation,
		Temperature:        cfg.Temperature,
		MaxTokens:          cfg.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to create worker runtime: %w", err)
	}

	// First interrupt stops the run cooperatively, a second one exits.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\ninterrupting, press ctrl-c again to force quit")
		runtime.Interrupt()
		<-sigCh
		os.Exit(130)
	}()

	ctx := context.Background()
	if prompt != "" {
		return runOnce(ctx, runtime, prompt)
	}
	return runInteractive(ctx, runtime)
}

func runOnce(ctx context.Context, runtime *worker.Runtime, prompt string) error {
	result, err := runtime.Run(ctx, prompt)
	if err != nil {
		return err
	}
	if result.Interrupted {
		return fmt.Errorf("run interrupted after %d iterations", result.Iterations)
	}
	fmt.Println(result.Text)
	return nil
}

func runInteractive(ctx context.Context, runtime *worker.Runtime) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		result, err := runtime.Run(ctx, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		if result.Interrupted {
			fmt.Fprintln(os.Stderr, "(interrupted)")
			continue
		}
		fmt.Println(result.Text)
	}
}

// buildClient picks credentials from the per-provider config, falling back to
// the conventional environment variables.
func buildClient(cfg *config.Config, modelOverride string) (llm.Client, error) {
	pc := cfg.Providers[cfg.Provider]
	model := pc.Model
	if modelOverride != "" {
		model = modelOverride
	}

	apiKey := strings.TrimSpace(pc.APIKey)
	if apiKey == "" {
		switch cfg.Provider {
		case "anthropic":
			apiKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
		case "openai":
			apiKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		}
	}

	client, err := llm.NewClient(cfg.Provider, apiKey, model)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
	}
	return client, nil
}

// patternsFromRules turns persisted prefix rules into permanent approval
// patterns. Order is preserved, first match wins.
func patternsFromRules(rules []config.ApprovalRule) []approval.Pattern {
	patterns := make([]approval.Pattern, 0, len(rules))
	for _, rule := range rules {
		patterns = append(patterns, approval.Pattern{
			DescriptionPrefix: rule.Prefix,
			MaxRisk:           approval.RiskHigh,
			Allow:             rule.Allow,
		})
	}
	return patterns
}

// loadWorkers reads delegatable worker definitions from a JSON file. The file
// holds a list of definitions; the returned map is keyed by worker name.
func loadWorkers(path string) (map[string]worker.Definition, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workers file: %w", err)
	}

	var defs []worker.Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse workers file %s: %w", path, err)
	}

	workers := make(map[string]worker.Definition, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("invalid worker definition in %s: %w", path, err)
		}
		if _, dup := workers[def.Name]; dup {
			return nil, fmt.Errorf("duplicate worker definition %q in %s", def.Name, path)
		}
		workers[def.Name] = def
	}
	return workers, nil
}

func workerNames(workers map[string]worker.Definition) []string {
	if len(workers) == 0 {
		return nil
	}
	names := make([]string, 0, len(workers))
	for name := range workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
