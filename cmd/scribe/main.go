package main

import (
	"fmt"
	"os"
	"strings"

	"scribe-ai/internal/infra/config"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	// Bare invocation (or flags only) runs the HTTP service.
	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe()
	case "agent":
		err = runAgent()
	case "models":
		err = runModels()
	case "doctor":
		err = runDoctor()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'scribe --help' for usage.\n", os.Args[1])
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`scribe - LLM completion service with a tool-using agent

USAGE:
    scribe [COMMAND] [FLAGS]

COMMANDS:
    serve       Run the HTTP API (default when no command is given)
    agent       Interactive agent session in the terminal
    models      List the models the configured providers serve
    doctor      Run health checks on your setup

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./scribe.yaml)
    --provider NAME    LLM provider (openai, anthropic)
    --model NAME       Model name (e.g. gpt-4o-mini)
    --key KEY          API key for the provider

CONFIGURATION:
    Config file: ./scribe.yaml
    Environment: SCRIBEAI_* variables override config
                 (SCRIBEAI_API_KEY, SCRIBEAI_OPENAI_API_KEY,
                  SCRIBEAI_ANTHROPIC_API_KEY, SCRIBEAI_ADDR,
                  SCRIBEAI_MODEL, SCRIBEAI_WORKDIR, SCRIBEAI_LOG_LEVEL)

EXAMPLES:
    scribe serve                 # HTTP API on :8080
    scribe agent                 # chat with tools in the terminal
    scribe --provider openai --model gpt-4o-mini --key sk-...
    scribe models
    scribe doctor`)
}

// cliFlags holds optional CLI flags that bypass the config file.
type cliFlags struct {
	Provider string
	Model    string
	APIKey   string
}

// parseFlags extracts --provider, --model, --key from os.Args.
func parseFlags() cliFlags {
	var flags cliFlags
	for i := 1; i < len(os.Args); i++ {
		switch {
		case os.Args[i] == "--provider" && i+1 < len(os.Args):
			flags.Provider = os.Args[i+1]
			i++
		case strings.HasPrefix(os.Args[i], "--provider="):
			flags.Provider = strings.TrimPrefix(os.Args[i], "--provider=")
		case os.Args[i] == "--model" && i+1 < len(os.Args):
			flags.Model = os.Args[i+1]
			i++
		case strings.HasPrefix(os.Args[i], "--model="):
			flags.Model = strings.TrimPrefix(os.Args[i], "--model=")
		case os.Args[i] == "--key" && i+1 < len(os.Args):
			flags.APIKey = os.Args[i+1]
			i++
		case strings.HasPrefix(os.Args[i], "--key="):
			flags.APIKey = strings.TrimPrefix(os.Args[i], "--key=")
		}
	}
	return flags
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("SCRIBEAI_CONFIG"); p != "" {
		return p
	}
	return "scribe.yaml"
}

// buildQuickConfig creates a minimal single-provider config from CLI flags,
// bypassing the config file.
func buildQuickConfig(flags cliFlags) (*config.Config, error) {
	if flags.Provider == "" || flags.Model == "" || flags.APIKey == "" {
		return nil, fmt.Errorf("--provider, --model, and --key must all be specified")
	}

	cfg := config.Defaults()
	cfg.LLM.DefaultProvider = flags.Provider
	cfg.LLM.Providers = []config.ProviderConfig{
		{
			Name:        flags.Provider,
			Type:        flags.Provider,
			Model:       flags.Model,
			Models:      []string{flags.Model},
			APIKey:      flags.APIKey,
			MaxTokens:   1200,
			Temperature: 0.2,
		},
	}

	config.ApplyEnvOverrides(cfg)
	return cfg, nil
}

// loadConfig resolves configuration: --provider/--model/--key flags build a
// quick config; otherwise the config file plus SCRIBEAI_* overrides apply,
// with --model and --key adjusting the default provider.
func loadConfig() (*config.Config, error) {
	flags := parseFlags()
	if flags.Provider != "" {
		return buildQuickConfig(flags)
	}

	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, err
	}
	if pc := cfg.DefaultProvider(); pc != nil {
		if flags.Model != "" {
			pc.Model = flags.Model
		}
		if flags.APIKey != "" {
			pc.APIKey = flags.APIKey
		}
	}
	return cfg, nil
}

// requireAPIKey enforces the startup credential contract: commands that
// talk to a provider refuse to start without a key for the default one.
func requireAPIKey(cfg *config.Config) error {
	pc := cfg.DefaultProvider()
	if pc == nil {
		return fmt.Errorf("default provider %q is not configured", cfg.LLM.DefaultProvider)
	}
	if pc.APIKey == "" {
		return fmt.Errorf("no API key for provider %q: set SCRIBEAI_%s_API_KEY (or SCRIBEAI_API_KEY)",
			pc.Name, strings.ToUpper(pc.Name))
	}
	return nil
}
