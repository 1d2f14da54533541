package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"scribe-ai/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes all health checks and reports results.
func runDoctor() error {
	cfgPath := configPath()

	// Load may fail on a broken file; some checks still work without it.
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "API keys", Fn: checkAPIKeys},
		{Name: "Default provider", Fn: checkDefaultProvider},
		{Name: "Provider reachability", Fn: checkProviderReachable},
		{Name: "Python interpreter", Fn: checkPython},
		{Name: "Sandbox root", Fn: checkSandboxRoot},
		{Name: "Thread store", Fn: checkThreadStore},
		{Name: "Network", Fn: checkNetwork},
	}

	fmt.Println("scribe doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Println("\nFix the FAIL issues above before running 'scribe serve'.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Println("\nscribe should work, but consider addressing the warnings.")
	} else {
		fmt.Println("\nAll checks passed! scribe is ready to run.")
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile returns a check that verifies the config file parses.
// A missing file is only a warning: defaults plus SCRIBEAI_* variables
// are a complete configuration.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s; using defaults and environment", cfgPath),
			}
		}

		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config file parse error: %v", cfgErr),
				Fix:     fmt.Sprintf("Check the YAML syntax in %s", cfgPath),
			}
		}

		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkAPIKeys verifies at least one provider has an API key configured.
func checkAPIKeys(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{
			Status:  StatusFail,
			Message: "cannot check: config not loaded",
		}
	}

	if len(cfg.LLM.Providers) == 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: "no providers configured",
			Fix:     "Add at least one provider under llm.providers in scribe.yaml",
		}
	}

	var withKey, withoutKey []string
	for _, p := range cfg.LLM.Providers {
		if p.APIKey != "" {
			withKey = append(withKey, p.Name)
		} else {
			withoutKey = append(withoutKey, p.Name)
		}
	}

	if len(withKey) == 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("no API keys found for providers: %s", strings.Join(withoutKey, ", ")),
			Fix:     "Set SCRIBEAI_API_KEY (or SCRIBEAI_<PROVIDER>_API_KEY) in the environment",
		}
	}

	if len(withoutKey) > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("keys configured for [%s]; missing for [%s]", strings.Join(withKey, ", "), strings.Join(withoutKey, ", ")),
		}
	}

	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("API keys configured for: %s", strings.Join(withKey, ", ")),
	}
}

// checkDefaultProvider verifies the default provider exists and has a
// usable type and model.
func checkDefaultProvider(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{
			Status:  StatusFail,
			Message: "cannot check: config not loaded",
		}
	}

	pc := cfg.DefaultProvider()
	if pc == nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("default provider %q not found in llm.providers", cfg.LLM.DefaultProvider),
			Fix:     "Set llm.default_provider to a configured provider name",
		}
	}

	switch pc.Type {
	case "openai", "", "anthropic":
	default:
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("provider %q has unknown type %q", pc.Name, pc.Type),
			Fix:     "Supported types: openai, anthropic",
		}
	}

	if pc.Model == "" {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("provider %q has no model configured", pc.Name),
			Fix:     "Set llm.providers[].model (or SCRIBEAI_MODEL)",
		}
	}

	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s (%s), model %s", pc.Name, providerTypeName(pc.Type), pc.Model),
	}
}

func providerTypeName(t string) string {
	if t == "" {
		return "openai"
	}
	return t
}

// checkProviderReachable tests if the default provider's API endpoint
// answers at all. Skipped when no key is set.
func checkProviderReachable(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{
			Status:  StatusFail,
			Message: "cannot check: config not loaded",
		}
	}

	pc := cfg.DefaultProvider()
	if pc == nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("default provider %q not found in config", cfg.LLM.DefaultProvider),
		}
	}

	if pc.APIKey == "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: "skipped: no API key for default provider",
		}
	}

	endpoint := providerEndpoint(pc)
	if endpoint == "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("no known endpoint for provider type %q; skipping", pc.Type),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}

	resp, err := http.DefaultClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", endpoint, err),
			Fix:     "Check your internet connection and firewall settings",
		}
	}
	resp.Body.Close()

	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s reachable (latency: %dms)", pc.Name, latency.Milliseconds()),
	}
}

// providerEndpoint returns a ping URL for the given provider.
func providerEndpoint(p *config.ProviderConfig) string {
	if p.BaseURL != "" {
		return strings.TrimRight(p.BaseURL, "/")
	}
	switch p.Type {
	case "openai", "":
		return "https://api.openai.com/v1/models"
	case "anthropic":
		return "https://api.anthropic.com/"
	}
	return ""
}

// checkPython looks for the interpreter the python_exec tool runs. A
// missing interpreter degrades the tool, not the service, so it warns.
func checkPython(cfg *config.Config) CheckResult {
	bin := "python3"
	if cfg != nil && cfg.Tools.PythonBin != "" {
		bin = cfg.Tools.PythonBin
	}

	path, err := exec.LookPath(bin)
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s not found; python_exec tool calls will fail", bin),
			Fix:     "Install python3 or point tools.python_bin at an interpreter",
		}
	}

	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("found %s at %s", bin, path),
	}
}

// checkSandboxRoot verifies the directory file reads are scoped to. The
// service refuses to start when it is missing, so that is a failure here.
func checkSandboxRoot(cfg *config.Config) CheckResult {
	root := "."
	if cfg != nil && cfg.Tools.SandboxRoot != "" {
		root = cfg.Tools.SandboxRoot
	}

	abs, _ := filepath.Abs(root)
	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("sandbox root %s does not exist", abs),
			Fix:     fmt.Sprintf("Create it (mkdir -p %s) or set SCRIBEAI_WORKDIR", abs),
		}
	}
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot stat sandbox root: %v", err),
		}
	}
	if !info.IsDir() {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("sandbox root %s is not a directory", abs),
		}
	}

	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("sandbox root %s", abs),
	}
}

// checkThreadStore verifies the SQLite database directory is writable.
func checkThreadStore(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{
			Status:  StatusFail,
			Message: "cannot check: config not loaded",
		}
	}

	dir := filepath.Dir(cfg.Store.Path)
	absDir, _ := filepath.Abs(dir)

	info, err := os.Stat(absDir)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(absDir, 0o700); mkErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("store directory %s does not exist and cannot be created: %v", absDir, mkErr),
				Fix:     fmt.Sprintf("Create the directory: mkdir -p %s", absDir),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("store directory created at %s", absDir),
		}
	}
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot stat store directory: %v", err),
		}
	}
	if !info.IsDir() {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s exists but is not a directory", absDir),
		}
	}

	probe := filepath.Join(absDir, ".doctor-check")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("store directory %s is not writable: %v", absDir, err),
			Fix:     fmt.Sprintf("Fix permissions on %s", absDir),
		}
	}
	os.Remove(probe)

	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("store directory %s writable (db: %s)", absDir, filepath.Base(cfg.Store.Path)),
	}
}

// checkNetwork verifies basic internet connectivity.
func checkNetwork(_ *config.Config) CheckResult {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", "1.1.1.1:443")
	if err != nil {
		conn2, err2 := d.DialContext(ctx, "tcp", "8.8.8.8:443")
		if err2 != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: "no internet connectivity detected",
				Fix:     "Check your network connection and firewall settings",
			}
		}
		conn2.Close()
	} else {
		conn.Close()
	}

	return CheckResult{
		Status:  StatusPass,
		Message: "internet connectivity OK",
	}
}
