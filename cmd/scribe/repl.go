package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"
	"golang.org/x/term"

	"scribe-ai/internal/domain"
	"scribe-ai/internal/infra/logger"
	"scribe-ai/internal/usecase"
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	toolStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	faintStyle  = lipgloss.NewStyle().Faint(true)
)

func runAgent() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := requireAPIKey(cfg); err != nil {
		return err
	}

	// The REPL owns stdout; keep logs quiet unless asked otherwise.
	if os.Getenv("SCRIBEAI_LOG_LEVEL") == "" {
		cfg.Logger.Level = "warn"
	}
	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	llmComponents, err := initLLM(cfg, log)
	if err != nil {
		return fmt.Errorf("init llm: %w", err)
	}
	agentComponents, err := initAgent(cfg, llmComponents.DefaultLLM, log)
	if err != nil {
		return fmt.Errorf("init agent: %w", err)
	}

	pc := cfg.DefaultProvider()
	fmt.Printf("scribe agent - %s/%s\n", llmComponents.DefaultLLM.Name(), pc.Model)
	fmt.Printf("tools: %s\n", strings.Join(agentComponents.Registry.List(), ", "))
	fmt.Println(faintStyle.Render("Type /help for commands, /quit to exit."))
	fmt.Println()

	in := newReplInput()
	defer in.Close()

	renderer := newMarkdownRenderer()
	conv := usecase.NewConversation()

	for {
		input, err := in.Prompt(promptStyle.Render("you> "))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nbye")
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		in.Remember(input)

		if strings.HasPrefix(input, "/") {
			if done := handleReplCommand(input, conv); done {
				return nil
			}
			continue
		}

		lenBefore := conv.Len()
		start := time.Now()
		result, err := agentComponents.Agent.RunTurn(ctx, conv, input)
		if err != nil {
			fmt.Println(errorStyle.Render("error: " + err.Error()))
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		printTurn(conv.Messages()[lenBefore:], result, renderer, time.Since(start))
	}
}

// handleReplCommand dispatches slash commands; returns true when the REPL
// should exit.
func handleReplCommand(input string, conv *usecase.Conversation) bool {
	switch input {
	case "/help":
		fmt.Println(`Commands:
    /help     Show this help
    /reset    Clear the conversation and start fresh
    /quit     Exit (Ctrl-D works too)`)
	case "/reset":
		conv.Reset()
		fmt.Println(faintStyle.Render("conversation cleared"))
	case "/quit", "/exit":
		fmt.Println("bye")
		return true
	default:
		fmt.Println(errorStyle.Render("unknown command: " + input + " (try /help)"))
	}
	return false
}

// printTurn shows what one agent turn produced: a line per tool call, the
// final answer rendered as markdown, and a stats footer.
func printTurn(delta []domain.Message, result *usecase.TurnResult, renderer *glamour.TermRenderer, elapsed time.Duration) {
	for _, msg := range delta {
		if msg.Role != domain.RoleAssistant {
			continue
		}
		for _, call := range msg.ToolCalls {
			fmt.Println(toolStyle.Render("tool> " + call.Name))
		}
	}

	fmt.Println(renderMarkdown(renderer, result.Message.Content))
	fmt.Println(faintStyle.Render(fmt.Sprintf("%s | %d tokens | %d step(s) | %.1fs",
		result.FinishReason, result.Usage.TotalTokens, result.Iterations, elapsed.Seconds())))
	fmt.Println()
}

// replInput wraps line editing with history persisted across sessions.
type replInput struct {
	line        *liner.State
	historyPath string
}

func newReplInput() *replInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	historyPath := ""
	if home, err := os.UserHomeDir(); err == nil {
		dir := filepath.Join(home, ".scribeai")
		if err := os.MkdirAll(dir, 0o700); err == nil {
			historyPath = filepath.Join(dir, "repl_history")
			if f, err := os.Open(historyPath); err == nil {
				line.ReadHistory(f)
				f.Close()
			}
		}
	}
	return &replInput{line: line, historyPath: historyPath}
}

func (r *replInput) Prompt(prompt string) (string, error) {
	return r.line.Prompt(prompt)
}

func (r *replInput) Remember(input string) {
	r.line.AppendHistory(input)
}

func (r *replInput) Close() {
	if r.historyPath != "" {
		if f, err := os.OpenFile(r.historyPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			r.line.WriteHistory(f)
			f.Close()
		}
	}
	r.line.Close()
}

// newMarkdownRenderer returns nil when stdout is not a terminal; callers
// fall back to plain text.
func newMarkdownRenderer() *glamour.TermRenderer {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return nil
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	if err != nil {
		return nil
	}
	return r
}

func renderMarkdown(r *glamour.TermRenderer, content string) string {
	if r == nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}
