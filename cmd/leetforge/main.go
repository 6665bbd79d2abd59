package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"leetforge/internal/browser"
	"leetforge/internal/config"
	"leetforge/internal/generator"
	"leetforge/internal/llm"
	"leetforge/internal/metrics"
	"leetforge/internal/solver"
	"leetforge/internal/store"
	"leetforge/internal/util"
	"leetforge/pkg/models"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath  string
	envFile     string
	problemURL  string
	language    string
	maxAttempts int
	headless    bool
	verbose     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "leetforge",
		Short: "LeetForge - LLM-powered coding challenge solver",
		Long: `LeetForge reads a coding challenge from the site, asks a language model
for a solution, submits it through a real browser, and repairs failed
attempts using the judge's feedback until the solution is accepted or the
attempt budget runs out.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
	}

	solveCmd := &cobra.Command{
		Use:   "solve",
		Short: "Solve one problem end to end",
		Long: `Run the full pipeline:
1. Open the problem page (or today's daily challenge)
2. Extract the statement and starter code
3. Generate a solution with the configured model
4. Submit and read the verdict
5. On failure, feed the diagnostic back and retry until accepted or exhausted`,
		RunE: runSolve,
	}

	solveCmd.Flags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")
	solveCmd.Flags().StringVar(&envFile, "env-file", ".env", "Path to environment file")
	solveCmd.Flags().StringVar(&problemURL, "url", "", "Problem URL (default: daily challenge)")
	solveCmd.Flags().StringVar(&language, "lang", "", "Target language (overrides config)")
	solveCmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Attempt budget (overrides config)")
	solveCmd.Flags().BoolVar(&headless, "headless", false, "Run the browser headless (overrides config)")
	solveCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive model conversation without browser automation",
		RunE:  runChat,
	}
	chatCmd.Flags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")
	chatCmd.Flags().StringVar(&envFile, "env-file", ".env", "Path to environment file")
	chatCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage recorded solving sessions",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions",
		RunE:  listSessions,
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect <session-dir>",
		Short: "Display a recorded session in detail",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectSession,
	}

	sessionsCmd.AddCommand(listCmd)
	sessionsCmd.AddCommand(inspectCmd)

	rootCmd.AddCommand(solveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sessionsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSolve(cmd *cobra.Command, args []string) error {
	cfg, secrets, err := loadConfiguration(cmd)
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	sessionMgr, err := store.NewSessionManager("output", slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	logger, logFile, err := store.SetupLogger(sessionMgr, logLevel)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer func() {
		if logFile != nil {
			_ = logFile.Sync()
			_ = logFile.Close()
		}
	}()

	logger.Info("LeetForge starting",
		"version", Version,
		"config", configPath,
		"language", cfg.Agent.Language,
		"session_dir", sessionMgr.GetSessionDir())

	if _, err := os.Stat(configPath); err == nil {
		if err := sessionMgr.BackupConfig(configPath); err != nil {
			return fmt.Errorf("failed to backup config: %w", err)
		}
	}

	collector := metrics.NewCollector()
	if cfg.Metrics.Enabled {
		metricsSrv := metrics.NewServer(cfg.Metrics.ListenAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	modelCfg := cfg.Models["main"]
	apiClient := llm.NewClient(logger)
	gen := generator.New(apiClient, modelCfg, secrets.GetAPIKey(modelCfg.BaseURL),
		cfg.PromptTemplates, cfg.Agent.HistoryCap, logger)

	driver := browser.NewDriver(cfg.Agent, logger)
	if err := driver.Start(ctx); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer driver.Close()

	problem, err := openProblem(ctx, driver, cfg, secrets, logger)
	if err != nil {
		return err
	}

	solStore, err := store.NewSolutionStore(cfg.Agent.SolutionsDir, cfg.Agent.OverwriteSolutions, logger)
	if err != nil {
		return fmt.Errorf("failed to create solution store: %w", err)
	}

	recorder := store.NewHistoryRecorder(sessionMgr.GetSessionDir(), logger)
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Error("failed to close history recorder", "error", err)
		}
	}()

	session := models.NewSession(problem, cfg.Agent.Language, cfg.Agent.MaxAttempts)
	bar := progressbar.Default(int64(cfg.Agent.MaxAttempts), "Solving")

	s := solver.New(gen, driver, solStore, solver.Options{
		GenerationRetries: cfg.Agent.GenerationRetries,
		History:           recorder,
		Observer:          &progressObserver{bar: bar, collector: collector},
	}, logger)

	solveErr := s.Solve(ctx, session)

	session.Stats.TokensUsed = gen.Usage()
	collector.AddTokens(gen.Usage())
	recorder.Flush(session)

	if session.State == models.StateAccepted && cfg.Agent.WriteExplanations {
		if err := saveWriteup(ctx, gen, solStore, cfg, problem); err != nil {
			logger.Warn("Failed to save explanation", "error", err)
		}
	}

	printReport(session, sessionMgr.GetSessionDir())

	if solveErr != nil {
		if errors.Is(solveErr, context.Canceled) {
			logger.Warn("Solving interrupted", "session_dir", sessionMgr.GetSessionDir())
			return fmt.Errorf("solving interrupted (partial history in %s)", sessionMgr.GetSessionDir())
		}
		return fmt.Errorf("solving failed: %w", solveErr)
	}

	logger.Info("All done! 🎉")
	return nil
}

// loadConfiguration loads the env file and config, then applies flag
// overrides and re-validates.
func loadConfiguration(cmd *cobra.Command) (*config.Config, *config.Secrets, error) {
	if envFile != "" {
		if err := loadEnvFile(envFile); err != nil {
			if !os.IsNotExist(err) {
				fmt.Fprintf(os.Stderr, "Warning: failed to load env file: %v\n", err)
			}
		} else if verbose {
			fmt.Fprintf(os.Stderr, "Loaded env file: %s\n", envFile)
		}
	}

	cfg, secrets, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if problemURL != "" {
		cfg.Agent.ProblemURL = problemURL
	}
	if language != "" {
		cfg.Agent.Language = language
	}
	if maxAttempts > 0 {
		cfg.Agent.MaxAttempts = maxAttempts
	}
	if cmd.Flags().Changed("headless") {
		cfg.Agent.Headless = headless
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, secrets, nil
}

// openProblem authenticates, primes the site, navigates to the target problem
// and extracts it.
func openProblem(ctx context.Context, driver *browser.Driver, cfg *config.Config, secrets *config.Secrets, logger *slog.Logger) (*models.Problem, error) {
	if err := driver.Navigate(ctx, cfg.Agent.BaseURL); err != nil {
		return nil, fmt.Errorf("failed to open site: %w", err)
	}

	if secrets.SessionCookie != "" {
		if err := driver.SetSessionCookie(ctx, secrets.SessionCookie); err != nil {
			return nil, fmt.Errorf("failed to install session cookie: %w", err)
		}
		// Reload so the site picks the session up.
		if err := driver.Navigate(ctx, cfg.Agent.BaseURL); err != nil {
			return nil, fmt.Errorf("failed to reload site: %w", err)
		}
	}

	if err := ensureLoggedIn(ctx, driver, cfg.Agent.Headless, os.Stdin, logger); err != nil {
		return nil, err
	}

	if err := driver.PrimeLocalStorage(ctx, cfg.Agent.Language); err != nil {
		logger.Warn("Failed to prime local storage", "error", err)
	}

	if cfg.Agent.ProblemURL != "" {
		if err := driver.Navigate(ctx, cfg.Agent.ProblemURL); err != nil {
			return nil, fmt.Errorf("failed to open problem: %w", err)
		}
	} else {
		logger.Info("No problem URL given, using the daily challenge")
		if _, err := driver.NavigateDaily(ctx); err != nil {
			return nil, fmt.Errorf("failed to open daily challenge: %w", err)
		}
	}

	problem, err := driver.ExtractProblem(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to extract problem: %w", err)
	}
	return problem, nil
}

// loginChecker is the slice of browser.Driver the login gate needs.
type loginChecker interface {
	LoggedIn(ctx context.Context) (bool, error)
}

// ensureLoggedIn makes sure the browser holds a site session before any
// submission runs; unauthenticated submissions never settle. Headed runs get
// a chance to log in manually; headless runs must bring a session cookie.
func ensureLoggedIn(ctx context.Context, driver loginChecker, headless bool, in io.Reader, logger *slog.Logger) error {
	loggedIn, err := driver.LoggedIn(ctx)
	if err != nil {
		return fmt.Errorf("failed to check login state: %w", err)
	}
	if loggedIn {
		logger.Info("Existing site session found")
		return nil
	}

	if headless {
		return fmt.Errorf("not logged in: set LEETCODE_SESSION or run without --headless and log in manually")
	}

	fmt.Println("Please complete login in the browser window, then press Enter here to continue...")
	if err := awaitEnter(ctx, in); err != nil {
		return err
	}

	loggedIn, err = driver.LoggedIn(ctx)
	if err != nil {
		return fmt.Errorf("failed to check login state: %w", err)
	}
	if !loggedIn {
		logger.Warn("No session cookie after login prompt, continuing anyway")
	}
	return nil
}

// awaitEnter blocks until a line arrives on r or the context is canceled.
func awaitEnter(ctx context.Context, r io.Reader) error {
	done := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(r).ReadString('\n')
		if err == io.EOF {
			err = nil
		}
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// saveWriteup asks the model for a markdown explanation of the accepted
// solution and stores it next to the source.
func saveWriteup(ctx context.Context, gen *generator.Generator, solStore *store.SolutionStore, cfg *config.Config, problem *models.Problem) error {
	prompt, err := util.RenderTemplate(cfg.PromptTemplates.Writeup, map[string]any{
		"Title": problem.Title,
	})
	if err != nil {
		return err
	}
	markdown, err := gen.Chat(ctx, prompt)
	if err != nil {
		return err
	}
	return solStore.SaveWriteup(problem, markdown)
}

func printReport(session *models.Session, sessionDir string) {
	fmt.Println()
	fmt.Printf("Problem:       %s\n", session.Problem.Title)
	fmt.Printf("Final state:   %s\n", session.State)
	fmt.Printf("Attempts:      %d / %d\n", session.AttemptCount(), session.MaxAttempts)
	if last := session.LastRecord(); last != nil {
		fmt.Printf("Last verdict:  %s\n", last.Verdict.Kind)
	}
	if session.Failure != "" {
		fmt.Printf("Failure:       %s\n", session.Failure)
	}
	fmt.Printf("Tokens used:   %d\n", session.Stats.TokensUsed)
	fmt.Printf("Duration:      %s\n", session.Stats.TotalDuration.Round(time.Second))
	fmt.Printf("Session dir:   %s\n", sessionDir)
}

// progressObserver advances the attempt progress bar and forwards everything
// to the metrics collector.
type progressObserver struct {
	bar       *progressbar.ProgressBar
	collector *metrics.Collector
}

func (o *progressObserver) AttemptJudged(kind models.VerdictKind) {
	_ = o.bar.Add(1)
	o.collector.AttemptJudged(kind)
}

func (o *progressObserver) SessionFinished(state models.SessionState) {
	_ = o.bar.Finish()
	o.collector.SessionFinished(state)
}

func (o *progressObserver) GenerationObserved(d time.Duration) {
	o.collector.GenerationObserved(d)
}

func (o *progressObserver) SubmissionObserved(d time.Duration) {
	o.collector.SubmissionObserved(d)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, secrets, err := loadConfiguration(cmd)
	if err != nil {
		return err
	}

	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	modelCfg := cfg.Models["main"]
	apiClient := llm.NewClient(logger)
	gen := generator.New(apiClient, modelCfg, secrets.GetAPIKey(modelCfg.BaseURL),
		cfg.PromptTemplates, cfg.Agent.HistoryCap, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Chatting with %s. Type 'quit' or 'exit' to leave.\n", modelCfg.ModelName)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		reply, err := gen.Chat(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		fmt.Println(reply)
	}

	summary := gen.ConversationSummary()
	fmt.Println()
	fmt.Printf("Conversation with %s: %d user / %d assistant messages, %d tokens used\n",
		summary.Model, summary.UserMessages, summary.AssistantMessages, summary.TokensUsed)
	return scanner.Err()
}

func listSessions(cmd *cobra.Command, args []string) error {
	sessions, err := store.ListSessions("output")
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No session directories found. Run a solve first.")
		return nil
	}

	fmt.Println("Recorded sessions:")
	fmt.Println()
	fmt.Printf("%-35s %-30s %-14s %s\n", "SESSION", "PROBLEM", "STATE", "ATTEMPTS")
	fmt.Println(strings.Repeat("-", 90))

	for _, name := range sessions {
		problem := "N/A"
		state := "no record"
		attempts := "-"
		if history, err := store.LoadHistory(filepath.Join("output", name)); err == nil {
			if history.Problem != nil {
				problem = history.Problem.Slug
			}
			state = string(history.State)
			attempts = fmt.Sprintf("%d / %d", len(history.Records), history.MaxAttempts)
		}
		fmt.Printf("%-35s %-30s %-14s %s\n", name, problem, state, attempts)
	}
	return nil
}

func inspectSession(cmd *cobra.Command, args []string) error {
	sessionDir := args[0]

	if err := store.ValidateSessionPath(sessionDir); err != nil {
		return fmt.Errorf("invalid session directory: %w", err)
	}

	fullPath := filepath.Join("output", sessionDir)
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return fmt.Errorf("session directory not found: %s", sessionDir)
	}

	session, err := store.LoadHistory(fullPath)
	if err != nil {
		return fmt.Errorf("failed to load session history: %w", err)
	}

	fmt.Printf("Session Information for: %s\n", sessionDir)
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Session ID:      %s\n", session.ID)
	if session.Problem != nil {
		fmt.Printf("Problem:         %s (%s)\n", session.Problem.Title, session.Problem.Difficulty)
		fmt.Printf("URL:             %s\n", session.Problem.URL)
	}
	fmt.Printf("Language:        %s\n", session.Language)
	fmt.Printf("State:           %s\n", session.State)
	if session.Failure != "" {
		fmt.Printf("Failure:         %s\n", session.Failure)
	}
	fmt.Println()

	fmt.Printf("Attempts (%d / %d):\n", len(session.Records), session.MaxAttempts)
	for _, record := range session.Records {
		fmt.Printf("  #%d  %-22s %s\n",
			record.Attempt.Seq,
			record.Verdict.Kind,
			record.Attempt.CreatedAt.Format("2006-01-02 15:04:05"))
		if record.Verdict.Diagnostic.FailingInput != "" {
			fmt.Printf("      failing input: %s\n", util.FirstLine(record.Verdict.Diagnostic.FailingInput))
		}
	}
	fmt.Println()

	fmt.Println("Statistics:")
	fmt.Printf("  Tokens Used:       %d\n", session.Stats.TokensUsed)
	fmt.Printf("  Infra Retries:     %d\n", session.Stats.InfraRetries)
	fmt.Printf("  Generation Time:   %s\n", session.Stats.GenerationTime.Round(time.Millisecond))
	fmt.Printf("  Submission Time:   %s\n", session.Stats.SubmissionTime.Round(time.Millisecond))
	fmt.Printf("  Total Duration:    %s\n", session.Stats.TotalDuration.Round(time.Millisecond))

	return nil
}

// loadEnvFile loads KEY=VALUE pairs from a file into the environment.
func loadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = trimQuotes(strings.TrimSpace(value))
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return nil
}

func trimQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
