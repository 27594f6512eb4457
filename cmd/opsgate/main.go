// ABOUTME: Entry point for the opsgate automation gateway.
// ABOUTME: Serves the JSON-RPC tool surface and offers token/audit utilities.

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/calder-labs/opsgate/internal/auth"
	"github.com/calder-labs/opsgate/internal/config"
	"github.com/calder-labs/opsgate/internal/registry"
	"github.com/calder-labs/opsgate/internal/rpc"
	"github.com/calder-labs/opsgate/internal/sandbox"
	"github.com/calder-labs/opsgate/internal/store"
	"github.com/calder-labs/opsgate/internal/tools"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                           _
   ___  _ __  ___  __ _  __ _| |_ ___
  / _ \| '_ \/ __|/ _' |/ _' | __/ _ \
 | (_) | |_) \__ \ (_| | (_| | ||  __/
  \___/| .__/|___/\__, |\__,_|\__\___|
       |_|        |___/
`

// getConfigPath returns the path to the opsgate config file.
// Priority: OPSGATE_CONFIG env var > XDG_CONFIG_HOME/opsgate/opsgate.yaml > ~/.config/opsgate/opsgate.yaml
func getConfigPath() string {
	if envPath := os.Getenv("OPSGATE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "opsgate.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "opsgate", "opsgate.yaml")
}

// getDataPath returns the path to the opsgate data directory.
// Priority: XDG_DATA_HOME/opsgate > ~/.local/share/opsgate
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "opsgate")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: opsgate <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                  Start the gateway server")
		fmt.Println("  init                   Create a new config file interactively")
		fmt.Println("  token --sub SUBJECT    Issue a signed access token")
		fmt.Println("  audit                  List recorded tool invocations")
		fmt.Println("  health                 Check gateway health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "token":
		err = runToken()
	case "audit":
		err = runAudit(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:    %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Roots:   %s\n", strings.Join(cfg.Sandbox.Roots, ", "))
	if cfg.Auth.PublicKeyFile == "" {
		yellow.Print("    ▶ ")
		fmt.Println("Auth:    pass-through (no public key configured)")
	} else {
		green.Print("    ▶ ")
		fmt.Printf("Auth:    JWT (audience %s)\n", cfg.Auth.Audience)
	}
	fmt.Println()

	logger.Info("starting opsgate",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	// Verification strategy is fixed at startup so the request path has a
	// single code shape regardless of mode.
	var verifier auth.Verifier
	if cfg.Auth.PublicKeyFile != "" {
		keyData, err := os.ReadFile(cfg.Auth.PublicKeyFile)
		if err != nil {
			return fmt.Errorf("reading public key: %w", err)
		}
		key, err := auth.ParseVerificationKey(keyData)
		if err != nil {
			return fmt.Errorf("parsing public key: %w", err)
		}
		verifier = auth.NewKeyVerifier(key, cfg.Auth.Audience)
	} else {
		logger.Warn("running in pass-through auth mode; all callers share the default scopes")
		verifier = auth.NewPassthroughVerifier(cfg.Auth.DefaultScopes)
	}

	authz := auth.NewAuthorizer(cfg.Auth.AdminScope)
	reg := registry.New(logger)

	tools.RegisterFS(reg, authz, tools.FSConfig{
		Roots:        cfg.Sandbox.Roots,
		MaxReadBytes: cfg.Sandbox.MaxReadBytes,
	})
	tools.RegisterShell(reg, authz, tools.ShellConfig{
		Validator: sandbox.NewCommandValidator(cfg.Sandbox.AllowedCommands),
		Timeout:   cfg.Sandbox.CommandTimeout,
	})
	tools.RegisterGit(reg, authz, tools.GitConfig{
		Roots:   cfg.Sandbox.Roots,
		Timeout: cfg.Sandbox.CommandTimeout,
	})
	if cfg.Database.Path != "" {
		closer, err := tools.RegisterDB(reg, authz, tools.DBConfig{
			Path:     cfg.Database.Path,
			RowLimit: cfg.Database.QueryRowLimit,
		})
		if err != nil {
			return fmt.Errorf("registering database tool: %w", err)
		}
		defer closer.Close()
	}

	// Config-level scope overrides replace the built-in requirements for the
	// named tools.
	for name, scopes := range cfg.Tools.Scopes {
		authz.Require(name, scopes...)
	}

	var audit store.AuditStore
	if cfg.Audit.Path != "" {
		s, err := store.NewSQLiteStore(cfg.Audit.Path)
		if err != nil {
			return fmt.Errorf("opening audit store: %w", err)
		}
		defer s.Close()
		audit = s
	}

	srv, err := rpc.NewServer(rpc.Config{
		Registry:   reg,
		Verifier:   verifier,
		Authorizer: authz,
		Audit:      audit,
		Logger:     logger,
		ServerName: "opsgate",
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.HTTPAddr, "tools", reg.Names())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// runToken issues a signed token using the configured private key. The
// serving path never needs the private key; this exists for local setups
// where opsgate is its own token authority.
func runToken() error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	sub := fs.String("sub", "", "token subject (required)")
	scopes := fs.String("scopes", "", "space or comma separated scopes")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}
	if *sub == "" {
		return fmt.Errorf("--sub is required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.PrivateKeyFile == "" {
		return fmt.Errorf("auth.private_key_file not configured")
	}

	key, err := auth.LoadSigningKey(cfg.Auth.PrivateKeyFile)
	if err != nil {
		return fmt.Errorf("loading signing key: %w", err)
	}

	issuer, err := auth.NewIssuer(key, cfg.Auth.Issuer, cfg.Auth.Audience)
	if err != nil {
		return fmt.Errorf("creating issuer: %w", err)
	}

	token, err := issuer.Issue(*sub, auth.ParseScopes(*scopes), *ttl)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}

	fmt.Println(token)
	return nil
}

// runAudit lists recorded invocations from the audit store.
func runAudit(ctx context.Context) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	subject := fs.String("subject", "", "filter by principal subject")
	toolName := fs.String("tool", "", "filter by tool name")
	outcome := fs.String("outcome", "", "filter by outcome (ok|error)")
	limit := fs.Int("limit", 50, "max records")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Audit.Path == "" {
		return fmt.Errorf("audit.path not configured")
	}

	s, err := store.NewSQLiteStore(cfg.Audit.Path)
	if err != nil {
		return fmt.Errorf("opening audit store: %w", err)
	}
	defer s.Close()

	filter := store.InvocationFilter{Limit: *limit}
	if *subject != "" {
		filter.Subject = subject
	}
	if *toolName != "" {
		filter.Tool = toolName
	}
	if *outcome != "" {
		filter.Outcome = outcome
	}

	invs, err := s.ListInvocations(ctx, filter)
	if err != nil {
		return fmt.Errorf("listing invocations: %w", err)
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	gray := color.New(color.FgHiBlack)

	for _, inv := range invs {
		gray.Printf("%s  ", inv.CreatedAt.Format(time.RFC3339))
		fmt.Printf("%-20s %-14s ", inv.Subject, inv.Tool)
		if inv.Outcome == store.OutcomeOK {
			green.Println(inv.Outcome)
		} else {
			red.Printf("%s  %s\n", inv.Outcome, inv.Reason)
		}
	}
	if len(invs) == 0 {
		fmt.Println("no invocations recorded")
	}
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("opsgate configuration setup")
	fmt.Println("===========================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultAuditPath := filepath.Join(defaultDataPath, "audit.db")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	fmt.Println("\n--- Sandbox Configuration ---")
	cwd, _ := os.Getwd()
	roots := prompt(reader, "Allowed roots (comma separated)", cwd)
	commands := prompt(reader, "Allowed commands (comma separated)", "ls,cat,grep,find,echo,git,go,make")
	timeout := prompt(reader, "Command timeout", "30s")

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database exposed to the query tool (empty to disable)", "")

	fmt.Println("\n--- Audit Configuration ---")
	auditPath := prompt(reader, "Audit log path (empty to disable)", defaultAuditPath)

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# opsgate configuration\n")
	cfg.WriteString("# Generated by opsgate init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("sandbox:\n")
	cfg.WriteString("  roots:\n")
	for _, r := range splitList(roots) {
		cfg.WriteString(fmt.Sprintf("    - \"%s\"\n", r))
	}
	cfg.WriteString("  allowed_commands:\n")
	for _, c := range splitList(commands) {
		cfg.WriteString(fmt.Sprintf("    - \"%s\"\n", c))
	}
	cfg.WriteString(fmt.Sprintf("  command_timeout: \"%s\"\n", timeout))
	cfg.WriteString("\n")

	if dbPath != "" {
		cfg.WriteString("database:\n")
		cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
		cfg.WriteString("\n")
	}

	if auditPath != "" {
		cfg.WriteString("audit:\n")
		cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", auditPath))
		cfg.WriteString("\n")
	}

	cfg.WriteString("# auth:\n")
	cfg.WriteString("#   public_key_file: \"/path/to/key.pub\"\n")
	cfg.WriteString("#   audience: \"opsgate\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if auditPath != "" {
		if err := os.MkdirAll(filepath.Dir(auditPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  opsgate serve\n")

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
