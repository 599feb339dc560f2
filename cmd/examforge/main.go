package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/mlaurent/examforge/internal/handler"
	appI18n "github.com/mlaurent/examforge/internal/i18n"
	"github.com/mlaurent/examforge/internal/llm"
	"github.com/mlaurent/examforge/internal/model"
	"github.com/mlaurent/examforge/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examforge",
		Short: "LLM-backed multiple-choice exam generator and runner",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examforge --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "examforge.db", "SQLite database path")
	f.String("gemini-api-key", "", "Gemini API key (or set EXAMFORGE_GEMINI_API_KEY)")
	f.String("gemini-model", "gemini-2.5-flash", "Primary Gemini model name")
	f.String("gemini-fallback-model", "gemini-2.0-flash", "Fallback Gemini model name (empty to disable)")
	f.String("openai-url", "", "OpenAI-compatible API base URL (empty to disable)")
	f.String("openai-key", "", "API key for the OpenAI-compatible endpoint")
	f.String("openai-model", "gpt-4o-mini", "Model name for the OpenAI-compatible endpoint")
	f.IntP("num-questions", "n", 5, "Default number of questions per generated exam")
	f.Duration("duration", 10*time.Minute, "Default countdown budget per exam session")
	f.Duration("generate-timeout", llm.DefaultGenerateTimeout, "Timeout for one provider generation call")
	f.StringP("lang", "l", "en", "Message language (en, fr)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-password", "", "Initial admin password (or set EXAMFORGE_ADMIN_PASSWORD)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a user's exam history as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "examforge.db", "SQLite database path")
	f.String("username", "", "User whose history to export (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examforge")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examforge")
	v.AddConfigPath("/etc/examforge")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// providerSpecs builds the candidate list in preference order: Gemini
// primary, Gemini fallback, then any OpenAI-compatible endpoint.
func providerSpecs(v *viper.Viper) []llm.Spec {
	var specs []llm.Spec

	geminiKey := v.GetString("gemini-api-key")
	if m := v.GetString("gemini-model"); m != "" {
		specs = append(specs, llm.Spec{
			Name:   "gemini-primary",
			Kind:   llm.KindGemini,
			Model:  m,
			APIKey: geminiKey,
		})
	}
	if m := v.GetString("gemini-fallback-model"); m != "" {
		specs = append(specs, llm.Spec{
			Name:   "gemini-fallback",
			Kind:   llm.KindGemini,
			Model:  m,
			APIKey: geminiKey,
		})
	}
	if url := v.GetString("openai-url"); url != "" {
		specs = append(specs, llm.Spec{
			Name:    "openai-compatible",
			Kind:    llm.KindOpenAI,
			Model:   v.GetString("openai-model"),
			APIKey:  v.GetString("openai-key"),
			BaseURL: url,
		})
	}
	return specs
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	// Open database.
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Seed default admin user if no users exist.
	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Build providers and the generation service.
	specs := providerSpecs(v)
	if len(specs) == 0 {
		return fmt.Errorf("no providers configured: set --gemini-model or --openai-url")
	}
	candidates, err := llm.NewProviders(cmd.Context(), specs)
	if err != nil {
		return fmt.Errorf("create providers: %w", err)
	}
	gateway := llm.NewGateway(llm.WithGenerateTimeout(v.GetDuration("generate-timeout")))
	svc := llm.NewService(gateway, candidates)

	cfg := model.Config{
		QuestionCount:   v.GetInt("num-questions"),
		ExamDuration:    v.GetDuration("duration"),
		GenerateTimeout: v.GetDuration("generate-timeout"),
		Lang:            lang,
		SecureCookies:   v.GetBool("secure-cookies"),
	}

	h := handler.New(db, svc, cfg)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	slog.Info("starting server",
		"addr", addr,
		"providers", strings.Join(names, ","),
		"lang", lang,
		"num_questions", cfg.QuestionCount,
		"duration", cfg.ExamDuration,
	)
	return http.ListenAndServe(addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	username := v.GetString("username")
	user, err := db.GetUserByUsername(username)
	if err != nil {
		return fmt.Errorf("look up user %s: %w", username, err)
	}
	if user == nil {
		return fmt.Errorf("no such user: %s", username)
	}

	records, err := db.ListHistory(user.ID)
	if err != nil {
		return fmt.Errorf("export history: %w", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or EXAMFORGE_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
