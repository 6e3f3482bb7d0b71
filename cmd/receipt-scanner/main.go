package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/receiptscan/receipt-scanner/internal/imagequality"
	"github.com/receiptscan/receipt-scanner/internal/pipeline"
	"github.com/receiptscan/receipt-scanner/internal/preprocess"
	"github.com/receiptscan/receipt-scanner/internal/receipt"
	"github.com/receiptscan/receipt-scanner/internal/recognition"
	"github.com/receiptscan/receipt-scanner/internal/recognition/tesseract"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("receipt-scanner")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "receipt-scanner.db", "Database file path")
		storagePath    = fs.StringLong("storage", "./uploads", "Storage directory path")
		engineType     = fs.StringLong("engine", "tesseract", "Recognition engine: 'tesseract' or 'gemini'")
		language       = fs.StringLong("language", "eng", "Recognition language hint")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		preprocLevel   = fs.StringLong("preprocess", "standard", "Preprocessing level: 'quick', 'standard', or 'full'")
		skipValidation = fs.BoolLong("skip-validation", "Skip the image quality gate")
		minWidth       = fs.IntLong("min-width", imagequality.DefaultConfig().MinWidth, "Minimum image width in pixels")
		minHeight      = fs.IntLong("min-height", imagequality.DefaultConfig().MinHeight, "Minimum image height in pixels")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_SCANNER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	slog.Info("Initializing database...")
	db, err := receipt.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var engine recognition.Engine
	switch *engineType {
	case "tesseract":
		slog.Info("Initializing Tesseract engine...", "language", *language)
		engine = tesseract.New(*language)
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini engine...", "model", *geminiModel)
		engine, err = recognition.NewGemini(context.Background(), apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid engine type", "type", *engineType, "valid", "tesseract or gemini")
		os.Exit(1)
	}

	pipelineConfig := pipeline.DefaultConfig()
	pipelineConfig.Language = *language
	pipelineConfig.PreprocessingLevel = preprocess.Level(*preprocLevel)
	pipelineConfig.SkipValidation = *skipValidation
	pipelineConfig.Quality.MinWidth = *minWidth
	pipelineConfig.Quality.MinHeight = *minHeight

	scanner := pipeline.New(engine, pipelineConfig)
	defer scanner.Close()

	slog.Info("Initializing storage...")
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	service := receipt.NewService(db, scanner, store)

	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := receipt.NewServer(service, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "engine", *engineType)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
