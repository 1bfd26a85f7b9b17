package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"secretary-ai/internal/infra/config"
	"secretary-ai/internal/infra/logger"
	"secretary-ai/internal/infra/tracer"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	switch os.Args[1] {
	case "serve":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	case "encrypt":
		if err := runEncrypt(os.Stdin); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Println("secretary", version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'secretary --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`secretary - personal assistant API with calendar scheduling

USAGE:
    secretary [COMMAND] [FLAGS]

COMMANDS:
    serve       Run the HTTP API (default)
    encrypt     Read a secret from stdin and print its enc:... form
                (requires SECRETARY_CONFIG_KEY)
    version     Print the build version

FLAGS:
    -h, --help         Show this help message
    --config PATH      Specify config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml (missing file means defaults)
    Environment: SECRETARY_* variables override config`)
}

// configPath resolves the config file: --config, then SECRETARY_CONFIG,
// then ./config.yaml.
func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("SECRETARY_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. LLM providers
	llmComp, err := initLLM(cfg, log)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}

	// 4. Stores
	stores, storeCleanup, err := initStores(cfg.Store, log)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer storeCleanup()

	// 5. Calendar
	connector, calendarCleanup, err := initCalendar(cfg.Calendar, log)
	if err != nil {
		return fmt.Errorf("calendar: %w", err)
	}
	defer calendarCleanup()

	// 6. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 7. Runtime (tools, orchestrator, chat service, HTTP API, scheduler)
	rt, err := initRuntime(cfg, llmComp.DefaultLLM, stores, connector, log)
	if err != nil {
		return fmt.Errorf("runtime: %w", err)
	}

	if rt.Scheduler != nil {
		if err := rt.Scheduler.Start(ctx); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
	}
	if err := rt.HTTP.Start(ctx); err != nil {
		return fmt.Errorf("http: %w", err)
	}

	log.Info("secretary started",
		"version", version,
		"provider", cfg.LLM.DefaultProvider,
		"calendar", cfg.Calendar.Provider,
		"store", stores.Driver,
		"addr", rt.HTTP.Addr(),
	)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := rt.HTTP.Stop(shutdownCtx); err != nil {
		log.Warn("http stop error", "error", err)
	}
	if rt.Scheduler != nil {
		rt.Scheduler.Stop()
	}
	return nil
}

// runEncrypt reads one line from r and prints it encrypted with
// SECRETARY_CONFIG_KEY, ready to paste into config.yaml.
func runEncrypt(r io.Reader) error {
	passphrase := os.Getenv("SECRETARY_CONFIG_KEY")
	if passphrase == "" {
		return fmt.Errorf("SECRETARY_CONFIG_KEY is not set")
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read secret: %w", err)
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return fmt.Errorf("empty secret")
	}
	enc, err := config.EncryptValue(secret, passphrase)
	if err != nil {
		return err
	}
	fmt.Println("enc:" + enc)
	return nil
}
