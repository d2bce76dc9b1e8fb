package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/gmsas95/carecache/internal/app"
	"github.com/gmsas95/carecache/internal/cli"
	"github.com/gmsas95/carecache/internal/config"
	"github.com/gmsas95/carecache/internal/logging"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	version    = "dev"
)

func main() {
	flag.Usage = func() { cli.PrintExtendedHelp(os.Stderr) }
	flag.Parse()
	cli.Version = version

	command := flag.Arg(0)
	args := flag.Args()
	if len(args) > 0 {
		args = args[1:]
	}

	switch command {
	case "", "help", "--help", "-h":
		cli.PrintExtendedHelp(os.Stdout)
		return
	case "version", "--version", "-v":
		fmt.Printf("carecache version %s\n", version)
		return
	}

	if err := config.LoadEnvFiles(); err != nil {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if command == "config" {
		exitOnError(cli.HandleConfigCommand(args, cfg, options()))
		return
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	application, err := app.New(cfg, logger, version)
	if err != nil {
		logger.Fatal("Failed to initialize app", zap.Error(err))
	}

	if command == "daemon" {
		if err := application.RunDaemon(*configPath, *dataDir); err != nil {
			logger.Fatal("Daemon failed", zap.Error(err))
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, command, args, application)
	stop()
	if closeErr := application.Close(); closeErr != nil {
		logger.Warn("Failed to close app", zap.Error(closeErr))
	}
	exitOnError(err)
}

func run(ctx context.Context, command string, args []string, application *app.App) error {
	if err := application.Start(ctx); err != nil {
		return err
	}
	opts := options()

	switch command {
	case "profile":
		return cli.HandleProfileCommand(ctx, args, application, opts)
	case "context":
		return cli.HandleContextCommand(application, opts)
	case "analytics":
		return cli.HandleAnalyticsCommand(ctx, args, application, opts)
	case "chat":
		return cli.HandleChatCommand(ctx, args, application, opts)
	case "login":
		return cli.HandleLoginCommand(ctx, args, application, opts)
	case "logout":
		return cli.HandleLogoutCommand(ctx, application, opts)
	case "status":
		return cli.HandleStatusCommand(ctx, application, opts)
	default:
		cli.PrintExtendedHelp(os.Stderr)
		return fmt.Errorf("unknown command %q", command)
	}
}

func options() cli.Options {
	fd := int(os.Stdout.Fd())
	styled := term.IsTerminal(fd)
	width := 80
	if styled {
		if w, _, err := term.GetSize(fd); err == nil && w > 0 {
			width = w
		}
	}
	return cli.Options{
		Out:    os.Stdout,
		In:     os.Stdin,
		Styled: styled,
		Width:  width,
	}
}

func exitOnError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
