package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/versal-debug/vdbg/internal/config"
	"github.com/versal-debug/vdbg/internal/logging"
	"github.com/versal-debug/vdbg/internal/telemetry"
)

// Version is set at build time.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(ctx, logging.WithLevel(cfg.LogLevel))
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() {
		if closeErr := logger.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", closeErr)
		}
	}()

	if tracingEnabled(cfg) {
		telemetry.ServiceVersion = Version
		telemetry.SetEndpointOverride(cfg.OTELEndpoint)
		shutdown, err := telemetry.Init(ctx, telemetry.WithConsoleFallback(io.Discard))
		if err != nil {
			return fmt.Errorf("initialize telemetry: %w", err)
		}
		defer shutdown()
	}

	logger.Logger.With("command", resolveCommandName(args), "args", redactArgs(args)).Debug("command invocation")
	cmd := newRootCommand(ctx, cfg, logger.Logger)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func tracingEnabled(cfg *config.Config) bool {
	return strings.TrimSpace(cfg.OTELEndpoint) != "" || strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")) != ""
}

// globalFlags are the connection settings shared by every device command.
type globalFlags struct {
	hwServer string
	csServer string
	backend  string
	pdi      string
	ltx      string
}

func newRootCommand(ctx context.Context, cfg *config.Config, logger *log.Logger) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "vdbg",
		Short:         "Versal ACAP hardware debug console",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	persistent := root.PersistentFlags()
	persistent.StringVar(&flags.hwServer, "hw-server", "", "hw_server URL, e.g. TCP:localhost:3121")
	persistent.StringVar(&flags.csServer, "cs-server", "", "cs_server URL, e.g. TCP:localhost:3042")
	persistent.StringVar(&flags.backend, "backend", "", "device backend (default from config)")
	persistent.StringVar(&flags.pdi, "pdi", "", "program this PDI file after connecting")
	persistent.StringVar(&flags.ltx, "ltx", "", "probe file used for PCIe and ILA discovery")

	env := &environment{cfg: cfg, logger: logger, flags: flags}
	root.AddCommand(
		newTUICommand(env),
		newProgramCommand(env),
		newReadCommand(env),
		newWriteCommand(env),
		newLtssmCommand(env),
		newIlaCommand(env),
		newEyeScanCommand(env),
		newStatusCommand(env),
		newJournalCommand(env),
		newBugreportCommand(env),
	)

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if logger == nil {
			return errors.New("logger is required")
		}
		if cfg == nil {
			return errors.New("config is required")
		}
		logger.With("command", cmd.Name()).Debug("command invocation")
		return nil
	}

	_ = ctx
	return root
}

// resolveCommandName returns the first non-flag argument, or "root".
func resolveCommandName(args []string) string {
	for _, arg := range args {
		if arg == "" || strings.HasPrefix(arg, "-") {
			continue
		}
		return arg
	}
	return "root"
}

func redactArgs(args []string) []string {
	redacted := make([]string, 0, len(args))
	maskNext := false
	for _, arg := range args {
		if maskNext {
			redacted = append(redacted, "<redacted>")
			maskNext = false
			continue
		}
		trimmed := strings.TrimSpace(arg)
		if key, _, ok := strings.Cut(trimmed, "="); ok && isSensitiveToken(strings.ToLower(key)) {
			redacted = append(redacted, key+"=<redacted>")
			continue
		}
		if isSensitiveToken(strings.ToLower(trimmed)) {
			maskNext = true
		}
		redacted = append(redacted, trimmed)
	}
	return redacted
}

// isSensitiveToken matches flag names and snake_case config keys alike.
func isSensitiveToken(value string) bool {
	value = strings.ReplaceAll(strings.ToLower(value), "_", "-")
	for _, candidate := range []string{"token", "password", "passwd", "secret", "api-key", "apikey", "private-key", "access-key", "credential", "auth", "bearer"} {
		if strings.Contains(value, candidate) {
			return true
		}
	}
	return false
}
