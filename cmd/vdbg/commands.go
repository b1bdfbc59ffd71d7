package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/versal-debug/vdbg/internal/config"
	"github.com/versal-debug/vdbg/internal/controller"
	"github.com/versal-debug/vdbg/internal/ops"
	"github.com/versal-debug/vdbg/internal/records"
	"github.com/versal-debug/vdbg/internal/render"
	"github.com/versal-debug/vdbg/internal/sdk"
	"github.com/versal-debug/vdbg/internal/sdk/sim"
	"github.com/versal-debug/vdbg/internal/session"
	"github.com/versal-debug/vdbg/internal/signal"
	"github.com/versal-debug/vdbg/internal/task"
	"github.com/versal-debug/vdbg/internal/tui"
)

// clientFactory opens the device backend named in the config or on the command line.
var clientFactory = func(backend string) (sdk.Client, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "sim":
		return sim.New(sim.DefaultOptions()), nil
	default:
		return nil, fmt.Errorf("backend %q is not available in this build", backend)
	}
}

// environment carries what every device command needs to build a controller.
type environment struct {
	cfg    *config.Config
	logger *log.Logger
	flags  *globalFlags
}

func (e *environment) backend() string {
	if e.flags.backend != "" {
		return e.flags.backend
	}
	return e.cfg.Backend
}

// controller builds a controller whose notifications are printed to errOut. A nil
// errOut keeps notifications in the renderer only.
func (e *environment) controller(errOut io.Writer) (*controller.Controller, error) {
	client, err := clientFactory(e.backend())
	if err != nil {
		return nil, err
	}
	facade := session.New(client, session.WithLogger(e.logger), session.WithDeviceFamily(e.cfg.DeviceFamily))
	options := []controller.Option{controller.WithLogger(e.logger)}
	if errOut != nil {
		options = append(options, controller.WithRenderer(render.New(func(n render.Notification) {
			fmt.Fprintf(errOut, "[%s] %s\n", strings.ToUpper(string(n.Level)), n.Message)
		})))
	}
	if e.cfg.RegisterJournal != "" {
		journal, err := records.OpenJournal(e.cfg.RegisterJournal)
		if err != nil {
			return nil, err
		}
		options = append(options, controller.WithJournal(journal))
	}
	return controller.New(facade, signal.NewLoop(), e.cfg, options...), nil
}

// session connects and, when --pdi is set, programs the device. The returned close
// function tears everything down.
func (e *environment) session(ctx context.Context, errOut io.Writer) (*controller.Controller, func(), error) {
	ctrl, err := e.controller(errOut)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(e.cfg))
		defer cancel()
		if err := ctrl.Shutdown(shutdownCtx); err != nil {
			e.logger.Error("shutdown incomplete", "error", err)
		}
	}

	if _, err := ctrl.Connect(e.flags.hwServer, e.flags.csServer); err != nil {
		closeFn()
		return nil, nil, err
	}
	if err := ctrl.Await(ctx, task.KindConnect); err != nil {
		closeFn()
		return nil, nil, err
	}
	if e.flags.pdi != "" {
		if _, err := ctrl.Program(e.flags.pdi, e.flags.ltx); err != nil {
			closeFn()
			return nil, nil, err
		}
		if err := ctrl.Await(ctx, task.KindProgram); err != nil {
			closeFn()
			return nil, nil, err
		}
	}
	return ctrl, closeFn, nil
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.TeardownTimeout > 0 {
		return cfg.TeardownTimeout
	}
	return 10 * time.Second
}

// runFor awaits kind until it finishes, the command is interrupted or duration passes.
func runFor(ctx context.Context, ctrl *controller.Controller, kind task.Kind, duration time.Duration) error {
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}
	return ctrl.Await(ctx, kind)
}

func newTUICommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Launch the interactive debug console",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, err := env.controller(nil)
			if err != nil {
				return err
			}
			hw, cs := env.cfg.ResolveServers(env.flags.hwServer, env.flags.csServer)
			model := tui.NewAppModel(ctrl,
				tui.WithServers(hw, cs),
				tui.WithFiles(env.flags.pdi, env.flags.ltx),
				tui.WithShutdownTimeout(shutdownTimeout(env.cfg)),
			)
			program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			_, runErr := program.Run()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(env.cfg))
			defer cancel()
			shutdownErr := ctrl.Shutdown(shutdownCtx)
			if errors.Is(runErr, tea.ErrProgramKilled) {
				runErr = nil
			}
			return errors.Join(runErr, shutdownErr)
		},
	}
}

func newProgramCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "program",
		Short: "Program the device and report the discovered cores",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if env.flags.pdi == "" {
				return errors.New("--pdi is required")
			}
			ctrl, closeFn, err := env.session(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeFn()
			return writeYAML(cmd.OutOrStdout(), ctrl.Renderer().State().Discovery)
		},
	}
}

func newReadCommand(env *environment) *cobra.Command {
	var (
		size        string
		target      string
		once        bool
		recordsFile string
		duration    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "read ADDRESSES",
		Short: "Read registers once or poll them until interrupted",
		Long: "ADDRESSES is a list of hex addresses separated by spaces or commas, or one of the " +
			"presets phy-ready, gt-reset-fsm and ltssm.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, closeFn, err := env.session(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeFn()

			_, err = ctrl.ReadRegisters(controller.RegisterReadRequest{
				Addresses:   strings.Join(args, " "),
				Size:        size,
				Target:      target,
				SingleShot:  once,
				RecordsFile: recordsFile,
			})
			if err != nil {
				return err
			}
			if err := runFor(cmd.Context(), ctrl, task.KindRegisterRead, duration); err != nil {
				return err
			}
			state := ctrl.Renderer().State()
			fmt.Fprintln(cmd.OutOrStdout(), readingsTable(state.Registers))
			if state.RecordsCSV != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "History saved to %s and %s\n", state.RecordsCSV, state.RecordsHTML)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&size, "size", "w", "access size: b, h or w")
	cmd.Flags().StringVar(&target, "target", "DPC", "memory target")
	cmd.Flags().BoolVar(&once, "once", false, "read a single time")
	cmd.Flags().StringVar(&recordsFile, "records", "", "save the value history to this CSV/HTML name")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop polling after this long")
	return cmd
}

func readingsTable(readings []ops.RegisterReading) string {
	t := table.New().Headers("Address", "Hex", "Binary")
	for _, reading := range readings {
		t.Row(reading.AddressHex(), reading.Hex, reading.Bin)
	}
	return t.String()
}

func newWriteCommand(env *environment) *cobra.Command {
	var (
		size   string
		target string
	)
	cmd := &cobra.Command{
		Use:   "write ADDRESSES VALUES",
		Short: "Write values to every listed register",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, closeFn, err := env.session(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeFn()

			_, err = ctrl.WriteRegisters(controller.RegisterWriteRequest{
				Addresses: args[0],
				Values:    args[1],
				Size:      size,
				Target:    target,
			})
			if err != nil {
				return err
			}
			if err := ctrl.Await(cmd.Context(), task.KindRegisterWrite); err != nil {
				return err
			}
			for _, written := range ctrl.Renderer().State().Written {
				fmt.Fprintf(cmd.OutOrStdout(), "%#x <- %s\n", written.Address, formatValues(written.Values))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&size, "size", "w", "access size: b, h or w")
	cmd.Flags().StringVar(&target, "target", "DPC", "memory target")
	return cmd
}

func formatValues(values []uint64) string {
	parts := make([]string, 0, len(values))
	for _, value := range values {
		parts = append(parts, fmt.Sprintf("%#x", value))
	}
	return strings.Join(parts, " ")
}

func newLtssmCommand(env *environment) *cobra.Command {
	var (
		once     bool
		out      string
		duration time.Duration
		reset    bool
	)
	cmd := &cobra.Command{
		Use:   "ltssm",
		Short: "Scan the PCIe LTSSM state history and save the plot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, closeFn, err := env.session(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeFn()

			if reset {
				if _, err := ctrl.ResetPcie(); err != nil {
					return err
				}
				if err := ctrl.Await(cmd.Context(), task.KindPcieReset); err != nil {
					return err
				}
			}
			if _, err := ctrl.ScanLtssm(once); err != nil {
				return err
			}
			if err := runFor(cmd.Context(), ctrl, task.KindLtssmScan, duration); err != nil {
				return err
			}
			path, err := records.SavePlot(out, ctrl.Renderer().State().Ltssm)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "LTSSM plot saved to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "refresh the plot a single time")
	cmd.Flags().StringVar(&out, "out", "ltssm", "plot file name")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop scanning after this long")
	cmd.Flags().BoolVar(&reset, "reset", false, "reset the PCIe core before scanning")
	return cmd
}

func newIlaCommand(env *environment) *cobra.Command {
	var (
		core     string
		mode     string
		triggers []string
		windows  string
		depth    string
		position string
		csv      string
		once     bool
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ila",
		Short: "Arm an ILA core and upload its captures",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, closeFn, err := env.session(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeFn()

			facade := ctrl.Facade()
			if core != "" {
				if err := facade.SelectIla(core); err != nil {
					return err
				}
			}
			for _, raw := range triggers {
				trigger, err := parseTrigger(raw)
				if err != nil {
					return err
				}
				if err := facade.AddProbeTrigger(trigger.Probe); err != nil {
					return err
				}
				if err := facade.SetProbeTrigger(trigger.Probe, trigger.Operator, trigger.Value); err != nil {
					return err
				}
			}

			_, err = ctrl.CaptureIla(controller.IlaRequest{
				Mode:            session.TriggerMode(mode),
				WindowCount:     windows,
				DataDepth:       depth,
				TriggerPosition: position,
				SingleShot:      once,
				CSV:             csv,
			})
			if err != nil {
				return err
			}
			if err := runFor(cmd.Context(), ctrl, task.KindIlaCapture, duration); err != nil {
				return err
			}
			ila := ctrl.Renderer().State().Ila
			fmt.Fprintf(cmd.OutOrStdout(), "%d capture(s), %d samples in the last one\n", ila.Captures, len(ila.Rows))
			if ila.CSV != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Samples saved to %s (%s)\n", ila.CSV, ila.FileSize)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&core, "core", "", "ILA core name (default: first discovered)")
	cmd.Flags().StringVar(&mode, "mode", string(session.TriggerBasic), "trigger mode: basic or immediate")
	cmd.Flags().StringArrayVar(&triggers, "trigger", nil, "probe condition such as counter==01XX (repeatable)")
	cmd.Flags().StringVar(&windows, "windows", "1", "window count")
	cmd.Flags().StringVar(&depth, "depth", "1024", "data depth")
	cmd.Flags().StringVar(&position, "position", "0", "trigger position")
	cmd.Flags().StringVar(&csv, "csv", "", "append samples to this CSV file")
	cmd.Flags().BoolVar(&once, "once", false, "capture a single time")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop capturing after this long")
	return cmd
}

var triggerOperators = []string{"==", "!=", "<=", ">=", "||", "<", ">"}

// parseTrigger splits "probe<op>value" on the first operator found.
func parseTrigger(raw string) (session.ProbeTrigger, error) {
	for _, op := range triggerOperators {
		if probe, value, ok := strings.Cut(raw, op); ok {
			probe, value = strings.TrimSpace(probe), strings.TrimSpace(value)
			if probe == "" || value == "" {
				break
			}
			return session.ProbeTrigger{Probe: probe, Operator: op, Value: value}, nil
		}
	}
	return session.ProbeTrigger{}, fmt.Errorf("trigger %q must look like probe==01XX", raw)
}

func newEyeScanCommand(env *environment) *cobra.Command {
	var (
		prefix string
		req    controller.EyeScanRequest
	)
	cmd := &cobra.Command{
		Use:   "eyescan",
		Short: "Create IBERT links, run one eye scan per transceiver and save the plots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, closeFn, err := env.session(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeFn()

			if _, err := ctrl.SetupLinks(); err != nil {
				return err
			}
			if err := ctrl.Await(cmd.Context(), task.KindLinkSetup); err != nil {
				return err
			}
			if _, err := ctrl.StartEyeScans(req); err != nil {
				return err
			}
			if err := ctrl.Await(cmd.Context(), task.KindEyeScan); err != nil {
				return err
			}
			for _, scan := range ctrl.Renderer().State().EyeScans {
				if len(scan.PNG) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", scan.Name, scan.Status)
					continue
				}
				path, err := records.SavePlot(prefix+"_"+scan.Name, scan.PNG)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s, plot saved to %s\n", scan.Name, scan.Status, path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "eye", "plot file prefix")
	cmd.Flags().IntVar(&req.HorizontalStep, "horizontal-step", 0, "horizontal step (default from config)")
	cmd.Flags().IntVar(&req.VerticalStep, "vertical-step", 0, "vertical step (default from config)")
	cmd.Flags().StringVar(&req.HorizontalRange, "horizontal-range", "", "horizontal range (default from config)")
	cmd.Flags().StringVar(&req.VerticalRange, "vertical-range", "", "vertical range (default from config)")
	cmd.Flags().Float64Var(&req.TargetBER, "target-ber", 0, "target bit error rate (default from config)")
	return cmd
}

type statusReport struct {
	Backend string           `yaml:"backend"`
	Session session.Snapshot `yaml:"session"`
	Journal string           `yaml:"register_journal,omitempty"`
}

func newStatusCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Connect and print the session state as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, closeFn, err := env.session(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeFn()
			return writeYAML(cmd.OutOrStdout(), statusReport{
				Backend: env.backend(),
				Session: ctrl.Facade().Snapshot(),
				Journal: env.cfg.RegisterJournal,
			})
		},
	}
}

func newJournalCommand(env *environment) *cobra.Command {
	var path string
	journal := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the register history journal",
	}
	journal.PersistentFlags().StringVar(&path, "journal", "", "journal file (default from config)")

	open := func() (*records.History, error) {
		if path == "" {
			path = env.cfg.RegisterJournal
		}
		if path == "" {
			return nil, errors.New("no journal configured; set register_journal or pass --journal")
		}
		j, err := records.OpenJournal(path)
		if err != nil {
			return nil, err
		}
		defer j.Close()
		return j.Replay()
	}

	journal.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the recorded register values",
			RunE: func(cmd *cobra.Command, _ []string) error {
				history, err := open()
				if err != nil {
					return err
				}
				t := table.New().Headers(records.CSVHeader...)
				for _, row := range records.Rows(history.Entries()) {
					t.Row(row.Address, row.Hex, row.Dec, row.Bin, row.Datetime)
				}
				fmt.Fprintln(cmd.OutOrStdout(), t.String())
				return nil
			},
		},
		&cobra.Command{
			Use:   "export NAME",
			Short: "Export the journal as CSV and HTML",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				history, err := open()
				if err != nil {
					return err
				}
				csvPath, htmlPath, err := records.Export(args[0], history.Entries())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "History saved to %s and %s\n", csvPath, htmlPath)
				return nil
			},
		},
	)
	return journal
}

func writeYAML(out io.Writer, value any) error {
	encoder := yaml.NewEncoder(out)
	encoder.SetIndent(2)
	if err := encoder.Encode(value); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return encoder.Close()
}
