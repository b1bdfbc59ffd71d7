package main

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/versal-debug/vdbg/internal/config"
	"github.com/versal-debug/vdbg/internal/records"
)

const (
	bugreportLogLimit    = 3
	bugreportJournalTail = 20
)

var (
	bugreportNowFn = func() time.Time {
		return time.Now().UTC()
	}
	bugreportHomeDirFn = os.UserHomeDir
	bugreportGetwdFn   = os.Getwd
	bugreportEnvKeys   = []string{config.EnvHWServerURL, config.EnvCSServerURL, "OTEL_EXPORTER_OTLP_ENDPOINT", "VDBG_ENV"}
)

func newBugreportCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "bugreport",
		Short: "Collect a diagnostic bundle for debugging",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if env.logger != nil {
				env.logger.With("command", "bugreport").Info("collecting diagnostic bundle")
			}
			journal := ""
			if env.cfg != nil {
				journal = env.cfg.RegisterJournal
			}
			return runBugReport(cmd.Context(), journal, cmd.OutOrStdout())
		},
	}
}

// runBugReport gathers recent logs, redacted configs, the register journal tail and
// the server environment into vdbg-bugreport-<time>.tar.gz in the working directory.
func runBugReport(ctx context.Context, journalPath string, out io.Writer) error {
	homeDir, err := bugreportHomeDirFn()
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}
	homeDir = filepath.Clean(homeDir)
	if strings.TrimSpace(homeDir) == "" || homeDir == "." {
		return errors.New("home directory is not valid")
	}
	cwd, err := bugreportGetwdFn()
	if err != nil {
		return fmt.Errorf("resolve current directory: %w", err)
	}

	now := bugreportNowFn()
	bundle := &bugreportBundle{
		generated: now,
		summary:   bugreportSummary{Timestamp: now.Format(time.RFC3339), Version: Version},
	}
	if err := bundle.collect(ctx, homeDir, filepath.Clean(cwd), journalPath); err != nil {
		return err
	}

	bundlePath := filepath.Join(filepath.Clean(cwd), fmt.Sprintf("vdbg-bugreport-%s.tar.gz", now.Format("20060102-150405")))
	if err := bundle.write(bundlePath); err != nil {
		return err
	}
	if out == nil {
		out = os.Stdout
	}
	if _, err := fmt.Fprintf(out, "Bug report written to: %s. Share for debugging.\n", bundlePath); err != nil {
		return fmt.Errorf("write bugreport output: %w", err)
	}
	return nil
}

type bugreportSummary struct {
	Timestamp string
	Version   string
	SessionID string
	TaskID    string
	Warnings  []string
}

type bugreportFile struct {
	name string
	data []byte
}

// bugreportBundle holds the archive contents in memory until write.
type bugreportBundle struct {
	generated time.Time
	summary   bugreportSummary
	files     []bugreportFile
}

func (b *bugreportBundle) add(name string, data []byte) {
	b.files = append(b.files, bugreportFile{name: name, data: data})
}

func (b *bugreportBundle) warn(format string, args ...any) {
	b.summary.Warnings = append(b.summary.Warnings, fmt.Sprintf(format, args...))
}

func (b *bugreportBundle) collect(ctx context.Context, homeDir, cwd, journalPath string) error {
	steps := []func(){
		func() { b.addLogs(filepath.Join(homeDir, ".vdbg", "logs")) },
		func() { b.addConfig(filepath.Join(homeDir, ".vdbg", "config.toml"), "config-home.toml") },
		func() { b.addConfig(filepath.Join(cwd, ".vdbg", "config.toml"), "config-project.toml") },
		func() { b.addJournal(journalPath) },
		b.addEnvironment,
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("collect bugreport: %w", err)
		}
		step()
	}

	b.add("version.txt", []byte(fmt.Sprintf("vdbg version: %s\n", strings.TrimSpace(b.summary.Version))))
	b.add("last-run.txt", []byte(fmt.Sprintf("session_id: %s\ntask_id: %s\n", b.summary.SessionID, b.summary.TaskID)))
	b.add("README.txt", b.readme())
	return nil
}

// addLogs stages the newest log files and takes the last session_id/task_id pair
// found in them.
func (b *bugreportBundle) addLogs(dir string) {
	files, err := newestFiles(dir, bugreportLogLimit)
	if err != nil {
		b.warn("unable to read logs directory: %v", err)
		return
	}
	for _, file := range files {
		// #nosec G304 -- source path comes from the ~/.vdbg/logs listing.
		data, err := os.ReadFile(file.path)
		if err != nil {
			b.warn("unable to read log %s: %v", file.path, err)
			continue
		}
		b.add("logs/"+filepath.Base(file.path), data)
		if b.summary.SessionID == "" && b.summary.TaskID == "" {
			b.summary.SessionID, b.summary.TaskID = lastCorrelation(data)
		}
	}
	if b.summary.SessionID == "" && b.summary.TaskID == "" {
		b.warn("no session_id/task_id found in copied logs")
	}
}

func (b *bugreportBundle) addConfig(source, name string) {
	// #nosec G304 -- config paths are fixed under ~/.vdbg and ./.vdbg.
	data, err := os.ReadFile(source)
	if err != nil {
		b.warn("unable to read config: %v", err)
		b.add(name, []byte("# config unavailable\n"))
		return
	}
	b.add(name, []byte(redactSensitiveConfig(string(data))))
}

// addJournal lists the latest value of the most recently journaled addresses. A
// journal held open by a running session is reported as a warning.
func (b *bugreportBundle) addJournal(path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		b.warn("unable to read register journal: %v", err)
		return
	}
	journal, err := records.OpenJournal(path)
	if err != nil {
		b.warn("unable to open register journal: %v", err)
		return
	}
	history, err := journal.Replay()
	if closeErr := journal.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		b.warn("unable to replay register journal: %v", err)
		return
	}

	entries := history.Entries()
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("addresses: %d\n", len(entries)))
	if len(entries) > bugreportJournalTail {
		entries = entries[len(entries)-bugreportJournalTail:]
	}
	for _, entry := range entries {
		latest := entry.Values[len(entry.Values)-1]
		builder.WriteString(fmt.Sprintf("0x%08X %s %s (%d values)\n",
			entry.Address, latest.Hex, latest.At.Format(records.TimeLayout), len(entry.Values)))
	}
	b.add("register-journal.txt", []byte(builder.String()))
}

// addEnvironment records the server and telemetry variables that override config.
func (b *bugreportBundle) addEnvironment() {
	builder := strings.Builder{}
	for _, key := range bugreportEnvKeys {
		value, ok := os.LookupEnv(key)
		if !ok {
			value = "<unset>"
		}
		builder.WriteString(key + "=" + value + "\n")
	}
	b.add("environment.txt", []byte(builder.String()))
}

func (b *bugreportBundle) readme() []byte {
	builder := strings.Builder{}
	builder.WriteString("vdbg Bug Report\n===============\n\n")
	builder.WriteString(fmt.Sprintf("Generated: %s\nVersion: %s\n", b.summary.Timestamp, b.summary.Version))
	builder.WriteString(fmt.Sprintf("session_id: %s\ntask_id: %s\n\n", b.summary.SessionID, b.summary.TaskID))
	builder.WriteString("Included artifacts:\n")
	for _, file := range b.files {
		builder.WriteString("- " + file.name + "\n")
	}
	builder.WriteString("\nUse task_id to find the span of the failing operation.\n")
	if len(b.summary.Warnings) > 0 {
		builder.WriteString("\nWarnings:\n")
		for _, warning := range b.summary.Warnings {
			builder.WriteString("- " + warning + "\n")
		}
	}
	return []byte(builder.String())
}

func (b *bugreportBundle) write(destination string) (err error) {
	// #nosec G304 -- destination is a generated name in the working directory.
	archive, err := os.OpenFile(destination, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create archive %s: %w", destination, err)
	}
	gz := gzip.NewWriter(archive)
	tw := tar.NewWriter(gz)
	defer func() {
		err = errors.Join(err, tw.Close(), gz.Close(), archive.Close())
		if err != nil {
			err = fmt.Errorf("archive bugreport: %w", err)
		}
	}()

	for _, file := range b.files {
		header := &tar.Header{
			Name:    file.name,
			Mode:    0o600,
			Size:    int64(len(file.data)),
			ModTime: b.generated,
		}
		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("write tar header for %s: %w", file.name, err)
		}
		if _, err := tw.Write(file.data); err != nil {
			return fmt.Errorf("write %s: %w", file.name, err)
		}
	}
	return nil
}

// lastCorrelation scans JSON log lines from the end for session_id and task_id.
func lastCorrelation(data []byte) (string, string) {
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		record := map[string]any{}
		if err := json.Unmarshal([]byte(strings.TrimSpace(lines[i])), &record); err != nil {
			continue
		}
		sessionID, _ := record["session_id"].(string)
		taskID, _ := record["task_id"].(string)
		if sessionID != "" || taskID != "" {
			return strings.TrimSpace(sessionID), strings.TrimSpace(taskID)
		}
	}
	return "", ""
}

func redactSensitiveConfig(configText string) string {
	lines := strings.Split(configText, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "[") {
			continue
		}
		key, _, ok := strings.Cut(line, "=")
		if !ok || !isSensitiveToken(strings.TrimSpace(key)) {
			continue
		}
		lines[i] = key + "= \"***REDACTED***\""
	}
	return strings.Join(lines, "\n")
}

type datedFile struct {
	path    string
	modTime time.Time
}

// newestFiles lists the regular files in dir, newest first, capped at limit.
func newestFiles(dir string, limit int) ([]datedFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make([]datedFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, datedFile{path: filepath.Join(dir, entry.Name()), modTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}
