// Package render turns delivered task events into view state and operator
// notifications. It never touches the device and never starts or stops tasks; every
// method runs on the controlling goroutine.
package render

import (
	"fmt"
	"strconv"
	"time"

	"github.com/versal-debug/vdbg/internal/ops"
	"github.com/versal-debug/vdbg/internal/session"
	"github.com/versal-debug/vdbg/internal/signal"
	"github.com/versal-debug/vdbg/internal/task"
)

const (
	maxIlaRows       = 64
	maxNotifications = 50
)

// Level grades a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is one message for the operator.
type Notification struct {
	Kind    task.Kind
	Level   Level
	Message string
	At      time.Time
}

// Activity is the progress indicator of one kind.
type Activity struct {
	Running bool
	Percent int
	Status  string
	Failed  bool
}

// IlaView is the latest capture and the analyzer status.
type IlaView struct {
	Status   string
	Fill     int
	Captures int
	Probes   []string
	Rows     [][]string
	CSV      string
	FileSize string
}

// EyeScanView is one scan's progress, status and final plot.
type EyeScanView struct {
	Name    string
	Percent int
	Status  string
	PNG     []byte
}

// State is everything the views draw.
type State struct {
	Info        session.Info
	Discovery   session.Discovery
	Links       session.LinkSetup
	Registers   []ops.RegisterReading
	RecordsCSV  string
	RecordsHTML string
	Written     []ops.WriteResult
	Ltssm       []byte
	LtssmFrames int
	Ila         IlaView
	EyeScans    []EyeScanView
	Activity    map[task.Kind]Activity
}

// Renderer applies events to State.
type Renderer struct {
	state         State
	notifications []Notification
	onNotify      func(Notification)
}

// New creates a renderer. onNotify, when set, is called for every new notification.
func New(onNotify func(Notification)) *Renderer {
	return &Renderer{
		state:    State{Activity: map[task.Kind]Activity{}},
		onNotify: onNotify,
	}
}

// State returns the current view state.
func (r *Renderer) State() *State { return &r.state }

// Notifications returns the retained notifications, oldest first.
func (r *Renderer) Notifications() []Notification {
	return append([]Notification(nil), r.notifications...)
}

// Started marks kind as running before its first event arrives.
func (r *Renderer) Started(kind task.Kind) {
	r.state.Activity[kind] = Activity{Running: true}
	if kind == task.KindEyeScan {
		for i := range r.state.EyeScans {
			r.state.EyeScans[i].Percent = 0
			r.state.EyeScans[i].PNG = nil
		}
	}
}

// Apply folds one event into the state.
func (r *Renderer) Apply(ev signal.Event) {
	kind := task.Kind(ev.Kind)
	activity := r.state.Activity[kind]

	switch ev.Type {
	case signal.TypeProgress:
		activity.Running = true
		activity.Percent = clamp(ev.Progress.Percent)
		activity.Status = ev.Progress.Status
		if kind == task.KindIlaCapture {
			r.state.Ila.Fill = ev.Progress.Percent
			if ev.Progress.Status != "" {
				r.state.Ila.Status = ev.Progress.Status
			}
		}
	case signal.TypePartial:
		r.applyPayload(ev)
	case signal.TypeError:
		activity.Failed = true
		r.notify(kind, LevelError, fmt.Sprintf("The %s failed: %s", kind.Label(), ev.Message), ev.Timestamp)
	case signal.TypeFinished:
		activity.Running = false
		if !activity.Failed {
			activity.Status = "done"
		}
	}
	r.state.Activity[kind] = activity
}

func (r *Renderer) applyPayload(ev signal.Event) {
	kind := task.Kind(ev.Kind)
	switch p := ev.Payload.(type) {
	case session.Info:
		r.state.Info = p
		r.notify(kind, LevelInfo, "Connected to "+p.Device, ev.Timestamp)
	case session.Discovery:
		r.state.Discovery = p
		r.state.Info.Programmed = true
		for _, warning := range p.Warnings {
			r.notify(kind, LevelError, warning, ev.Timestamp)
		}
	case session.LinkSetup:
		r.state.Links = p
		r.state.EyeScans = make([]EyeScanView, len(p.EyeScans))
		for i, name := range p.EyeScans {
			r.state.EyeScans[i] = EyeScanView{Name: name, Status: "Not Started"}
		}
	case ops.RegisterSnapshot:
		r.state.Registers = p.Readings
	case ops.RecordsSaved:
		r.state.RecordsCSV, r.state.RecordsHTML = p.CSV, p.HTML
		r.notify(kind, LevelInfo, "Register history saved to "+p.HTML, ev.Timestamp)
	case ops.WriteResult:
		r.state.Written = append(r.state.Written, p)
	case ops.LtssmFrame:
		r.state.Ltssm = p.PNG
		r.state.LtssmFrames++
	case ops.IlaFrame:
		r.applyIlaFrame(p)
	case ops.EyeScanProgress:
		view := r.eyeScan(p.Index, p.Name)
		view.Percent, view.Status = p.Percent, p.Status
	case ops.EyeScanResult:
		view := r.eyeScan(p.Index, p.Name)
		view.Status, view.PNG = p.Status, p.PNG
		view.Percent = 100
	case ops.PcieResetDone:
		r.state.Ltssm, r.state.LtssmFrames = nil, 0
		r.notify(kind, LevelInfo, "PCIe core reset", ev.Timestamp)
	case ops.DeviceResetDone:
		r.Reset()
		r.notify(kind, LevelInfo, "Device reset; reconnect to continue", ev.Timestamp)
	case ops.SessionResetDone:
		r.notify(kind, LevelInfo, "Session released", ev.Timestamp)
	}
}

func (r *Renderer) applyIlaFrame(frame ops.IlaFrame) {
	ila := &r.state.Ila
	ila.Captures = frame.Capture
	ila.CSV = frame.CSV
	ila.FileSize = frame.FileSize
	ila.Probes = append([]string(nil), frame.Waveform.Probes...)

	rows := frame.Waveform.Rows()
	if rows > maxIlaRows {
		rows = maxIlaRows
	}
	ila.Rows = make([][]string, rows)
	for i := 0; i < rows; i++ {
		row := make([]string, len(ila.Probes))
		for col, probe := range ila.Probes {
			if samples := frame.Waveform.Samples[probe]; i < len(samples) {
				row[col] = strconv.FormatUint(samples[i], 10)
			}
		}
		ila.Rows[i] = row
	}
}

func (r *Renderer) eyeScan(index int, name string) *EyeScanView {
	for len(r.state.EyeScans) <= index {
		r.state.EyeScans = append(r.state.EyeScans, EyeScanView{})
	}
	view := &r.state.EyeScans[index]
	if view.Name == "" {
		view.Name = name
	}
	return view
}

// Reset drops device-derived state after the session went away. Notifications stay.
func (r *Renderer) Reset() {
	r.state = State{Activity: r.state.Activity}
}

// Notify records a notification that did not come from a task event, such as a
// validation failure.
func (r *Renderer) Notify(kind task.Kind, level Level, message string) {
	r.notify(kind, level, message, time.Now().UTC())
}

func (r *Renderer) notify(kind task.Kind, level Level, message string, at time.Time) {
	n := Notification{Kind: kind, Level: level, Message: message, At: at}
	r.notifications = append(r.notifications, n)
	if len(r.notifications) > maxNotifications {
		r.notifications = r.notifications[len(r.notifications)-maxNotifications:]
	}
	if r.onNotify != nil {
		r.onNotify(n)
	}
}

func clamp(percent int) int {
	switch {
	case percent < 0:
		return 0
	case percent > 100:
		return 100
	default:
		return percent
	}
}
