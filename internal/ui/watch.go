package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"lanwake/internal/scan"
)

// ScanController is what the live view needs from the app.
type ScanController interface {
	StartScan(ctx context.Context) error
	StopScan()
	ClearResults()
	Subscribe() (<-chan scan.Snapshot, func())
}

type snapshotMsg scan.Snapshot

type streamClosedMsg struct{}

type scanErrMsg struct{ err error }

type watchKeyMap struct {
	Start key.Binding
	Stop  key.Binding
	Clear key.Binding
	Quit  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Stop, k.Clear, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Start, k.Stop}, {k.Clear, k.Quit}}
}

func defaultWatchKeys() watchKeyMap {
	return watchKeyMap{
		Start: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "scan")),
		Stop:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
		Clear: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear")),
		Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// WatchModel is the bubbletea model behind `lanwake watch`.
type WatchModel struct {
	ctx         context.Context
	ctrl        ScanController
	updates     <-chan scan.Snapshot
	unsubscribe func()
	autoStart   bool

	snap    scan.Snapshot
	spinner spinner.Model
	bar     progress.Model
	keys    watchKeyMap
	help    help.Model
	width   int
	status  string
}

// NewWatchModel subscribes to ctrl. The subscription ends when the model
// quits. With autoStart the first scan begins immediately.
func NewWatchModel(ctx context.Context, ctrl ScanController, autoStart bool) *WatchModel {
	updates, unsubscribe := ctrl.Subscribe()
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = ScanningStyle

	return &WatchModel{
		ctx:         ctx,
		ctrl:        ctrl,
		updates:     updates,
		unsubscribe: unsubscribe,
		autoStart:   autoStart,
		spinner:     sp,
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		keys:        defaultWatchKeys(),
		help:        help.New(),
		width:       MaxContentWidth,
	}
}

func waitForSnapshot(ch <-chan scan.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func (m *WatchModel) startScan() tea.Cmd {
	return func() tea.Msg {
		if err := m.ctrl.StartScan(m.ctx); err != nil {
			return scanErrMsg{err: err}
		}
		return nil
	}
}

// Init starts the spinner and the snapshot stream.
func (m *WatchModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, waitForSnapshot(m.updates)}
	if m.autoStart {
		cmds = append(cmds, m.startScan())
	}
	return tea.Batch(cmds...)
}

// Update handles key presses, resizes and scan snapshots.
func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.ctrl.StopScan()
			m.unsubscribe()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Start):
			m.status = ""
			return m, m.startScan()
		case key.Matches(msg, m.keys.Stop):
			m.ctrl.StopScan()
			m.status = "scan stopped"
		case key.Matches(msg, m.keys.Clear):
			m.ctrl.ClearResults()
			m.status = "results cleared"
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = min(msg.Width, MaxContentWidth)
		m.bar.Width = max(m.width-20, 10)
		m.help.Width = m.width
		return m, nil

	case snapshotMsg:
		m.snap = scan.Snapshot(msg)
		return m, waitForSnapshot(m.updates)

	case streamClosedMsg:
		return m, tea.Quit

	case scanErrMsg:
		if errors.Is(msg.err, scan.ErrScanInProgress) {
			m.status = "a scan is already running"
		} else {
			m.status = msg.err.Error()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the header, progress, device table and key help.
func (m *WatchModel) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("lanwake"))
	if m.snap.Subnet != "" {
		b.WriteString(MutedStyle.Render("  " + m.snap.Subnet + ".0/24"))
	}
	b.WriteString("\n\n")

	state := m.snap.State
	percent := 0.0
	if state.Total > 0 {
		percent = float64(state.Progress) / float64(state.Total)
	}
	if state.IsScanning {
		b.WriteString(m.spinner.View() + " ")
		b.WriteString(ScanningStyle.Render(fmt.Sprintf("scanning %d/%d", state.Progress, state.Total)))
	} else {
		b.WriteString(MutedStyle.Render(fmt.Sprintf("idle %d/%d", state.Progress, state.Total)))
	}
	b.WriteString("  " + m.bar.ViewAs(percent) + "\n\n")

	if len(m.snap.Devices) == 0 {
		b.WriteString(MutedStyle.Render("no devices yet") + "\n")
	} else {
		b.WriteString(DeviceTable(m.snap.Devices, m.width) + "\n")
		b.WriteString(MutedStyle.Render(fmt.Sprintf("%d devices", len(m.snap.Devices))) + "\n")
	}

	if m.status != "" {
		b.WriteString("\n" + m.status + "\n")
	}
	b.WriteString("\n" + m.help.View(m.keys))
	return b.String()
}

// RunWatch runs the live view until the user quits or ctx is cancelled.
func RunWatch(ctx context.Context, ctrl ScanController, autoStart bool) error {
	model := NewWatchModel(ctx, ctrl, autoStart)
	defer model.unsubscribe()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
