package models

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/bkmeter/internal/tui/colors"
	"github.com/allbin/bkmeter/internal/tui/components"
	"github.com/allbin/bkmeter/internal/tui/keys"
	"github.com/allbin/bkmeter/internal/tui/styles"
	"github.com/allbin/bkmeter/scpi"
	"github.com/allbin/bkmeter/serial"
	"github.com/allbin/bkmeter/session"
)

// Meter is the session surface the UI drives. *session.Session implements it.
type Meter interface {
	Connect(ctx context.Context) error
	Poll(ctx context.Context) (session.Cycle, error)
	RequestMode(mode scpi.Mode) error
	SetPaused(paused bool) error
	Beep() error
	Exchange(cmd serial.Command) (string, error)
	Close() error
	State() session.State
	Paused() bool
	Identity() string
	Endpoint() (serial.Endpoint, bool)
	Last() session.Cycle
}

var _ Meter = (*session.Session)(nil)

// ConnectedMsg reports the outcome of Connect.
type ConnectedMsg struct {
	Err      error
	Path     string
	Line     string
	Identity string
	State    session.State
}

// Answer is the reply to a console command.
type Answer struct {
	Command string
	Text    string
	Err     error
}

// CycleMsg carries one poll and the requests applied before it.
type CycleMsg struct {
	Cycle   session.Cycle
	Err     error
	State   session.State
	Paused  bool
	Answers []Answer
}

// TickMsg schedules the next poll.
type TickMsg struct{}

// ClosedMsg is sent once the session has been closed.
type ClosedMsg struct{ Err error }

// Options configures a MeterModel.
type Options struct {
	Interval time.Duration
	Palette  colors.Display
	Tap      *Tap
	// Sinks receive every cycle shown on screen.
	Sinks []session.Sink
}

// request collects user input between polls. It is applied on the poll
// goroutine so the session only ever sees one caller.
type request struct {
	mode     *scpi.Mode
	pause    *bool
	beep     bool
	commands []string
}

func (r request) empty() bool {
	return r.mode == nil && r.pause == nil && !r.beep && len(r.commands) == 0
}

// MeterModel is the bubbletea model of the overlay display. At most one
// session call is in flight at any time.
type MeterModel struct {
	meter    Meter
	ctx      context.Context
	cancel   context.CancelFunc
	interval time.Duration
	tap      *Tap
	sinks    []session.Sink

	display *components.Display
	status  *components.StatusBar
	log     *components.FrameLog
	input   *components.Input
	help    help.Model
	keys    keys.MeterKeys

	cycle    session.Cycle
	state    session.State
	paused   bool
	inflight bool
	quitting bool
	showLog  bool
	ready    bool
	width    int
	err      error

	req request
}

func NewMeterModel(m Meter, opts Options) *MeterModel {
	if opts.Interval <= 0 {
		opts.Interval = session.DefaultInterval
	}
	if opts.Palette == (colors.Display{}) {
		opts.Palette = colors.DefaultDisplay()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &MeterModel{
		meter:    m,
		ctx:      ctx,
		cancel:   cancel,
		interval: opts.Interval,
		tap:      opts.Tap,
		sinks:    opts.Sinks,
		display:  components.NewDisplay(opts.Palette),
		status:   components.NewStatusBar(),
		log:      components.NewFrameLog(0, 0),
		input:    components.NewInput(),
		help:     help.New(),
		keys:     keys.NewMeterKeys(),
		cycle:    m.Last(),
		state:    m.State(),
	}
}

// Cycle returns the cycle on screen.
func (m *MeterModel) Cycle() session.Cycle { return m.cycle }

// Err returns the error that stopped polling, if any.
func (m *MeterModel) Err() error { return m.err }

// Busy reports whether a session call is in flight.
func (m *MeterModel) Busy() bool { return m.inflight }

func (m *MeterModel) Init() tea.Cmd {
	m.inflight = true
	return m.connect
}

func (m *MeterModel) connect() tea.Msg {
	err := m.meter.Connect(m.ctx)
	msg := ConnectedMsg{Err: err, State: m.meter.State(), Identity: m.meter.Identity()}
	if ep, ok := m.meter.Endpoint(); ok {
		msg.Path = ep.Path
		msg.Line = ep.Config.String()
	}
	return msg
}

func (m *MeterModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return TickMsg{} })
}

// startPoll hands the queued requests and one Poll to a command.
func (m *MeterModel) startPoll() tea.Cmd {
	req := m.req
	m.req = request{}
	m.inflight = true

	meter, ctx := m.meter, m.ctx
	return func() tea.Msg {
		var msg CycleMsg
		fatal := func(err error) bool {
			if session.IsFatal(err) {
				msg.Err = err
				msg.Cycle = meter.Last()
				return true
			}
			return false
		}

		if req.pause != nil && fatal(meter.SetPaused(*req.pause)) {
			return finish(meter, msg)
		}
		if req.mode != nil {
			_ = meter.RequestMode(*req.mode)
		}
		if req.beep && fatal(meter.Beep()) {
			return finish(meter, msg)
		}
		for _, c := range req.commands {
			text, err := meter.Exchange(serial.Command(c))
			msg.Answers = append(msg.Answers, Answer{Command: c, Text: text, Err: err})
			if fatal(err) {
				return finish(meter, msg)
			}
		}

		cycle, err := meter.Poll(ctx)
		msg.Cycle = cycle
		msg.Err = err
		return finish(meter, msg)
	}
}

func finish(meter Meter, msg CycleMsg) CycleMsg {
	msg.State = meter.State()
	msg.Paused = meter.Paused()
	return msg
}

func (m *MeterModel) closeSession() tea.Cmd {
	m.inflight = true
	meter := m.meter
	return func() tea.Msg {
		return ClosedMsg{Err: meter.Close()}
	}
}

func (m *MeterModel) quit() tea.Cmd {
	m.quitting = true
	m.status.SetStatus("Returning meter to front panel...", nil)
	if m.inflight {
		return nil
	}
	return m.closeSession()
}

func (m *MeterModel) wantPaused() bool {
	if m.req.pause != nil {
		return *m.req.pause
	}
	return m.paused
}

func (m *MeterModel) drainTap() {
	if m.tap != nil {
		m.log.Add(m.tap.Drain()...)
	}
}

func (m *MeterModel) publish(c session.Cycle) {
	for _, sink := range m.sinks {
		if err := sink.Publish(m.ctx, c); err != nil {
			m.status.SetStatus("Output failed", err)
		}
	}
}

func (m *MeterModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.ready = true
		m.display.SetWidth(msg.Width)
		m.status.SetWidth(msg.Width)
		m.input.SetWidth(msg.Width)
		m.help.Width = msg.Width
		logHeight := msg.Height - 9
		if logHeight < 3 {
			logHeight = 3
		}
		m.log.SetSize(msg.Width, logHeight)
		return m, nil

	case ConnectedMsg:
		m.inflight = false
		m.state = msg.State
		m.drainTap()
		if msg.Err != nil {
			m.err = msg.Err
			m.status.SetStatus("Connection failed", msg.Err)
			if m.quitting {
				return m, m.closeSession()
			}
			return m, nil
		}
		m.status.SetEndpoint(msg.Path, msg.Line, msg.Identity)
		m.status.SetStatus("Measuring", nil)
		if m.quitting {
			return m, m.closeSession()
		}
		return m, m.startPoll()

	case CycleMsg:
		m.inflight = false
		m.cycle = msg.Cycle
		m.state = msg.State
		m.paused = msg.Paused
		m.drainTap()
		m.publish(msg.Cycle)
		for _, a := range msg.Answers {
			text := a.Command + " → " + a.Text
			if a.Err != nil {
				text = a.Command + " → " + a.Err.Error()
			}
			m.log.AddNote(text)
		}

		if session.IsFatal(msg.Err) || m.state == session.StateClosed {
			m.err = msg.Err
			m.status.SetStatus("Connection lost", msg.Err)
			if m.quitting {
				return m, m.closeSession()
			}
			return m, nil
		}
		switch {
		case m.quitting:
			return m, m.closeSession()
		case m.paused:
			m.status.SetStatus("Front panel control", nil)
		case msg.Cycle.Err != nil:
			m.status.SetStatus("Waiting for meter", msg.Cycle.Err)
		default:
			m.status.SetStatus("Measuring", nil)
		}
		return m, m.tick()

	case TickMsg:
		if m.inflight || m.quitting || m.state == session.StateClosed {
			return m, nil
		}
		return m, m.startPoll()

	case ClosedMsg:
		m.inflight = false
		m.cancel()
		return m, tea.Quit

	case tea.KeyMsg:
		return m, m.handleKey(msg)
	}

	return m, nil
}

func (m *MeterModel) handleKey(msg tea.KeyMsg) tea.Cmd {
	if m.input.Focused() {
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.input.Blur()
			m.input.SetValue("")
			return nil
		case key.Matches(msg, m.keys.Enter):
			line := strings.TrimSpace(m.input.Value())
			if line != "" {
				m.req.commands = append(m.req.commands, line)
				m.input.AddToHistory(line)
				m.showLog = true
			}
			m.input.SetValue("")
			m.input.Blur()
			return nil
		case key.Matches(msg, m.keys.Up):
			m.input.NavigateHistoryUp()
			return nil
		case key.Matches(msg, m.keys.Down):
			m.input.NavigateHistoryDown()
			return nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return cmd
	}

	if key.Matches(msg, m.keys.Quit) {
		return m.quit()
	}
	if m.quitting {
		return nil
	}

	switch {
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Pause):
		p := !m.wantPaused()
		m.req.pause = &p
	case key.Matches(msg, m.keys.Beep):
		m.req.beep = true
	case key.Matches(msg, m.keys.Log):
		m.showLog = !m.showLog
	case key.Matches(msg, m.keys.Command):
		return m.input.Focus()
	default:
		if mode, ok := m.keys.ModeFor(msg); ok {
			m.req.mode = &mode
		}
	}
	return nil
}

// Pending reports whether user requests wait for the next poll.
func (m *MeterModel) Pending() bool { return !m.req.empty() }

func (m *MeterModel) View() string {
	parts := []string{m.display.View(m.cycle)}

	if m.err != nil && m.state == session.StateClosed {
		parts = append(parts, styles.ErrorStyle.Render("  "+m.err.Error()))
	}
	if m.showLog {
		parts = append(parts, styles.ContentBorderStyle.Render(m.log.View()))
	}
	if m.input.Focused() {
		parts = append(parts, m.input.View())
	}
	parts = append(parts, m.help.View(m.keys))
	parts = append(parts, m.status.Render(m.state, m.paused, time.Now().Format("15:04:05")))

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
