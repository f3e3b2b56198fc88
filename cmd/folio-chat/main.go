// Command folio-chat is a terminal chat client for a folio server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/folio/folio/chat"
	"github.com/ZanzyTHEbar/folio/folio/chatclient"
	"github.com/ZanzyTHEbar/folio/folio/config"
	"github.com/ZanzyTHEbar/folio/folio/logging"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

type theme struct {
	header    lipgloss.Style
	user      lipgloss.Style
	bot       lipgloss.Style
	status    lipgloss.Style
	errStatus lipgloss.Style
	footer    lipgloss.Style
}

func newTheme() theme {
	return theme{
		header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#05ffa1")).Padding(0, 1),
		user:      lipgloss.NewStyle().Foreground(lipgloss.Color("#7aa2f7")).Bold(true),
		bot:       lipgloss.NewStyle().Foreground(lipgloss.Color("#ff71ce")).Bold(true),
		status:    lipgloss.NewStyle().Foreground(lipgloss.Color("#7aa2f7")),
		errStatus: lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f87")).Bold(true),
		footer:    lipgloss.NewStyle().Foreground(lipgloss.Color("#6c7086")),
	}
}

// Messages delivered to Update.
type (
	replyMsg struct {
		seq  int
		resp *chat.Response
		err  error
	}
	pollDueMsg struct{ seq int }
	healthMsg  struct{ err error }
)

type model struct {
	machine   chatclient.Machine
	session   chatclient.Session
	transport chatclient.Transport
	timeout   time.Duration
	logger    zerolog.Logger

	lines    []string
	input    textinput.Model
	timeline viewport.Model
	theme    theme
	server   string
	online   bool
	width    int
	height   int
}

func newModel(cfg config.ClientConfig, transport chatclient.Transport, logger zerolog.Logger) model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 2000
	input.Placeholder = "Ask about the owner, pass a message along, or schedule a meeting"
	input.Focus()

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return model{
		machine:   chatclient.Machine{Interval: cfg.PollInterval, MaxAttempts: cfg.MaxPollAttempts},
		session:   chatclient.NewSession(cfg.Username),
		transport: transport,
		timeout:   cfg.RequestTimeout,
		logger:    logger,
		input:     input,
		timeline:  viewport.New(0, 0),
		theme:     newTheme(),
		server:    cfg.ServerURL,
		online:    true,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.healthCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(msg.Width-4, 10)
		m.timeline.Width = msg.Width
		m.timeline.Height = max(msg.Height-4, 3)
		m.refresh()
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			text := m.input.Value()
			m.input.Reset()
			cmds = append(cmds, m.step(chatclient.UserInput{Text: text}))
		}
	case replyMsg:
		if msg.err != nil {
			m.logger.Warn().Err(msg.err).Int("seq", msg.seq).Msg("chat request failed")
			cmds = append(cmds, m.step(chatclient.TransportFailure{Seq: msg.seq, Err: msg.err}))
		} else {
			cmds = append(cmds, m.step(chatclient.Reply{Seq: msg.seq, Response: msg.resp}))
		}
	case pollDueMsg:
		cmds = append(cmds, m.step(chatclient.PollDue{Seq: msg.seq}))
	case healthMsg:
		m.online = msg.err == nil
		if msg.err != nil {
			m.logger.Warn().Err(msg.err).Msg("backend offline")
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.timeline, cmd = m.timeline.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// step feeds ev to the machine and turns its effects into commands.
func (m *model) step(ev chatclient.Event) tea.Cmd {
	var effects []chatclient.Effect
	m.session, effects = m.machine.Step(m.session, ev)

	var cmds []tea.Cmd
	for _, eff := range effects {
		switch eff := eff.(type) {
		case chatclient.Render:
			m.appendLine(eff)
		case chatclient.Post:
			cmds = append(cmds, m.postCmd(eff))
		case chatclient.Schedule:
			seq := eff.Seq
			cmds = append(cmds, tea.Tick(eff.After, func(time.Time) tea.Msg { return pollDueMsg{seq: seq} }))
		}
	}
	m.refresh()
	return tea.Batch(cmds...)
}

func (m model) postCmd(p chatclient.Post) tea.Cmd {
	transport, timeout := m.transport, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		resp, err := transport.Post(ctx, p.Request)
		return replyMsg{seq: p.Seq, resp: resp, err: err}
	}
}

func (m model) healthCmd() tea.Cmd {
	transport := m.transport
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return healthMsg{err: transport.Health(ctx)}
	}
}

func (m *model) appendLine(r chatclient.Render) {
	label := m.theme.bot.Render("folio")
	if r.Role == chat.RoleUser {
		label = m.theme.user.Render("you")
	}
	m.lines = append(m.lines, fmt.Sprintf("%s  %s", label, r.Text))
}

func (m *model) refresh() {
	content := strings.Join(m.lines, "\n")
	if m.timeline.Width > 0 {
		content = lipgloss.NewStyle().Width(m.timeline.Width).Render(content)
	}
	m.timeline.SetContent(content)
	m.timeline.GotoBottom()
}

func (m model) View() string {
	header := m.theme.header.Render("folio chat · " + m.server)

	var status string
	switch {
	case !m.online:
		status = m.theme.errStatus.Render("offline")
	case !m.session.State.Terminal():
		status = m.theme.status.Render(string(m.session.State) + "…")
	default:
		status = m.theme.status.Render("ready")
	}

	footer := m.theme.footer.Render("enter to send · esc to quit")
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.timeline.View(),
		status,
		m.input.View(),
		footer,
	)
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "folio-chat:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("folio-chat", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to a config file")
	flags.String("server", "", "folio server URL")
	flags.String("username", "", "name sent with each message")
	logFile := flags.String("log-file", "", "write logs to this file instead of discarding them")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfigWithFlags(*configPath, flags, map[string]string{
		"server":   "client.server_url",
		"username": "client.username",
	})
	if err != nil {
		return err
	}
	if cfg.Client.Username == "" {
		cfg.Client.Username = currentUser()
	}

	// The TUI owns the terminal, so logs go to a file or nowhere.
	var w io.Writer = io.Discard
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	logger := logging.New(cfg.Log, w)

	transport := chatclient.NewHTTPTransport(cfg.Client.ServerURL, nil, cfg.Client.RequestTimeout)
	_, err = tea.NewProgram(newModel(cfg.Client, transport, logger), tea.WithAltScreen()).Run()
	return err
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "visitor"
}
