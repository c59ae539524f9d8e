// Terminal chat client.
//
// Screens
// -------
//   stateName – centered form asking for a display name (the handshake)
//   stateChat – full-screen chat with a scrollable message viewport
//
// Concurrency
// -----------
//   A single goroutine reads from the TCP connection and forwards each read to
//   the pkts channel.  The Bubbletea event loop consumes one read at a time via
//   waitForPkt (a tea.Cmd), immediately queuing the next read after each one
//   is processed.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"namedchat/internal/protocol"
)

const readBufSize = 4096

// ---------------------------------------------------------------------------
// Styles
// ---------------------------------------------------------------------------

var (
	purple = lipgloss.Color("99")
	cyan   = lipgloss.Color("86")
	red    = lipgloss.Color("196")
	yellow = lipgloss.Color("220")
	gray   = lipgloss.Color("241")
	white  = lipgloss.Color("255")
	orange = lipgloss.Color("214")
	blue   = lipgloss.Color("75")
	pink   = lipgloss.Color("205")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(purple).
			Foreground(white).
			Padding(0, 1)

	footerBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), true, false, false, false).
				BorderForeground(gray).
				Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(purple).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(cyan).
			Width(10)

	hintStyle = lipgloss.NewStyle().
			Foreground(gray).
			Italic(true)

	errorStyle   = lipgloss.NewStyle().Foreground(red)
	sysStyle     = lipgloss.NewStyle().Foreground(yellow).Italic(true)
	tsStyle      = lipgloss.NewStyle().Foreground(gray)
	myNameStyle  = lipgloss.NewStyle().Bold(true).Foreground(orange)
	peerStyle    = lipgloss.NewStyle().Bold(true).Foreground(blue)
	privateStyle = lipgloss.NewStyle().Bold(true).Foreground(pink)
)

// ---------------------------------------------------------------------------
// Bubbletea message types
// ---------------------------------------------------------------------------

type serverPktMsg []byte      // one read from the server
type disconnectedMsg struct{} // server closed the connection

// ---------------------------------------------------------------------------
// Application state
// ---------------------------------------------------------------------------

type appState int

const (
	stateName appState = iota
	stateChat
)

// ---------------------------------------------------------------------------
// Model
// ---------------------------------------------------------------------------

type model struct {
	conn net.Conn
	pkts chan []byte // goroutine → bubbletea bridge

	state     appState
	me        string
	nameInput textinput.Model
	statusMsg string

	// Chat
	ready     bool
	viewport  viewport.Model
	chatInput textinput.Model
	chatLines []string
	received  int // reads since the handshake

	width, height int
}

func newModel(conn net.Conn, pkts chan []byte, name string) model {
	ni := textinput.New()
	ni.Placeholder = "display name"
	ni.Focus()
	ni.CharLimit = 32
	ni.Width = 32

	ci := textinput.New()
	ci.Placeholder = "Type a message, or !private <name> <text>…"
	ci.CharLimit = 500

	m := model{
		conn:      conn,
		pkts:      pkts,
		state:     stateName,
		nameInput: ni,
		chatInput: ci,
	}
	if name != "" {
		m = m.handshake(name)
	}
	return m
}

// handshake sends name as the first message and switches to the chat screen.
// The server answers a rejected name by closing the connection.
func (m model) handshake(name string) model {
	sendLine(m.conn, name)
	m.me = name
	m.state = stateChat
	m.nameInput.Blur()
	m.chatInput.Focus()
	return m
}

// ---------------------------------------------------------------------------
// Tea interface – Init
// ---------------------------------------------------------------------------

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForPkt(m.pkts))
}

// ---------------------------------------------------------------------------
// Tea interface – Update
// ---------------------------------------------------------------------------

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, m.vpHeight())
			m.ready = true
			m.viewport.SetContent(strings.Join(m.chatLines, "\n"))
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = m.vpHeight()
		}
		m.chatInput.Width = msg.Width - 4
		return m, nil

	case serverPktMsg:
		m.received++
		for _, line := range splitLines(string(msg)) {
			m.appendChat(m.renderLine(line))
		}
		return m, waitForPkt(m.pkts)

	case disconnectedMsg:
		switch {
		case m.state == stateChat && m.received == 0:
			m.statusMsg = fmt.Sprintf("server closed the connection: name %q is empty or taken", m.me)
		default:
			m.statusMsg = "disconnected from server"
		}
		return m, tea.Quit

	case tea.KeyMsg:
		switch m.state {
		case stateName:
			return m.handleNameKey(msg)
		case stateChat:
			return m.handleChatKey(msg)
		}
	}
	return m, nil
}

// vpHeight returns the number of lines available for the chat viewport.
func (m model) vpHeight() int {
	// header (1) + footer border (1) + footer input (1) = 3 lines reserved
	h := m.height - 3
	if h < 1 {
		h = 1
	}
	return h
}

// ---------------------------------------------------------------------------
// Key handlers
// ---------------------------------------------------------------------------

func (m model) handleNameKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit

	case tea.KeyEnter:
		name := strings.TrimSpace(m.nameInput.Value())
		if name == "" {
			m.statusMsg = "a display name is required"
			return m, nil
		}
		m.statusMsg = ""
		return m.handshake(name), textinput.Blink
	}

	var cmd tea.Cmd
	m.nameInput, cmd = m.nameInput.Update(msg)
	return m, cmd
}

func (m model) handleChatKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		sendLine(m.conn, string(protocol.Exit))
		return m, tea.Quit

	case tea.KeyCtrlU:
		sendLine(m.conn, string(protocol.UserList))
		return m, nil

	case tea.KeyEnter:
		text := strings.TrimSpace(m.chatInput.Value())
		if text == "" {
			return m, nil
		}
		m.chatInput.Reset()

		line, err := outboundLine(text)
		if err != nil {
			m.appendChat(errorStyle.Render("⚠ " + err.Error()))
			return m, nil
		}
		sendLine(m.conn, line)
		if d, _ := protocol.Parse(line); d == protocol.Exit {
			m.statusMsg = "bye"
			return m, tea.Quit
		}
		return m, nil

	case tea.KeyPgUp:
		m.viewport.HalfViewUp()
		return m, nil

	case tea.KeyPgDown:
		m.viewport.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.chatInput, cmd = m.chatInput.Update(msg)
	return m, cmd
}

// outboundLine sends text starting with "!" as a directive and wraps anything
// else in a broadcast.
func outboundLine(text string) (string, error) {
	if strings.HasPrefix(text, "!") {
		return text, nil
	}
	return protocol.Compose(protocol.Broadcast, text)
}

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

// renderLine colours one delivered line by its author.
func (m model) renderLine(line string) string {
	ts := tsStyle.Render("[" + time.Now().Format("15:04:05") + "]")

	author, text, ok := strings.Cut(line, ": ")
	switch {
	case !ok:
		return ts + " " + line
	case author == protocol.SystemName:
		return ts + " " + sysStyle.Render("⚡ "+text)
	case strings.HasSuffix(author, " (private)"):
		return ts + " " + privateStyle.Render(author) + ": " + text
	case author == m.me:
		return ts + " " + myNameStyle.Render(author) + ": " + text
	default:
		return ts + " " + peerStyle.Render(author) + ": " + text
	}
}

// appendChat adds a rendered line and scrolls the viewport to the bottom.
func (m *model) appendChat(line string) {
	m.chatLines = append(m.chatLines, line)
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.chatLines, "\n"))
	m.viewport.GotoBottom()
}

// ---------------------------------------------------------------------------
// Tea interface – View
// ---------------------------------------------------------------------------

func (m model) View() string {
	switch m.state {
	case stateName:
		return m.viewName()
	case stateChat:
		return m.viewChat()
	}
	return ""
}

func (m model) viewName() string {
	if m.width == 0 {
		return "\n  Connecting to server…"
	}

	var status string
	if m.statusMsg != "" {
		status = errorStyle.Render(m.statusMsg)
	}

	form := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("  Named Chat  "),
		"",
		labelStyle.Render("Name")+"  "+m.nameInput.View(),
		"",
		hintStyle.Render("Enter: join   Ctrl+C: quit"),
		"",
		status,
	)

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, form)
}

func (m model) viewChat() string {
	if !m.ready {
		return "\n  Connecting…"
	}

	hdr := headerStyle.
		Width(m.width).
		Render(fmt.Sprintf(" Named Chat  ·  %s  ·  Ctrl+U: users  PgUp/Dn: scroll  Ctrl+C: quit", m.me))

	footer := footerBorderStyle.
		Width(m.width - 2).
		Render(m.chatInput.View())

	return lipgloss.JoinVertical(lipgloss.Left, hdr, m.viewport.View(), footer)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// waitForPkt returns a tea.Cmd that blocks until the next read arrives on ch.
// When ch is closed (server disconnected), it returns disconnectedMsg.
func waitForPkt(ch <-chan []byte) tea.Cmd {
	return func() tea.Msg {
		data, ok := <-ch
		if !ok {
			return disconnectedMsg{}
		}
		return serverPktMsg(data)
	}
}

// sendLine writes one newline-terminated line to conn.
func sendLine(conn net.Conn, line string) {
	conn.Write([]byte(line + "\n"))
}

// splitLines breaks one read into display lines.  The server may terminate
// lines with \n or deliver them bare, one per read.
func splitLines(chunk string) []string {
	var out []string
	for _, l := range strings.Split(chunk, "\n") {
		if l = strings.TrimRight(l, "\r"); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	name := flag.String("name", "", "display name (prompted for when empty)")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	// pkts bridges the TCP reader goroutine and the Bubbletea event loop.
	pkts := make(chan []byte, 64)

	// Reader goroutine: TCP → pkts channel.
	go func() {
		defer close(pkts)
		buf := make([]byte, readBufSize)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				pkts <- data
			}
			if err != nil {
				return
			}
		}
	}()

	p := tea.NewProgram(
		newModel(conn, pkts, strings.TrimSpace(*name)),
		tea.WithAltScreen(),       // use the alternate screen buffer
		tea.WithMouseCellMotion(), // enable mouse wheel scrolling
	)
	final, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if m, ok := final.(model); ok && m.statusMsg != "" {
		fmt.Println(m.statusMsg)
	}
}
