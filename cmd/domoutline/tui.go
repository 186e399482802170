package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hazyhaar/domoutline/dommodel"
	"github.com/hazyhaar/domoutline/loop"
	"github.com/hazyhaar/domoutline/outline"
)

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Expand   key.Binding
	Collapse key.Binding
	Toggle   key.Binding
	EditText key.Binding
	EditTag  key.Binding
	EditAttr key.Binding
	Markup   key.Binding
	Delete   key.Binding
	Shadow   key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Expand:   key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "expand")),
	Collapse: key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "collapse")),
	Toggle:   key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "toggle")),
	EditText: key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit text")),
	EditTag:  key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "rename")),
	EditAttr: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add attribute")),
	Markup:   key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "edit as html")),
	Delete:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "delete")),
	Shadow:   key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "ua shadow")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

var (
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
)

// bridge owns every access to the outline. Its methods run on the loop;
// the tea model only ever sees snapshots.
type bridge struct {
	ctx     context.Context
	l       *loop.Loop
	o       *outline.Outline
	styles  outline.Styles
	session *outline.EditSession
}

type snapshot struct {
	lines  []string
	kinds  []outline.RowKind
	cursor int
	top    int
	hidden bool
	xpath  string
	stats  outline.Stats
}

type (
	changedMsg struct{}
	snapMsg    struct {
		snap   snapshot
		status string
		err    error
	}
	editMsg struct {
		prompt string
		value  string
		ready  bool
	}
	pollEditMsg struct{}
	editDoneMsg struct{}
)

// do runs fn on the loop and returns the resulting snapshot as a message.
func (b *bridge) do(cursor, height int, fn func(rows []outline.VisibleRow, cursor int) (int, string, error)) tea.Cmd {
	return func() tea.Msg {
		var msg snapMsg
		err := b.l.Call(b.ctx, func() {
			rows := b.o.VisibleRows()
			c := cursor
			var status string
			var err error
			if fn != nil {
				c, status, err = fn(rows, clamp(cursor, len(rows)))
			}
			msg = snapMsg{snap: b.capture(c, height), status: status, err: err}
		})
		if err != nil {
			return tea.Quit()
		}
		return msg
	}
}

func clamp(i, n int) int {
	return max(0, min(i, n-1))
}

func (b *bridge) capture(cursor, height int) snapshot {
	rows := b.o.VisibleRows()
	s := snapshot{cursor: -1, hidden: b.o.Hidden(), stats: b.o.Stats()}
	for i, v := range rows {
		s.lines = append(s.lines, b.styles.RenderRow(v))
		s.kinds = append(s.kinds, v.Row.Kind())
		if v.Row.Kind() == outline.NormalRow && v.Row.Selected() {
			s.cursor = i
			s.xpath = dommodel.XPath(v.Row.Node())
		}
	}
	if cursor >= 0 && cursor < len(rows) && rows[cursor].Row.Kind() != outline.NormalRow {
		s.cursor = cursor
	}
	if s.cursor < 0 && len(rows) > 0 {
		s.cursor = clamp(cursor, len(rows))
	}

	top := b.o.ScrollTop()
	if height > 0 && s.cursor >= 0 {
		if s.cursor < top {
			top = s.cursor
		} else if s.cursor >= top+height {
			top = s.cursor - height + 1
		}
		b.o.SetScrollTop(top)
	}
	s.top = b.o.ScrollTop()
	return s
}

func (b *bridge) move(delta int) func([]outline.VisibleRow, int) (int, string, error) {
	return func(rows []outline.VisibleRow, cursor int) (int, string, error) {
		if len(rows) == 0 {
			return 0, "", nil
		}
		i := clamp(cursor+delta, len(rows))
		if r := rows[i].Row; r.Kind() == outline.NormalRow {
			b.o.SelectNode(r.Node(), true)
		}
		return i, "", nil
	}
}

func (b *bridge) expand(v bool) func([]outline.VisibleRow, int) (int, string, error) {
	return func(rows []outline.VisibleRow, cursor int) (int, string, error) {
		if len(rows) == 0 {
			return 0, "", nil
		}
		r := rows[cursor].Row
		switch {
		case r.Kind() == outline.ShowMoreRow && v:
			b.o.ExpandAllRemaining(r)
		case r.Kind() != outline.NormalRow:
		case !v && !r.Expanded() && r.Parent() != nil && r.Parent().Node() != nil:
			b.o.SelectNode(r.Parent().Node(), true)
			return -1, "", nil
		default:
			r.SetExpanded(v)
		}
		return cursor, "", nil
	}
}

func (b *bridge) toggle(rows []outline.VisibleRow, cursor int) (int, string, error) {
	if len(rows) == 0 {
		return 0, "", nil
	}
	r := rows[cursor].Row
	switch r.Kind() {
	case outline.ShowMoreRow:
		b.o.ExpandAllRemaining(r)
	case outline.NormalRow:
		r.Toggle()
	}
	return cursor, "", nil
}

func (b *bridge) remove(rows []outline.VisibleRow, cursor int) (int, string, error) {
	if len(rows) == 0 {
		return 0, "", nil
	}
	r := rows[cursor].Row
	if r.Kind() != outline.NormalRow {
		return cursor, "", nil
	}
	if _, err := b.o.RemoveNode(b.ctx, r); err != nil {
		return cursor, "", err
	}
	return cursor, "removed " + r.Title().String(), nil
}

func (b *bridge) toggleShadow(show *bool) func([]outline.VisibleRow, int) (int, string, error) {
	return func(_ []outline.VisibleRow, cursor int) (int, string, error) {
		*show = !*show
		b.o.SetShowUserAgentShadowRoots(*show)
		return cursor, fmt.Sprintf("user agent shadow roots: %v", *show), nil
	}
}

// startEdit opens an edit session on the selected row.
func (b *bridge) startEdit(k outline.EditKind) tea.Cmd {
	return func() tea.Msg {
		var (
			msg editMsg
			err error
		)
		callErr := b.l.Call(b.ctx, func() {
			r := b.o.Selected()
			if r == nil {
				err = errors.New("nothing selected")
				return
			}
			var s *outline.EditSession
			switch k {
			case outline.EditText:
				s, err = r.StartEditingText()
			case outline.EditTagName:
				s, err = r.StartEditingTagName()
			case outline.EditAttribute:
				s, err = r.StartEditingAttribute("")
			case outline.EditMarkup:
				s, err = r.StartEditingAsMarkup()
			}
			if err != nil {
				return
			}
			b.session = s
			msg = editMsg{prompt: k.String(), value: s.Value(), ready: s.Ready()}
		})
		if callErr != nil {
			return tea.Quit()
		}
		if err != nil {
			return snapMsg{err: err, snap: snapshot{cursor: -1}}
		}
		return msg
	}
}

func (b *bridge) pollEdit() tea.Msg {
	var msg tea.Msg = editDoneMsg{}
	b.l.Call(b.ctx, func() {
		s := b.session
		if s == nil || s.State() != outline.Editing {
			return
		}
		msg = editMsg{prompt: s.Kind().String(), value: s.Value(), ready: s.Ready()}
	})
	return msg
}

// commit submits value and waits for the session to resolve.
func (b *bridge) commit(value string, height int) tea.Cmd {
	return func() tea.Msg {
		var (
			done <-chan struct{}
			err  error
		)
		b.l.Call(b.ctx, func() {
			s := b.session
			if s == nil {
				err = outline.ErrNotEditing
				return
			}
			if err = s.SetValue(value); err != nil {
				return
			}
			if err = s.Commit(b.ctx); err != nil {
				return
			}
			done = s.Done()
		})
		if err != nil {
			return snapMsg{err: err, snap: snapshot{cursor: -1}}
		}
		select {
		case <-done:
		case <-b.ctx.Done():
			return tea.Quit()
		}
		var msg snapMsg
		b.l.Call(b.ctx, func() {
			res := b.session.Result()
			b.session = nil
			msg = snapMsg{snap: b.capture(-1, height), status: "edit " + res.Outcome.String(), err: res.Err}
		})
		return msg
	}
}

func (b *bridge) cancelEdit(height int) tea.Cmd {
	return b.do(-1, height, func(_ []outline.VisibleRow, cursor int) (int, string, error) {
		if b.session != nil {
			b.session.Cancel()
			b.session = nil
		}
		return cursor, "edit cancelled", nil
	})
}

type tuiModel struct {
	b       *bridge
	updates chan struct{}
	snap    snapshot
	width   int
	height  int
	status  string
	err     error
	input   textinput.Model
	editing bool
	ready   bool
	prompt  string
	showUA  bool
}

func newTUI(b *bridge, updates chan struct{}) *tuiModel {
	in := textinput.New()
	in.CharLimit = 0
	return &tuiModel{b: b, updates: updates, input: in, snap: snapshot{cursor: -1}}
}

func (m *tuiModel) rowsHeight() int {
	return max(m.height-2, 1)
}

func (m *tuiModel) waitUpdate() tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-m.updates; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func (m *tuiModel) Init() tea.Cmd {
	return tea.Batch(m.b.do(0, m.rowsHeight(), nil), m.waitUpdate())
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	h := m.rowsHeight()
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(msg.Width-20, 10)
		return m, m.b.do(m.snap.cursor, m.rowsHeight(), nil)

	case changedMsg:
		return m, tea.Batch(m.b.do(m.snap.cursor, h, nil), m.waitUpdate())

	case snapMsg:
		if msg.snap.lines != nil || msg.snap.cursor >= 0 {
			m.snap = msg.snap
		}
		m.status, m.err = msg.status, msg.err
		if msg.err != nil || strings.HasPrefix(msg.status, "edit ") {
			m.editing = false
			m.input.Blur()
		}
		return m, nil

	case editMsg:
		m.editing, m.ready, m.prompt = true, msg.ready, msg.prompt
		m.input.SetValue(msg.value)
		m.input.CursorEnd()
		m.input.Focus()
		if !msg.ready {
			return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg { return pollEditMsg{} })
		}
		return m, textinput.Blink

	case pollEditMsg:
		return m, m.b.pollEdit

	case editDoneMsg:
		m.editing = false
		m.input.Blur()
		return m, m.b.do(m.snap.cursor, h, nil)

	case tea.KeyMsg:
		if m.editing {
			switch msg.Type {
			case tea.KeyEnter:
				if !m.ready {
					return m, nil
				}
				m.status = "committing"
				return m, m.b.commit(m.input.Value(), h)
			case tea.KeyEsc:
				m.editing = false
				m.input.Blur()
				return m, m.b.cancelEdit(h)
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
		c := m.snap.cursor
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			return m, m.b.do(c, h, m.b.move(-1))
		case key.Matches(msg, keys.Down):
			return m, m.b.do(c, h, m.b.move(1))
		case key.Matches(msg, keys.Expand):
			return m, m.b.do(c, h, m.b.expand(true))
		case key.Matches(msg, keys.Collapse):
			return m, m.b.do(c, h, m.b.expand(false))
		case key.Matches(msg, keys.Toggle):
			return m, m.b.do(c, h, m.b.toggle)
		case key.Matches(msg, keys.Delete):
			return m, m.b.do(c, h, m.b.remove)
		case key.Matches(msg, keys.Shadow):
			return m, m.b.do(c, h, m.b.toggleShadow(&m.showUA))
		case key.Matches(msg, keys.EditText):
			return m, m.b.startEdit(outline.EditText)
		case key.Matches(msg, keys.EditTag):
			return m, m.b.startEdit(outline.EditTagName)
		case key.Matches(msg, keys.EditAttr):
			return m, m.b.startEdit(outline.EditAttribute)
		case key.Matches(msg, keys.Markup):
			return m, m.b.startEdit(outline.EditMarkup)
		}
	}
	return m, nil
}

func (m *tuiModel) View() string {
	var b strings.Builder
	h := m.rowsHeight()
	if m.snap.hidden {
		b.WriteString(statusStyle.Render("updating…"))
		b.WriteString("\n")
		h--
	}
	end := min(m.snap.top+h, len(m.snap.lines))
	for i := m.snap.top; i < end; i++ {
		line := m.snap.lines[i]
		if i == m.snap.cursor && m.snap.kinds[i] != outline.NormalRow {
			line = "> " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	for i := end - m.snap.top; i < h; i++ {
		b.WriteString("\n")
	}

	switch {
	case m.editing && !m.ready:
		b.WriteString(promptStyle.Render(m.prompt+": ") + statusStyle.Render("loading…"))
	case m.editing:
		b.WriteString(promptStyle.Render(m.prompt+": ") + m.input.View())
	case m.err != nil:
		b.WriteString(errorStyle.Render(m.err.Error()))
	default:
		line := fmt.Sprintf("%s  %d rows  %d flushes", m.snap.xpath, len(m.snap.lines), m.snap.stats.Flushes)
		if m.status != "" {
			line += "  " + m.status
		}
		b.WriteString(statusStyle.Render(line))
	}
	return b.String()
}

// runTUI drives the outline from the terminal until the user quits or
// ctx is done. A value on updates means the tree changed since the last
// redraw.
func runTUI(ctx context.Context, l *loop.Loop, o *outline.Outline, updates chan struct{}) error {
	b := &bridge{ctx: ctx, l: l, o: o, styles: outline.DefaultStyles()}
	p := tea.NewProgram(newTUI(b, updates), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
