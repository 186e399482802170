package outline

import (
	"context"
	"errors"
	"strings"

	"github.com/hazyhaar/domoutline/dommodel"
)

var (
	ErrNotEditable     = errors.New("outline: row is not editable")
	ErrEditInProgress  = errors.New("outline: edit already in progress")
	ErrNotEditing      = errors.New("outline: session is not editing")
	ErrNotReady        = errors.New("outline: edit content not loaded")
	ErrNoSuchAttribute = errors.New("outline: no such attribute")
	ErrInvalidTagName  = errors.New("outline: invalid tag name")
)

// EditKind is what an edit session changes.
type EditKind int

const (
	EditAttribute EditKind = iota
	EditTagName
	EditText
	EditMarkup
)

func (k EditKind) String() string {
	switch k {
	case EditAttribute:
		return "attribute"
	case EditTagName:
		return "tag_name"
	case EditText:
		return "text"
	case EditMarkup:
		return "markup"
	}
	return "unknown"
}

// EditState is the session state machine:
// Idle -> Editing -> {Committing -> Idle, Cancelling -> Idle}.
type EditState int

const (
	Idle EditState = iota
	Editing
	Committing
	Cancelling
)

func (s EditState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Editing:
		return "editing"
	case Committing:
		return "committing"
	case Cancelling:
		return "cancelling"
	}
	return "unknown"
}

// Outcome is how a session ended.
type Outcome int

const (
	Committed Outcome = iota + 1
	Cancelled
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	}
	return "pending"
}

// EditResult is delivered once the session returns to Idle. Node is the
// edited node after the commit, which differs from the original for
// renames and markup edits (nil when not known yet).
type EditResult struct {
	Outcome Outcome
	Err     error
	Node    *dommodel.Node
}

// EditSession is one in-place edit of a row.
type EditSession struct {
	id     string
	row    *Row
	node   *dommodel.Node
	target *dommodel.Node
	kind   EditKind
	attr   string

	original string
	value    string
	ready    bool

	state   EditState
	history []EditState
	result  EditResult
	done    chan struct{}
}

func (s *EditSession) ID() string { return s.id }
func (s *EditSession) Kind() EditKind { return s.kind }
func (s *EditSession) State() EditState { return s.state }
func (s *EditSession) Value() string { return s.value }
func (s *EditSession) Original() string { return s.original }

// Attribute is the attribute being edited, "" when adding one.
func (s *EditSession) Attribute() string { return s.attr }

// Ready reports whether the content to edit is loaded.
func (s *EditSession) Ready() bool { return s.ready }

// Done is closed when the session resolves.
func (s *EditSession) Done() <-chan struct{} { return s.done }

// Result is valid once Done is closed.
func (s *EditSession) Result() EditResult { return s.result }

// States lists every state the session has been in, in order.
func (s *EditSession) States() []EditState {
	return append([]EditState(nil), s.history...)
}

func (s *EditSession) setState(st EditState) {
	s.state = st
	s.history = append(s.history, st)
}

// live reports whether title refreshes must be held back.
func (s *EditSession) live() bool {
	return s.state == Editing || s.state == Committing
}

// SetValue replaces the edited text.
func (s *EditSession) SetValue(v string) error {
	if s.state != Editing {
		return ErrNotEditing
	}
	s.value = v
	return nil
}

// Commit issues the edit command. The session resolves when the model
// answers; an unchanged value resolves as Cancelled without a command.
func (s *EditSession) Commit(ctx context.Context) error {
	if s.state != Editing {
		return ErrNotEditing
	}
	if !s.ready {
		return ErrNotReady
	}
	if s.value == s.original {
		s.setState(Cancelling)
		s.finish(EditResult{Outcome: Cancelled})
		return nil
	}
	name := strings.TrimSpace(s.value)
	if s.kind == EditTagName && !validTagName(name) {
		s.fail(ErrInvalidTagName)
		return nil
	}
	o := s.row.o
	var call *dommodel.Call
	switch s.kind {
	case EditAttribute:
		call = o.model.SetAttributesAsText(ctx, s.node.ID(), s.value, s.attr)
	case EditTagName:
		call = o.model.SetNodeName(ctx, s.node.ID(), name)
	case EditText:
		call = o.model.SetNodeValue(ctx, s.target.ID(), s.value)
	case EditMarkup:
		call = o.model.SetOuterHTML(ctx, s.node.ID(), s.value)
	}
	s.setState(Committing)
	o.sched.Await(call.Done(), func() { s.complete(call) })
	return nil
}

// Cancel discards the edit without touching the model.
func (s *EditSession) Cancel() {
	if s.state != Editing {
		return
	}
	s.setState(Cancelling)
	s.finish(EditResult{Outcome: Cancelled})
}

// abort cancels because the row went away. An in-flight command result is
// ignored when it arrives.
func (s *EditSession) abort() {
	if !s.live() {
		return
	}
	s.setState(Cancelling)
	s.finish(EditResult{Outcome: Cancelled})
}

func (s *EditSession) complete(call *dommodel.Call) {
	if s.state != Committing {
		return
	}
	o := s.row.o
	if err := call.Err(); err != nil {
		s.fail(err)
		return
	}
	res := EditResult{Outcome: Committed, Node: s.node}
	switch s.kind {
	case EditTagName, EditMarkup:
		res.Node = nil
		if id := call.NodeID(); id != 0 {
			res.Node = o.model.NodeByID(id)
			o.pending = &pendingNode{id: id, expand: s.row.expanded}
		}
	}
	s.finish(res)
	o.resolveWanted()
}

func (s *EditSession) fail(err error) {
	s.row.o.logger.Warn("outline: edit failed",
		"session", s.id, "kind", s.kind.String(), "node", s.node.ID(), "error", err)
	s.finish(EditResult{Outcome: Failed, Err: err})
}

// finish returns to Idle. A commit or a failure rebuilds the title from
// the model; a cancel only runs a refresh held back during the edit.
func (s *EditSession) finish(res EditResult) {
	s.setState(Idle)
	s.result = res
	r := s.row
	if r.edit == s {
		r.edit = nil
	}
	close(s.done)
	if r.bound && (res.Outcome != Cancelled || r.titleQueued) {
		r.refreshTitle(UpdateHints{})
	}
}

func validTagName(name string) bool {
	if name == "" {
		return false
	}
	return !strings.ContainsAny(name, " \t\n\r\f/<>=\"'")
}

func (r *Row) startEditing(kind EditKind) (*EditSession, error) {
	if r.kind != NormalRow || !r.bound {
		return nil, ErrNotEditable
	}
	if r.edit != nil {
		return nil, ErrEditInProgress
	}
	s := &EditSession{
		id:    r.o.cfg.IDs(),
		row:   r,
		node:  r.node,
		kind:  kind,
		ready: true,
		done:  make(chan struct{}),
	}
	return s, nil
}

func (r *Row) begin(s *EditSession) *EditSession {
	r.edit = s
	s.setState(Editing)
	return s
}

func (r *Row) editableElement() bool {
	return r.node.Kind() == dommodel.ElementNode && !r.node.IsPseudoElement()
}

// StartEditingAttribute edits name="value" text for an attribute. An
// empty name adds a new attribute.
func (r *Row) StartEditingAttribute(name string) (*EditSession, error) {
	s, err := r.startEditing(EditAttribute)
	if err != nil {
		return nil, err
	}
	if !r.editableElement() {
		return nil, ErrNotEditable
	}
	if name != "" {
		v, ok := r.node.Attribute(name)
		if !ok {
			return nil, ErrNoSuchAttribute
		}
		s.attr = name
		s.original = name + `="` + v + `"`
	}
	s.value = s.original
	return r.begin(s), nil
}

// StartEditingTagName edits the element name. Committing renames the
// node, which gives it a new identity.
func (r *Row) StartEditingTagName() (*EditSession, error) {
	s, err := r.startEditing(EditTagName)
	if err != nil {
		return nil, err
	}
	if !r.editableElement() {
		return nil, ErrNotEditable
	}
	s.original = r.node.TagName()
	s.value = s.original
	return r.begin(s), nil
}

// StartEditingText edits a text or comment node, or the inline text of
// an element.
func (r *Row) StartEditingText() (*EditSession, error) {
	s, err := r.startEditing(EditText)
	if err != nil {
		return nil, err
	}
	switch r.node.Kind() {
	case dommodel.TextNode, dommodel.CommentNode, dommodel.CDATANode:
		s.target = r.node
	case dommodel.ElementNode:
		t, ok := r.o.inlineText(r.node)
		if !ok {
			return nil, ErrNotEditable
		}
		s.target = t
	default:
		return nil, ErrNotEditable
	}
	s.original = s.target.NodeValue()
	s.value = s.original
	return r.begin(s), nil
}

// StartEditingAsMarkup edits the outer HTML. The markup loads
// asynchronously; Commit fails with ErrNotReady until it has.
func (r *Row) StartEditingAsMarkup() (*EditSession, error) {
	s, err := r.startEditing(EditMarkup)
	if err != nil {
		return nil, err
	}
	switch r.node.Kind() {
	case dommodel.ElementNode, dommodel.TextNode, dommodel.CommentNode:
	default:
		return nil, ErrNotEditable
	}
	if r.node.IsPseudoElement() {
		return nil, ErrNotEditable
	}
	s.ready = false
	r.begin(s)
	o := r.o
	call := o.model.GetOuterHTML(o.ctx, r.node.ID())
	o.sched.Await(call.Done(), func() {
		if s.state != Editing {
			return
		}
		if err := call.Err(); err != nil {
			s.setState(Cancelling)
			o.logger.Warn("outline: load markup failed", "node", s.node.ID(), "error", err)
			s.finish(EditResult{Outcome: Failed, Err: err})
			return
		}
		s.original = call.Value()
		s.value = s.original
		s.ready = true
	})
	return s, nil
}
