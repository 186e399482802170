// Package cdpdom mirrors the DOM of a live Chrome page through the DevTools
// protocol. Protocol events are applied to a dommodel.Tree on the outline's
// loop; commands run as protocol calls on their own goroutines.
package cdpdom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/hazyhaar/domoutline/dommodel"
	"github.com/hazyhaar/domoutline/loop"
)

// ErrDetached is returned by commands after Close.
var ErrDetached = errors.New("cdpdom: model detached")

// Config for attaching to a page.
type Config struct {
	Page      *rod.Page
	Scheduler loop.Scheduler
	// Depth of the initial DOM.getDocument. -1 loads the whole tree;
	// smaller depths leave children to RequestChildNodes. Default: -1.
	Depth  int
	Pierce bool
	Logger *slog.Logger
}

// Model implements dommodel.Model over a Chrome page.
type Model struct {
	page   *rod.Page
	sched  loop.Scheduler
	tree   *dommodel.Tree
	depth  int
	pierce bool
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	xml    atomic.Bool
}

// Attach enables the DOM domain, loads the document and starts mirroring
// events. The document is applied on the scheduler's loop, so it becomes
// visible after the posted task runs.
func Attach(ctx context.Context, cfg Config) (*Model, error) {
	if cfg.Page == nil || cfg.Scheduler == nil {
		return nil, errors.New("cdpdom: page and scheduler are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Depth == 0 {
		cfg.Depth = -1
	}
	mctx, cancel := context.WithCancel(context.Background())
	m := &Model{
		page:   cfg.Page,
		sched:  cfg.Scheduler,
		tree:   dommodel.NewTree(),
		depth:  cfg.Depth,
		pierce: cfg.Pierce,
		logger: cfg.Logger,
		ctx:    mctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if err := (proto.DOMEnable{}).Call(m.page.Context(ctx)); err != nil {
		cancel()
		return nil, fmt.Errorf("cdpdom: DOM.enable: %w", err)
	}
	// The subscription buffers from here, so events raised after
	// getDocument are posted after the document itself.
	wait := m.page.Context(mctx).EachEvent(m.handlers()...)
	init, err := m.fetchDocument(ctx)
	if err != nil {
		cancel()
		go wait()
		return nil, err
	}
	m.xml.Store(init.IsXML)
	m.sched.Post(func() { m.tree.SetDocument(init) })
	go func() {
		defer close(m.done)
		wait()
	}()
	m.logger.Info("cdpdom: attached", "url", init.DocumentURL, "depth", m.depth)
	return m, nil
}

// Close stops mirroring. The tree keeps its last state.
func (m *Model) Close() {
	m.cancel()
	<-m.done
}

func (m *Model) fetchDocument(ctx context.Context) (*dommodel.NodeInit, error) {
	depth := m.depth
	res, err := proto.DOMGetDocument{Depth: &depth, Pierce: m.pierce}.Call(m.page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("cdpdom: DOM.getDocument: %w", err)
	}
	init := toInit(res.Root, false)
	return &init, nil
}

// apply posts a tree mutation to the loop. Events about nodes the mirror
// never saw are dropped.
func (m *Model) apply(event string, fn func() error) {
	m.sched.Post(func() {
		if err := fn(); err != nil {
			m.logger.Debug("cdpdom: event dropped", "event", event, "error", err)
		}
	})
}

func (m *Model) handlers() []any {
	t := m.tree
	return []any{
		func(e *proto.DOMSetChildNodes) {
			kids := toInits(e.Nodes, m.xmlHint())
			m.apply("setChildNodes", func() error { return t.SetChildNodes(dommodel.NodeID(e.ParentID), kids) })
		},
		func(e *proto.DOMChildNodeCountUpdated) {
			m.apply("childNodeCountUpdated", func() error {
				return t.SetChildNodeCount(dommodel.NodeID(e.NodeID), e.ChildNodeCount)
			})
		},
		func(e *proto.DOMChildNodeInserted) {
			init := toInit(e.Node, m.xmlHint())
			m.apply("childNodeInserted", func() error {
				return t.InsertChild(dommodel.NodeID(e.ParentNodeID), dommodel.NodeID(e.PreviousNodeID), init)
			})
		},
		func(e *proto.DOMChildNodeRemoved) {
			m.apply("childNodeRemoved", func() error {
				return t.RemoveChild(dommodel.NodeID(e.ParentNodeID), dommodel.NodeID(e.NodeID))
			})
		},
		func(e *proto.DOMAttributeModified) {
			m.apply("attributeModified", func() error { return t.SetAttribute(dommodel.NodeID(e.NodeID), e.Name, e.Value) })
		},
		func(e *proto.DOMAttributeRemoved) {
			m.apply("attributeRemoved", func() error { return t.RemoveAttribute(dommodel.NodeID(e.NodeID), e.Name) })
		},
		func(e *proto.DOMCharacterDataModified) {
			m.apply("characterDataModified", func() error {
				return t.SetCharacterData(dommodel.NodeID(e.NodeID), e.CharacterData)
			})
		},
		func(e *proto.DOMShadowRootPushed) {
			init := toInit(e.Root, m.xmlHint())
			m.apply("shadowRootPushed", func() error { return t.PushShadowRoot(dommodel.NodeID(e.HostID), init) })
		},
		func(e *proto.DOMShadowRootPopped) {
			m.apply("shadowRootPopped", func() error {
				return t.PopShadowRoot(dommodel.NodeID(e.HostID), dommodel.NodeID(e.RootID))
			})
		},
		func(e *proto.DOMPseudoElementAdded) {
			if !outlinedPseudo(e.PseudoElement.PseudoType) {
				return
			}
			init := toInit(e.PseudoElement, m.xmlHint())
			m.apply("pseudoElementAdded", func() error { return t.AddPseudoElement(dommodel.NodeID(e.ParentID), init) })
		},
		func(e *proto.DOMPseudoElementRemoved) {
			m.apply("pseudoElementRemoved", func() error {
				return t.RemovePseudoElement(dommodel.NodeID(e.ParentID), dommodel.NodeID(e.PseudoElementID))
			})
		},
		func(e *proto.DOMDocumentUpdated) {
			// Node ids are void from here on; refetch off the event goroutine.
			go m.reload()
		},
	}
}

// xmlHint is whether the mirrored document is XML. It is read on the
// event goroutine.
func (m *Model) xmlHint() bool {
	return m.xml.Load()
}

func (m *Model) reload() {
	init, err := m.fetchDocument(m.ctx)
	if err != nil {
		if m.ctx.Err() == nil {
			m.logger.Warn("cdpdom: reload document failed", "error", err)
		}
		return
	}
	m.xml.Store(init.IsXML)
	m.sched.Post(func() { m.tree.SetDocument(init) })
	m.logger.Info("cdpdom: document updated", "url", init.DocumentURL)
}

func (m *Model) Document() *dommodel.Node { return m.tree.Document() }
func (m *Model) NodeByID(id dommodel.NodeID) *dommodel.Node { return m.tree.NodeByID(id) }
func (m *Model) Subscribe(fn dommodel.Listener) func() { return m.tree.Subscribe(fn) }

// exec runs a protocol call bound to both the caller's context and the
// model's lifetime.
func (m *Model) exec(ctx context.Context, op string, fn func(c proto.Client) (dommodel.NodeID, string, error)) *dommodel.Call {
	if m.ctx.Err() != nil {
		return dommodel.Resolved(0, "", ErrDetached)
	}
	return dommodel.Go(ctx, func(ctx context.Context) (dommodel.NodeID, string, error) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(m.ctx, cancel)
		defer stop()
		id, v, err := fn(m.page.Context(ctx))
		if err != nil {
			return 0, "", fmt.Errorf("cdpdom: %s: %w", op, err)
		}
		return id, v, nil
	})
}

func (m *Model) RequestChildNodes(ctx context.Context, id dommodel.NodeID) *dommodel.Call {
	return m.exec(ctx, "DOM.requestChildNodes", func(c proto.Client) (dommodel.NodeID, string, error) {
		depth := 1
		err := proto.DOMRequestChildNodes{NodeID: proto.DOMNodeID(id), Depth: &depth, Pierce: m.pierce}.Call(c)
		return id, "", err
	})
}

func (m *Model) SetAttributeValue(ctx context.Context, id dommodel.NodeID, name, value string) *dommodel.Call {
	return m.exec(ctx, "DOM.setAttributeValue", func(c proto.Client) (dommodel.NodeID, string, error) {
		return id, "", proto.DOMSetAttributeValue{NodeID: proto.DOMNodeID(id), Name: name, Value: value}.Call(c)
	})
}

func (m *Model) SetAttributesAsText(ctx context.Context, id dommodel.NodeID, text, name string) *dommodel.Call {
	return m.exec(ctx, "DOM.setAttributesAsText", func(c proto.Client) (dommodel.NodeID, string, error) {
		return id, "", proto.DOMSetAttributesAsText{NodeID: proto.DOMNodeID(id), Text: text, Name: name}.Call(c)
	})
}

func (m *Model) RemoveAttribute(ctx context.Context, id dommodel.NodeID, name string) *dommodel.Call {
	return m.exec(ctx, "DOM.removeAttribute", func(c proto.Client) (dommodel.NodeID, string, error) {
		return id, "", proto.DOMRemoveAttribute{NodeID: proto.DOMNodeID(id), Name: name}.Call(c)
	})
}

func (m *Model) SetNodeName(ctx context.Context, id dommodel.NodeID, name string) *dommodel.Call {
	return m.exec(ctx, "DOM.setNodeName", func(c proto.Client) (dommodel.NodeID, string, error) {
		res, err := proto.DOMSetNodeName{NodeID: proto.DOMNodeID(id), Name: name}.Call(c)
		if err != nil {
			return 0, "", err
		}
		return dommodel.NodeID(res.NodeID), "", nil
	})
}

func (m *Model) SetNodeValue(ctx context.Context, id dommodel.NodeID, value string) *dommodel.Call {
	return m.exec(ctx, "DOM.setNodeValue", func(c proto.Client) (dommodel.NodeID, string, error) {
		return id, "", proto.DOMSetNodeValue{NodeID: proto.DOMNodeID(id), Value: value}.Call(c)
	})
}

func (m *Model) GetOuterHTML(ctx context.Context, id dommodel.NodeID) *dommodel.Call {
	return m.exec(ctx, "DOM.getOuterHTML", func(c proto.Client) (dommodel.NodeID, string, error) {
		res, err := proto.DOMGetOuterHTML{NodeID: proto.DOMNodeID(id)}.Call(c)
		if err != nil {
			return 0, "", err
		}
		return id, res.OuterHTML, nil
	})
}

// SetOuterHTML replaces the node. The protocol does not report the new
// node, so the Call carries no id.
func (m *Model) SetOuterHTML(ctx context.Context, id dommodel.NodeID, markup string) *dommodel.Call {
	return m.exec(ctx, "DOM.setOuterHTML", func(c proto.Client) (dommodel.NodeID, string, error) {
		return 0, "", proto.DOMSetOuterHTML{NodeID: proto.DOMNodeID(id), OuterHTML: markup}.Call(c)
	})
}

func (m *Model) RemoveNode(ctx context.Context, id dommodel.NodeID) *dommodel.Call {
	return m.exec(ctx, "DOM.removeNode", func(c proto.Client) (dommodel.NodeID, string, error) {
		return id, "", proto.DOMRemoveNode{NodeID: proto.DOMNodeID(id)}.Call(c)
	})
}

func (m *Model) MoveTo(ctx context.Context, id, target, anchor dommodel.NodeID) *dommodel.Call {
	return m.exec(ctx, "DOM.moveTo", func(c proto.Client) (dommodel.NodeID, string, error) {
		res, err := proto.DOMMoveTo{
			NodeID:             proto.DOMNodeID(id),
			TargetNodeID:       proto.DOMNodeID(target),
			InsertBeforeNodeID: proto.DOMNodeID(anchor),
		}.Call(c)
		if err != nil {
			return 0, "", err
		}
		return dommodel.NodeID(res.NodeID), "", nil
	})
}
