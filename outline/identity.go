package outline

import (
	"log/slog"

	"github.com/hazyhaar/domoutline/dommodel"
)

// identityMap maps node identity to the one Row bound to it.
type identityMap struct {
	rows   map[dommodel.NodeID]*Row
	logger *slog.Logger
}

func newIdentityMap(logger *slog.Logger) *identityMap {
	return &identityMap{rows: make(map[dommodel.NodeID]*Row), logger: logger}
}

// bind registers r. A second row for the same node is a reconciliation
// defect: the stale row is unbound and r wins.
func (m *identityMap) bind(r *Row) (stale *Row) {
	id := r.node.ID()
	if old := m.rows[id]; old != nil && old != r {
		m.logger.Error("outline: duplicate row for node",
			"node", id, "name", r.node.NodeName())
		stale = old
	}
	m.rows[id] = r
	return stale
}

func (m *identityMap) unbind(r *Row) {
	if r.node == nil {
		return
	}
	if m.rows[r.node.ID()] == r {
		delete(m.rows, r.node.ID())
	}
}

// get returns the row bound to exactly n.
func (m *identityMap) get(n *dommodel.Node) *Row {
	if n == nil {
		return nil
	}
	r := m.rows[n.ID()]
	if r == nil || r.node != n {
		return nil
	}
	return r
}

// lookup is get with the inline-text fallback: a text node shown inside
// its parent's title resolves to the parent row.
func (m *identityMap) lookup(n *dommodel.Node) *Row {
	if r := m.get(n); r != nil {
		return r
	}
	if n == nil || n.Kind() != dommodel.TextNode {
		return nil
	}
	return m.get(n.Parent())
}

func (m *identityMap) len() int { return len(m.rows) }

func (m *identityMap) reset() {
	clear(m.rows)
}
