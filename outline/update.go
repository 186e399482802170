package outline

import (
	"slices"
	"time"

	"github.com/hazyhaar/domoutline/dommodel"
)

// Update is the tree-updated notification, emitted once per flush and once
// per document rebuild.
type Update struct {
	ID    string            `json:"id"`
	Seq   uint64            `json:"seq"`
	URL   string            `json:"url,omitempty"`
	Nodes []dommodel.NodeID `json:"nodes"`
	Full  bool              `json:"full,omitempty"`
	At    time.Time         `json:"at"`
}

type updateListener struct {
	id int
	fn func(Update)
}

// OnTreeUpdated registers fn and returns a function that removes it.
// Listeners run on the loop.
func (o *Outline) OnTreeUpdated(fn func(Update)) func() {
	o.nextListener++
	id := o.nextListener
	o.listeners = append(o.listeners, updateListener{id: id, fn: fn})
	return func() {
		o.listeners = slices.DeleteFunc(o.listeners, func(l updateListener) bool { return l.id == id })
	}
}

func (o *Outline) emit(nodes []dommodel.NodeID, full bool) {
	o.seq++
	u := Update{
		ID:    o.cfg.IDs(),
		Seq:   o.seq,
		Nodes: nodes,
		Full:  full,
		At:    o.sched.Now(),
	}
	if doc := o.model.Document(); doc != nil {
		u.URL = doc.DocumentURL()
	}
	for _, l := range slices.Clone(o.listeners) {
		l.fn(u)
	}
}
