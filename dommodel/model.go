package dommodel

import "context"

// Model is the document backend the outline consumes. Queries and
// subscriptions run on the owning goroutine; commands complete
// asynchronously and report through the returned Call.
type Model interface {
	Document() *Node
	NodeByID(id NodeID) *Node
	Subscribe(fn Listener) (cancel func())

	RequestChildNodes(ctx context.Context, id NodeID) *Call
	SetAttributeValue(ctx context.Context, id NodeID, name, value string) *Call
	// SetAttributesAsText replaces the attribute name (when not empty) with
	// the attributes parsed from text. Empty text removes it.
	SetAttributesAsText(ctx context.Context, id NodeID, text, name string) *Call
	RemoveAttribute(ctx context.Context, id NodeID, name string) *Call
	// SetNodeName renames an element. The renamed node has a new identity,
	// reported by Call.NodeID.
	SetNodeName(ctx context.Context, id NodeID, name string) *Call
	SetNodeValue(ctx context.Context, id NodeID, value string) *Call
	// GetOuterHTML reports the markup through Call.Value.
	GetOuterHTML(ctx context.Context, id NodeID) *Call
	SetOuterHTML(ctx context.Context, id NodeID, markup string) *Call
	RemoveNode(ctx context.Context, id NodeID) *Call
	// MoveTo reparents id under target before anchor (0 appends). The moved
	// node identity is reported by Call.NodeID.
	MoveTo(ctx context.Context, id, target, anchor NodeID) *Call
}

// Call is an in-flight model command, in the manner of net/rpc.Call.
type Call struct {
	done   chan struct{}
	err    error
	nodeID NodeID
	value  string
}

// Go runs fn on its own goroutine and resolves the Call with its result.
func Go(ctx context.Context, fn func(ctx context.Context) (NodeID, string, error)) *Call {
	c := &Call{done: make(chan struct{})}
	go func() {
		id, v, err := fn(ctx)
		c.resolve(id, v, err)
	}()
	return c
}

// Resolved returns a Call that has already completed.
func Resolved(id NodeID, value string, err error) *Call {
	c := &Call{done: make(chan struct{})}
	c.resolve(id, value, err)
	return c
}

func (c *Call) resolve(id NodeID, value string, err error) {
	c.nodeID, c.value, c.err = id, value, err
	close(c.done)
}

// Done is closed when the command completes.
func (c *Call) Done() <-chan struct{} { return c.done }

// Err is the command error. Only valid after Done is closed.
func (c *Call) Err() error { return c.err }

// NodeID is the node produced by the command, if any.
func (c *Call) NodeID() NodeID { return c.nodeID }

// Value is the string result of the command, if any.
func (c *Call) Value() string { return c.value }

// Wait blocks until the command completes or ctx is done.
func (c *Call) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
