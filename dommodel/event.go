package dommodel

// EventKind is the closed set of mutation notifications a Model emits.
type EventKind int

const (
	NodeInserted EventKind = iota + 1
	NodeRemoved
	AttributeModified
	AttributeRemoved
	CharacterDataModified
	ChildNodeCountUpdated
	DocumentUpdated
)

func (k EventKind) String() string {
	switch k {
	case NodeInserted:
		return "node_inserted"
	case NodeRemoved:
		return "node_removed"
	case AttributeModified:
		return "attribute_modified"
	case AttributeRemoved:
		return "attribute_removed"
	case CharacterDataModified:
		return "character_data_modified"
	case ChildNodeCountUpdated:
		return "child_node_count_updated"
	case DocumentUpdated:
		return "document_updated"
	}
	return "unknown"
}

// Event is one mutation notification. Node is the affected node (the new
// root for DocumentUpdated, possibly nil). Parent is set for insertions and
// removals, where Node is already detached. Name is the attribute name.
type Event struct {
	Kind   EventKind
	Node   *Node
	Parent *Node
	Name   string
}

// Listener receives events on the goroutine that mutates the Tree.
type Listener func(Event)
