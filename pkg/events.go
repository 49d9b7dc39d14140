package slpg

// slpgraph event types

// bus.Send(GRAPH_UPDATED, stats)
// bus.Send(NODE_INVALID, node)

// Interface for any event
type EventType interface {
	Type() string
}

// slice of all msg types for config funcs lookup
var EVENT_TYPES []EventType = []EventType{EVENT_ALL("ALL"),
	EVENT_SYS("SYS"),
	EVENT_GRAPH("GRAPH"),
	EVENT_NODE("NODE")}

// Special category, do not use directly, represents *
type EVENT_ALL string

func (e EVENT_ALL) Type() string {
	return "ALL"
}

// System Events
type EVENT_SYS string

func (e EVENT_SYS) Type() string {
	return "SYS"
}

const (
	SYS_STARTUP EVENT_SYS = "STARTUP"
	SYS_ERR     EVENT_SYS = "ERR"
	SYS_MSG     EVENT_SYS = "MSG"
)

// Token graph events, one per traversal run
type EVENT_GRAPH string

func (e EVENT_GRAPH) Type() string {
	return "GRAPH"
}

const (
	GRAPH_LOADED     EVENT_GRAPH = "LOADED"     // checkpoint restored from the store
	GRAPH_UPDATED    EVENT_GRAPH = "UPDATED"    // traversal finished complete
	GRAPH_INCOMPLETE EVENT_GRAPH = "INCOMPLETE" // traversal finished with errors
)

// Per-transaction events raised during traversal
type EVENT_NODE string

func (e EVENT_NODE) Type() string {
	return "NODE"
}

const (
	NODE_ADDED   EVENT_NODE = "ADDED"
	NODE_INVALID EVENT_NODE = "INVALID"
)

// Message payloads

type GraphEvent struct {
	TokenID string     `json:"token_id"`
	Nodes   int        `json:"nodes"`
	Stats   TokenStats `json:"stats"`
	Error   string     `json:"error,omitempty"`
}

type GraphNodeEvent struct {
	TokenID string    `json:"token_id"`
	Node    GraphNode `json:"node"`
}

// EventTypeByName resolves a category name from config, ie: "GRAPH".
func EventTypeByName(name string) (EventType, bool) {
	for _, t := range EVENT_TYPES {
		if t.Type() == name {
			return t, true
		}
	}
	return nil, false
}
