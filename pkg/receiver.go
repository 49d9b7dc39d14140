package slpg

// Notifications from the full node (ZMQ).
type NodeEventType int

const (
	TX NodeEventType = iota
	Block
)

type NodeEvent struct {
	Type NodeEventType
	ID   string // txid or block hash
}

type NodeEmitter interface {
	Subscribe(chan<- NodeEvent)
}
