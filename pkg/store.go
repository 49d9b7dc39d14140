package slpg

// Store persists token graph checkpoints.
type Store interface {
	// SaveSnapshot stores the latest snapshot for a token, replacing any
	// earlier one. Stores refuse snapshots that are not Complete.
	SaveSnapshot(snap GraphSnapshot) error
	// LoadSnapshot returns the stored snapshot for tokenID,
	// or a NotFound error.
	LoadSnapshot(tokenID string) (GraphSnapshot, error)
	// ListTokens returns the token ids with a stored snapshot.
	ListTokens() ([]string, error)
	Close()
}
