package domain

// ArchivedTurn is a single conversation turn as persisted in the archive
// table.
type ArchivedTurn struct {
	PK             string
	SK             string
	ConversationID string
	Role           string
	Content        string
	TTL            int64
}

// ConversationMeta stores aggregate archived-conversation state.
type ConversationMeta struct {
	PK             string
	SK             string
	ConversationID string
	LastActivity   string
	TotalTurns     int
	TTL            int64
}
