package models

// Sender is a user together with the number of messages they had relayed.
type Sender struct {
	UserID       int64
	MessageCount int64
}

// Stats is the snapshot exposed to administrators.
type Stats struct {
	TotalUsers    int64
	PairedPairs   int64
	TotalMessages int64
	Searching     int64
	Idle          int64
	TopSender     *Sender
}
