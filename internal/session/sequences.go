package session

import (
	"context"
	"time"
)

// Sequences is the persisted numbering state of one session
type Sequences struct {
	Out     int64 // highest outbound MsgSeqNum that may have been sent
	In      int64 // last inbound MsgSeqNum processed
	ClOrdID int64 // highest ClOrdID that may have been issued
}

// SequenceStore persists Sequences per trading day so that a restart within
// the day keeps numbering monotonic.
type SequenceStore interface {
	LoadSequences(ctx context.Context, day string) (Sequences, bool, error)
	SaveSequences(ctx context.Context, day string, seq Sequences) error
}

// TradingDay is the UTC calendar date of t
func TradingDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
