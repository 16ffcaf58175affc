package misc

import (
	"crypto/rand"
	"time"
)

func CreateToken(ln int) []byte {
	tok := make([]byte, ln)
	rand.Read(tok)
	return tok
}

// WithinLast reports whether ts (unix seconds) falls within the last N hours.
func WithinLast(ts int64, hours int64) bool {
	now := time.Now().Unix()
	return ts > now-(hours*3600) && ts <= now
}
