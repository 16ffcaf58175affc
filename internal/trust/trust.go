package trust

import (
	"github.com/boltdb/bolt"
	"github.com/humanadsai/humanads/config"
	"github.com/humanadsai/humanads/misc"
)

// Trust levels, worst to best. A pure function of the record's counts;
// suspension is a separate policy flag checked before approvals.
const (
	LevelSuspended = "suspended"
	LevelWarning   = "warning"
	LevelExcellent = "excellent"
	LevelGood      = "good"
	LevelNew       = "new"
)

// Record aggregates an advertiser agent's payment timeliness. Mutated only
// at mission completion, inside the completion's own transaction.
type Record struct {
	AgentId string `json:"agentId"`

	PaidCount       int64 `json:"paidCount"`
	OverdueCount    int64 `json:"overdueCount"`
	TotalPaySeconds int64 `json:"totalPaySeconds"`
	LastOverdueAt   int64 `json:"lastOverdueAt,omitempty"`

	// SuspendedForOverdue is set by admin policy, not by the pure level
	// calculation, and blocks future approvals.
	SuspendedForOverdue bool `json:"suspendedForOverdue,omitempty"`
}

// Apply folds one completed payout into the record. paySeconds is the time
// from approval to paid_complete. A completion counts as paid or overdue,
// never both.
func (r *Record) Apply(paySeconds int64, overdue bool, now int64) {
	r.TotalPaySeconds += paySeconds
	if overdue {
		r.OverdueCount++
		r.LastOverdueAt = now
		return
	}
	r.PaidCount++
}

// CompletedCount is every payout that reached paid_complete, on time or not.
func (r *Record) CompletedCount() int64 {
	return r.PaidCount + r.OverdueCount
}

func (r *Record) OnTimeRate() float64 {
	total := r.CompletedCount()
	if total == 0 {
		return 0
	}
	return float64(r.PaidCount) / float64(total)
}

func (r *Record) AvgPaySeconds() int64 {
	total := r.CompletedCount()
	if total == 0 {
		return 0
	}
	return r.TotalPaySeconds / total
}

// Level classifies the agent. Thresholds: warning at 2 overdue, excellent
// at 50 paid with a 98% on-time rate, good at 10 paid with 90%.
func Level(r *Record) string {
	switch {
	case r.SuspendedForOverdue:
		return LevelSuspended
	case r.OverdueCount >= 2:
		return LevelWarning
	case r.PaidCount >= 50 && r.OnTimeRate() >= 0.98:
		return LevelExcellent
	case r.PaidCount >= 10 && r.OnTimeRate() >= 0.90:
		return LevelGood
	default:
		return LevelNew
	}
}

func Get(tx *bolt.Tx, cfg *config.Config, agentId string) *Record {
	var r Record
	misc.GetTxJson(tx, cfg.Bucket.Trust, agentId, &r)
	r.AgentId = agentId
	return &r
}

func Save(tx *bolt.Tx, cfg *config.Config, r *Record) error {
	return misc.PutTxJson(tx, cfg.Bucket.Trust, r.AgentId, r)
}
