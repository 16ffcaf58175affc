package common

const (
	ApplicationApplied  = "applied"
	ApplicationSelected = "selected"
	ApplicationRejected = "rejected"
)

// Application is an operator's request to work a deal. At most one per
// (deal, operator) pair; selection creates the mission.
type Application struct {
	Id         string `json:"id"`
	DealId     string `json:"dealId"`
	OperatorId string `json:"operatorId"`

	Status    string `json:"status"`
	MissionId string `json:"missionId,omitempty"` // set on selection

	AppliedAt int64 `json:"appliedAt,omitempty"`
	DecidedAt int64 `json:"decidedAt,omitempty"`
}

// ApplicationKey dedupes applications per (deal, operator).
func ApplicationKey(dealId, operatorId string) string {
	return dealId + "|" + operatorId
}
