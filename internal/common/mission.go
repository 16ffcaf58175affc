package common

// Mission statuses in lifecycle order. Overdue is a computed condition,
// never a status.
const (
	MissionAccepted        = "accepted"
	MissionSubmitted       = "submitted"
	MissionVerified        = "verified"
	MissionApproved        = "approved"
	MissionAddressUnlocked = "address_unlocked"
	MissionPaidComplete    = "paid_complete"
	MissionRejected        = "rejected"
)

// Mission is the unit the settlement engine operates on; one per
// (deal, operator).
type Mission struct {
	Id            string `json:"id"`
	DealId        string `json:"dealId"`
	ApplicationId string `json:"applicationId"`
	AdvertiserId  string `json:"advertiserId"`
	OperatorId    string `json:"operatorId"`

	Status string `json:"status"`

	RewardCents int64 `json:"rewardCents"`
	FeeCents    int64 `json:"feeCents,omitempty"`
	PayoutCents int64 `json:"payoutCents,omitempty"`
	FeePercent  int64 `json:"feePercent"`

	FeePaymentId    string `json:"feePaymentId,omitempty"`
	PayoutPaymentId string `json:"payoutPaymentId,omitempty"`

	AcceptedAt        int64 `json:"acceptedAt,omitempty"`
	SubmittedAt       int64 `json:"submittedAt,omitempty"`
	VerifiedAt        int64 `json:"verifiedAt,omitempty"`
	ApprovedAt        int64 `json:"approvedAt,omitempty"`
	AddressUnlockedAt int64 `json:"addressUnlockedAt,omitempty"`
	PaidCompleteAt    int64 `json:"paidCompleteAt,omitempty"`
	RejectedAt        int64 `json:"rejectedAt,omitempty"`

	PayoutDeadlineAt int64 `json:"payoutDeadlineAt,omitempty"`
}

func (m *Mission) IsTerminal() bool {
	return m.Status == MissionPaidComplete || m.Status == MissionRejected
}

// IsOverdue reports whether the payout deadline has passed while the
// mission is still short of paid_complete.
func (m *Mission) IsOverdue(now int64) bool {
	return m.PayoutDeadlineAt != 0 && now > m.PayoutDeadlineAt &&
		m.Status != MissionPaidComplete && m.Status != MissionRejected
}
