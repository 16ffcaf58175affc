package common

// Payment models. A deal picks exactly one at creation; the two custody
// flows stay parallel and are never merged.
const (
	ModelAdvanceFee = "advance-fee" // off-chain engine, AUF fee then payout
	ModelEscrow     = "escrow"      // on-chain escrow contract is authoritative
)

const (
	DealActive   = "active"
	DealPaused   = "paused"
	DealExpired  = "expired"
	DealArchived = "archived"
)

// Deal is an advertiser-owned offer. Everything except Status is immutable
// once missions exist against it.
type Deal struct {
	Id           string `json:"id"`
	AdvertiserId string `json:"advertiserId"`

	Title string `json:"title,omitempty"`
	Task  string `json:"task,omitempty"`

	RewardCents     int64  `json:"rewardCents"`
	MaxParticipants int64  `json:"maxParticipants"`
	PaymentModel    string `json:"paymentModel"`
	FeePercent      int64  `json:"feePercent"`
	ExpiresAt       int64  `json:"expiresAt"`

	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt"`
}

func (d *Deal) IsActive(now int64) bool {
	return d.Status == DealActive && (d.ExpiresAt == 0 || now < d.ExpiresAt)
}

// FeeCents is the platform's AUF cut for one participant. Integer floor
// division; FeeCents + PayoutCents always equals RewardCents.
func (d *Deal) FeeCents() int64 {
	return d.RewardCents * d.FeePercent / 100
}

func (d *Deal) PayoutCents() int64 {
	return d.RewardCents - d.FeeCents()
}
