package common

const (
	PaymentFee    = "fee"
	PaymentPayout = "payout"
)

const (
	PaymentPending   = "pending"
	PaymentConfirmed = "confirmed"
	PaymentFailed    = "failed"
)

// Payment is an immutable intent with a mutable outcome. Exactly one fee
// payment and one payout payment exist per mission that reaches
// address-unlock.
type Payment struct {
	Id        string `json:"id"`
	MissionId string `json:"missionId"`

	Type        string `json:"type"` // fee | payout
	AmountCents int64  `json:"amountCents"`

	Chain     string `json:"chain,omitempty"`
	Token     string `json:"token,omitempty"`
	TxHash    string `json:"txHash,omitempty"` // empty until confirmed
	Recipient string `json:"recipient"`

	Status     string `json:"status"`
	DeadlineAt int64  `json:"deadlineAt,omitempty"`

	CreatedAt   int64 `json:"createdAt"`
	ConfirmedAt int64 `json:"confirmedAt,omitempty"`
}

// TxKey is the replay-protection index key: a hash may settle at most one
// payment per chain.
func TxKey(chain, hash string) string {
	return chain + "|" + hash
}
