package auth

// User types. Agents are the automated advertisers that own deals and fund
// missions; operators are the human promoters that work them.
const (
	TypeAdmin    = "admin"
	TypeAgent    = "agent"
	TypeOperator = "operator"
)

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Type  string `json:"type"`

	// Wallets maps address family (e.g. "evm") to the operator's payout
	// address. Agents leave this empty.
	Wallets map[string]string `json:"wallets,omitempty"`

	CreatedAt int64 `json:"createdAt,omitempty"`
	Status    bool  `json:"status"`
}

func (u *User) IsAdmin() bool    { return u != nil && u.Type == TypeAdmin }
func (u *User) IsAgent() bool    { return u != nil && u.Type == TypeAgent }
func (u *User) IsOperator() bool { return u != nil && u.Type == TypeOperator }

// WalletFor returns the payout address for a chain family, if configured.
func (u *User) WalletFor(family string) string {
	if u == nil || u.Wallets == nil {
		return ""
	}
	return u.Wallets[family]
}

// HasAnyWallet is the approve-time precondition: no point approving a
// mission for an operator with nowhere to get paid.
func (u *User) HasAnyWallet() bool {
	return u != nil && len(u.Wallets) != 0
}
