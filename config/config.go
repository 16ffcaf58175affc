package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"

	"github.com/missionMeteora/mandrill"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
)

func New(loc string) (*Config, error) {
	var c Config

	f, err := os.Open(loc)
	if err != nil {
		log.Println("Config error", err)
		return nil, err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&c); err != nil {
		log.Println("Config error", err)
		return nil, err
	}

	c.FillDefaults()

	if c.VerifyFailOpen {
		// Deliberately loud: skipping on-chain verification when the RPC
		// node is down is an audited, opt-in behavior.
		log.Println("WARNING: verifyFailOpen is set; unreachable RPC nodes will NOT block settlement")
	}

	return &c, nil
}

type Config struct {
	Host string `json:"host"`
	Port string `json:"port"`

	DBPath string `json:"dbPath"`
	DBName string `json:"dbName"`

	// Sandbox runs the platform in ledger (simulated) mode: no real value
	// transfer, any payment hash is accepted.
	Sandbox bool `json:"sandbox"`

	// VerifyFailOpen lets unlock/confirm proceed when the RPC node is
	// unreachable. Defaults to false; never enable without sign-off.
	VerifyFailOpen bool `json:"verifyFailOpen"`

	DefaultPayoutHours int64 `json:"defaultPayoutHours"` // 72 if unset
	MaxPayoutHours     int64 `json:"maxPayoutHours"`     // 168 if unset
	DefaultFeePercent  int64 `json:"defaultFeePercent"`  // 10 if unset

	// IdempotencyHours is how long a stored idempotency-key result stays
	// replayable. 24 if unset.
	IdempotencyHours int64 `json:"idempotencyHours"`

	// FeeVault maps chain name to the platform's fee-collection address.
	FeeVault map[string]string `json:"feeVault"`

	// RPC maps chain name to a JSON-RPC endpoint.
	RPC map[string]string `json:"rpc"`

	// AdminAPIKey, when set, seeds an admin user with this key on startup.
	AdminAPIKey string `json:"adminApiKey"`

	Mandrill struct {
		APIKey     string `json:"apiKey"`
		SubAccount string `json:"subAccount"`
		FromEmail  string `json:"fromEmail"`
		FromName   string `json:"fromName"`
	} `json:"mandrill"`

	Escrow struct {
		Token    string `json:"token"`
		Admin    string `json:"admin"`
		Arbiter  string `json:"arbiter"`
		FeeVault string `json:"feeVault"`
		FeeBps   int64  `json:"feeBps"`
	} `json:"escrow"`

	Bucket struct {
		User        string `json:"user"`
		ApiKey      string `json:"apiKey"`
		Deal        string `json:"deal"`
		Application string `json:"application"`
		Mission     string `json:"mission"`
		Payment     string `json:"payment"`
		PaymentTx   string `json:"paymentTx"` // consumed tx hashes, keyed chain|hash
		Ledger      string `json:"ledger"`
		Balance     string `json:"balance"`
		Trust       string `json:"trust"`
		Idempotency string `json:"idempotency"`
	} `json:"bucket"`

	ec *mandrill.Client
}

// FillDefaults applies the documented defaults to unset fields. New calls
// it on load; tests building a Config by hand call it directly.
func (c *Config) FillDefaults() {
	if c.DefaultPayoutHours == 0 {
		c.DefaultPayoutHours = 72
	}
	if c.MaxPayoutHours == 0 {
		c.MaxPayoutHours = 168
	}
	if c.DefaultFeePercent == 0 {
		c.DefaultFeePercent = 10
	}
	if c.IdempotencyHours == 0 {
		c.IdempotencyHours = 24
	}

	b := &c.Bucket
	set := func(p *string, v string) {
		if *p == "" {
			*p = v
		}
	}
	set(&b.User, "user")
	set(&b.ApiKey, "apiKey")
	set(&b.Deal, "deal")
	set(&b.Application, "application")
	set(&b.Mission, "mission")
	set(&b.Payment, "payment")
	set(&b.PaymentTx, "paymentTx")
	set(&b.Ledger, "ledger")
	set(&b.Balance, "balance")
	set(&b.Trust, "trust")
	set(&b.Idempotency, "idempotency")
}

// AllBuckets returns every bucket the server must create on boot, including
// the shared index bucket used by misc.GetNextIndex.
func (c *Config) AllBuckets() []string {
	b := &c.Bucket
	return []string{
		"index",
		b.User, b.ApiKey, b.Deal, b.Application, b.Mission, b.Payment,
		b.PaymentTx, b.Ledger, b.Balance, b.Trust, b.Idempotency,
	}
}

// ReplyMailClient returns the mandrill client, or nil when mail is not
// configured (sandbox runs never mail).
func (c *Config) ReplyMailClient() *mandrill.Client {
	if c.Mandrill.APIKey == "" || c.Sandbox {
		return nil
	}
	if c.ec == nil {
		c.ec = mandrill.New(c.Mandrill.APIKey, c.Mandrill.SubAccount, c.Mandrill.FromEmail, c.Mandrill.FromName)
	}
	return c.ec
}
