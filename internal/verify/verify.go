package verify

import (
	"log"

	"github.com/humanadsai/humanads/internal/chain"
)

// Machine-readable failure codes. Each maps to exactly one cause so callers
// can retry once the underlying condition is fixed.
const (
	CodeSimulatedHash    = "simulated_hash"
	CodeNotFound         = "tx_not_found"
	CodeReverted         = "tx_reverted"
	CodeWrongRecipient   = "wrong_recipient"
	CodeWrongAmount      = "wrong_amount"
	CodeWrongToken       = "wrong_token"
	CodeInsufficientConf = "insufficient_confirmations"
	CodeRPCUnavailable   = "rpc_unavailable"
	CodeRPCSkipped       = "rpc_skipped" // fail-open only
)

// Expectation is what a claimed payment hash must prove.
type Expectation struct {
	Chain       string
	Token       string
	Recipient   string
	AmountCents int64
}

// Result of a verification attempt. Verified=false carries the failure code.
type Result struct {
	Verified      bool
	Confirmations int64
	Code          string
}

// Strategy is selected once per deployment: ledger (simulated) mode or
// on-chain mode. Callers own replay protection and must check it before
// invoking Verify, so the replay invariant holds even when the network call
// is skipped.
type Strategy interface {
	Verify(txHash string, exp Expectation) (*Result, error)
	Simulated() bool
}

// Simulated accepts any hash unconditionally; used for rehearsal runs where
// no real value moves.
type SimulatedStrategy struct{}

func (SimulatedStrategy) Verify(txHash string, exp Expectation) (*Result, error) {
	return &Result{Verified: true}, nil
}

func (SimulatedStrategy) Simulated() bool { return true }

// OnChain verifies a hash against the node: success status, exact recipient,
// exact amount through the token's decimals, matching token contract, and
// confirmation depth at or above the chain's minimum.
type OnChain struct {
	Adapter *chain.Adapter

	// FailOpen skips verification when the node is unreachable. Off by
	// default; enabling it is an audited configuration choice.
	FailOpen bool
}

func (o *OnChain) Simulated() bool { return false }

func (o *OnChain) Verify(txHash string, exp Expectation) (*Result, error) {
	if chain.IsSimulatedHash(txHash) {
		return &Result{Code: CodeSimulatedHash}, nil
	}

	receipt, err := o.Adapter.TransactionReceipt(exp.Chain, txHash)
	if err != nil {
		return o.failure(txHash, err)
	}
	if receipt == nil {
		return &Result{Code: CodeNotFound}, nil
	}
	if !receipt.Succeeded() {
		return &Result{Code: CodeReverted}, nil
	}

	spec := chain.Get(exp.Chain)
	contract := chain.NormalizeAddr(spec.Tokens[exp.Token])
	wantTo := chain.NormalizeAddr(exp.Recipient)
	wantAmount := chain.UnitsFromCents(exp.AmountCents)

	// a transaction may emit several Transfer events (routers, multi-sends);
	// any one of them matching the expected token, recipient and amount
	// settles the payment. The failure code reports how close the best
	// candidate got.
	var sawContract, sawRecipient, matched bool
	for _, lg := range receipt.Logs {
		if len(lg.Topics) < 3 || chain.NormalizeAddr(lg.Topics[0]) != chain.TransferTopic {
			continue
		}
		if chain.NormalizeAddr(lg.Address) != contract {
			continue
		}
		sawContract = true
		if chain.TopicAddr(lg.Topics[2]) != wantTo {
			continue
		}
		sawRecipient = true
		if amount, err := chain.HexToBig(lg.Data); err == nil && amount.Cmp(wantAmount) == 0 {
			matched = true
			break
		}
	}
	switch {
	case matched:
	case sawRecipient:
		return &Result{Code: CodeWrongAmount}, nil
	case sawContract:
		return &Result{Code: CodeWrongRecipient}, nil
	default:
		return &Result{Code: CodeWrongToken}, nil
	}

	head, err := o.Adapter.BlockNumber(exp.Chain)
	if err != nil {
		return o.failure(txHash, err)
	}

	// confirmation depth is blocks mined on top of the transaction's block;
	// a transaction sitting in the head block has zero confirmations
	confs := head - receipt.Block()
	if confs < chain.MinConfirmations(exp.Chain) {
		return &Result{Confirmations: confs, Code: CodeInsufficientConf}, nil
	}

	return &Result{Verified: true, Confirmations: confs}, nil
}

// failure handles RPC-level errors. Default is fail closed: the caller gets
// a retryable rpc_unavailable and no state advances.
func (o *OnChain) failure(txHash string, err error) (*Result, error) {
	if o.FailOpen {
		log.Println("WARNING: rpc unreachable, proceeding WITHOUT verification (fail-open):", txHash, err)
		return &Result{Verified: true, Code: CodeRPCSkipped}, nil
	}
	log.Println("rpc unreachable, refusing to settle:", txHash, err)
	return &Result{Code: CodeRPCUnavailable}, err
}
