package chain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"
)

var (
	ErrNoEndpoint = errors.New("no rpc endpoint configured for chain")
	ErrRPC        = errors.New("rpc request failed")
)

// ERC-20 Transfer(address,address,uint256) event signature.
const TransferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// Adapter issues read-only JSON-RPC calls to blockchain nodes. It never
// mutates anything, on-chain or off.
type Adapter struct {
	endpoints map[string]string
	client    *http.Client
}

func NewAdapter(endpoints map[string]string) *Adapter {
	return &Adapter{
		endpoints: endpoints,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (a *Adapter) call(chainName, method string, params []interface{}, out interface{}) error {
	endpoint := a.endpoints[chainName]
	if endpoint == "" {
		return ErrNoEndpoint
	}

	body, err := json.Marshal(&rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}

	resp, err := a.client.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRPC, err)
	}
	defer resp.Body.Close()

	var rr rpcResponse
	if err = json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return fmt.Errorf("%w: %v", ErrRPC, err)
	}
	if rr.Error != nil {
		return fmt.Errorf("%w: %s (%d)", ErrRPC, rr.Error.Message, rr.Error.Code)
	}
	if out != nil && len(rr.Result) != 0 {
		return json.Unmarshal(rr.Result, out)
	}
	return nil
}

// Log is a receipt log entry; for ERC-20 transfers the token contract is
// Address, the recipient is Topics[2] and the amount is Data.
type Log struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

// Receipt is the subset of eth_getTransactionReceipt the verifier needs.
type Receipt struct {
	TxHash      string `json:"transactionHash"`
	Status      string `json:"status"` // "0x1" success, "0x0" reverted
	BlockNumber string `json:"blockNumber"`
	To          string `json:"to"`
	Logs        []*Log `json:"logs"`
}

func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == "0x1"
}

func (r *Receipt) Block() int64 {
	n, _ := HexToInt(r.BlockNumber)
	return n
}

// TransactionReceipt fetches a mined transaction's receipt; nil when the
// node does not know the hash.
func (a *Adapter) TransactionReceipt(chainName, txHash string) (*Receipt, error) {
	var r *Receipt
	if err := a.call(chainName, "eth_getTransactionReceipt", []interface{}{txHash}, &r); err != nil {
		return nil, err
	}
	return r, nil
}

// BlockNumber returns the chain head height.
func (a *Adapter) BlockNumber(chainName string) (int64, error) {
	var hex string
	if err := a.call(chainName, "eth_blockNumber", []interface{}{}, &hex); err != nil {
		return 0, err
	}
	return HexToInt(hex)
}

// Balance returns the native balance of an address in wei.
func (a *Adapter) Balance(chainName, addr string) (*big.Int, error) {
	var hex string
	if err := a.call(chainName, "eth_getBalance", []interface{}{addr, "latest"}, &hex); err != nil {
		return nil, err
	}
	return HexToBig(hex)
}

func HexToInt(h string) (int64, error) {
	b, err := HexToBig(h)
	if err != nil {
		return 0, err
	}
	return b.Int64(), nil
}

func HexToBig(h string) (*big.Int, error) {
	h = strings.TrimPrefix(strings.TrimSpace(h), "0x")
	if h == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(h, 16)
	if !ok {
		return nil, fmt.Errorf("bad hex quantity: %q", h)
	}
	return n, nil
}

// TopicAddr extracts the 20-byte address packed into a 32-byte log topic.
func TopicAddr(topic string) string {
	t := strings.TrimPrefix(strings.ToLower(topic), "0x")
	if len(t) < 40 {
		return ""
	}
	return "0x" + t[len(t)-40:]
}
