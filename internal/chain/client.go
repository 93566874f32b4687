package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/TreasuredLabs/TreasuredLabs/internal/scanner"
)

const erc20ABIJSON = `[
  {"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
  {"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
  {"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
  {"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var erc20ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("failed to parse ERC-20 ABI: " + err.Error())
	}
	erc20ABI = parsed
}

// bytecode opcode signatures matched against deployed contract code. These
// are pluggable heuristics, not an authoritative honeypot oracle.
var maliciousSignatures = map[string]string{
	"transfer_disabled": "a9059cbb00000000",
	"blacklist_hook":    "f9f92be4",
	"tax_manipulation":  "8f02bb5b",
	"sell_disabled":     "d01dd6d2",
}

// ClientOptions parameterise on-chain access.
type ClientOptions struct {
	RPCURL         string
	RequestTimeout time.Duration
	RequestsPerSec int
}

// Client reads contract state over Ethereum RPC. The connection is dialed
// lazily and reused; calls are throttled to stay inside RPC provider limits.
type Client struct {
	opts      ClientOptions
	logger    zerolog.Logger
	limiter   *rate.Limiter
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewClient builds an RPC-backed chain client.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 10
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "chain_client").Logger(),
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSec), opts.RequestsPerSec),
	}
}

// Resolve checks the identifier parses as an address and has deployed code.
func (c *Client) Resolve(ctx context.Context, contractID string) error {
	if !common.IsHexAddress(contractID) {
		return fmt.Errorf("invalid contract address %q", contractID)
	}

	code, err := c.code(ctx, contractID)
	if err != nil {
		return err
	}
	if len(code) == 0 {
		return fmt.Errorf("no contract deployed at %s", contractID)
	}
	return nil
}

// TokenInfo reads token metadata directly from the contract.
func (c *Client) TokenInfo(ctx context.Context, contractID string) (scanner.TokenMetrics, error) {
	addr := common.HexToAddress(contractID)

	name, err := c.callString(ctx, addr, "name")
	if err != nil {
		return scanner.TokenMetrics{}, err
	}
	symbol, err := c.callString(ctx, addr, "symbol")
	if err != nil {
		return scanner.TokenMetrics{}, err
	}

	decimals, err := c.callUint8(ctx, addr, "decimals")
	if err != nil {
		return scanner.TokenMetrics{}, err
	}

	supply, err := c.callBigInt(ctx, addr, "totalSupply")
	if err != nil {
		return scanner.TokenMetrics{}, err
	}

	return scanner.TokenMetrics{
		Name:        name,
		Symbol:      symbol,
		Decimals:    int(decimals),
		TotalSupply: decimal.NewFromBigInt(supply, -int32(decimals)),
	}, nil
}

// Bytecode fetches deployed code and scans it for known risk signatures.
func (c *Client) Bytecode(ctx context.Context, contractID string) (scanner.BytecodeReport, error) {
	code, err := c.code(ctx, contractID)
	if err != nil {
		return scanner.BytecodeReport{}, err
	}

	hexCode := common.Bytes2Hex(code)
	var found []string
	for name, sig := range maliciousSignatures {
		if strings.Contains(hexCode, sig) {
			found = append(found, name)
		}
	}

	return scanner.BytecodeReport{
		SizeBytes:         len(code),
		MaliciousPatterns: found,
	}, nil
}

func (c *Client) code(ctx context.Context, contractID string) ([]byte, error) {
	if !common.IsHexAddress(contractID) {
		return nil, fmt.Errorf("invalid contract address %q", contractID)
	}

	client, ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	return client.CodeAt(ctx, common.HexToAddress(contractID), nil)
}

func (c *Client) callString(ctx context.Context, addr common.Address, method string) (string, error) {
	out, err := c.call(ctx, addr, method)
	if err != nil {
		return "", err
	}
	s, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("unexpected %s output type", method)
	}
	return s, nil
}

func (c *Client) callUint8(ctx context.Context, addr common.Address, method string) (uint8, error) {
	out, err := c.call(ctx, addr, method)
	if err != nil {
		return 0, err
	}
	v, ok := out.(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected %s output type", method)
	}
	return v, nil
}

func (c *Client) callBigInt(ctx context.Context, addr common.Address, method string) (*big.Int, error) {
	out, err := c.call(ctx, addr, method)
	if err != nil {
		return nil, err
	}
	v, ok := out.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s output type", method)
	}
	return v, nil
}

func (c *Client) call(ctx context.Context, addr common.Address, method string) (interface{}, error) {
	client, ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	payload, err := erc20ABI.Pack(method)
	if err != nil {
		return nil, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return nil, err
	}

	outputs, err := erc20ABI.Unpack(method, res)
	if err != nil {
		return nil, err
	}
	if len(outputs) != 1 {
		return nil, fmt.Errorf("unexpected %s response", method)
	}
	return outputs[0], nil
}

func (c *Client) prepare(ctx context.Context) (*ethclient.Client, context.Context, context.CancelFunc, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, nil, err
	}

	client, err := c.getClient(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	return client, callCtx, cancel, nil
}

func (c *Client) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	if c.opts.RPCURL == "" {
		return nil, errors.New("chain rpc url not configured")
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}
