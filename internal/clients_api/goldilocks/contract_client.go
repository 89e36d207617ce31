package goldilocks

// On-chain PRG price source (Berachain)
// Reads Goldiswap fsl/psl/totalSupply and Goldilocked totalSupply/balanceOf(treasury) via eth_call

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"ticker-bot/internal/features/prices"
	logging "ticker-bot/internal/infra/log"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	SourceName = "goldilocks"
	TokenID    = "prg"

	DefaultRPCURL = "https://rpc.berachain.com/"
)

var (
	selFSL         = selector("fsl()")
	selPSL         = selector("psl()")
	selTotalSupply = selector("totalSupply()")
	selBalanceOf   = selector("balanceOf(address)")
)

func selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

// Caller is the subset of ethclient.Client the source needs.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

type Addresses struct {
	Goldiswap   string
	Goldilocked string
	Treasury    string
}

// State is one consistent read of the contracts, amounts in ether units.
type State struct {
	FSL               float64
	PSL               float64
	Supply            float64
	CirculatingSupply float64
	FloorPrice        float64
	MarketPrice       float64
	Price             float64
	FetchedAt         time.Time
}

type Client struct {
	caller      Caller
	closer      func()
	goldiswap   common.Address
	goldilocked common.Address
	treasury    common.Address
	timeout     time.Duration
	now         func() time.Time

	mu   sync.Mutex
	last *State
}

// Dial connects to the JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string, addrs Addresses) (*Client, error) {
	if rpcURL == "" {
		rpcURL = DefaultRPCURL
	}
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial berachain rpc: %w", err)
	}
	c, err := NewClient(ec, addrs)
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.closer = ec.Close
	return c, nil
}

func NewClient(caller Caller, addrs Addresses) (*Client, error) {
	parsed := make([]common.Address, 0, 3)
	for _, a := range []string{addrs.Goldiswap, addrs.Goldilocked, addrs.Treasury} {
		if !common.IsHexAddress(a) {
			return nil, fmt.Errorf("invalid contract address %q", a)
		}
		parsed = append(parsed, common.HexToAddress(a))
	}
	return &Client{
		caller:      caller,
		goldiswap:   parsed[0],
		goldilocked: parsed[1],
		treasury:    parsed[2],
		timeout:     15 * time.Second,
		now:         time.Now,
	}, nil
}

func (c *Client) Name() string { return SourceName }

func (c *Client) Supports(id string) bool {
	return strings.EqualFold(strings.TrimSpace(id), TokenID)
}

func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// FetchQuotes answers only for "prg"; contracts carry no 24h change.
func (c *Client) FetchQuotes(ctx context.Context, ids []string) (map[string]prices.Quote, error) {
	out := make(map[string]prices.Quote, 1)
	var unknown []string
	want := false
	for _, id := range ids {
		if c.Supports(id) {
			want = true
		} else {
			unknown = append(unknown, id)
		}
	}

	if want {
		st, err := c.FetchState(ctx)
		if err != nil {
			return out, err
		}
		out[TokenID] = prices.Quote{
			ID:        TokenID,
			Symbol:    "PRG",
			Price:     st.Price,
			Source:    SourceName,
			FetchedAt: st.FetchedAt,
		}
	}

	if len(unknown) > 0 {
		return out, &prices.NotFoundError{IDs: unknown}
	}
	return out, nil
}

// FetchState reads the five contract values and derives the prices.
func (c *Client) FetchState(ctx context.Context) (*State, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	fsl, err := c.callUint(ctx, c.goldiswap, selFSL)
	if err != nil {
		return nil, fmt.Errorf("failed to read fsl: %w", err)
	}
	psl, err := c.callUint(ctx, c.goldiswap, selPSL)
	if err != nil {
		return nil, fmt.Errorf("failed to read psl: %w", err)
	}
	supply, err := c.callUint(ctx, c.goldiswap, selTotalSupply)
	if err != nil {
		return nil, fmt.Errorf("failed to read supply: %w", err)
	}
	prgSupply, err := c.callUint(ctx, c.goldilocked, selTotalSupply)
	if err != nil {
		return nil, fmt.Errorf("failed to read prg supply: %w", err)
	}
	treasuryData := append(append([]byte{}, selBalanceOf...), common.LeftPadBytes(c.treasury.Bytes(), 32)...)
	treasuryBalance, err := c.callUint(ctx, c.goldilocked, treasuryData)
	if err != nil {
		return nil, fmt.Errorf("failed to read treasury balance: %w", err)
	}

	st := &State{
		FSL:               fromWei(fsl),
		PSL:               fromWei(psl),
		Supply:            fromWei(supply),
		CirculatingSupply: fromWei(new(big.Int).Sub(prgSupply, treasuryBalance)),
		FetchedAt:         c.now(),
	}
	st.FloorPrice = FloorPrice(st.FSL, st.Supply)
	st.MarketPrice = MarketPrice(st.FSL, st.PSL, st.Supply)
	st.Price = PRGPrice(st.FSL, st.PSL, st.Supply)

	logging.LogDebug("PRG contract data",
		zap.Float64("fsl", st.FSL),
		zap.Float64("psl", st.PSL),
		zap.Float64("supply", st.Supply),
		zap.Float64("price", st.Price),
		zap.Float64("market", st.MarketPrice),
		zap.Float64("floor", st.FloorPrice))

	c.mu.Lock()
	c.last = st
	c.mu.Unlock()
	return st, nil
}

// LastState is the most recent successful read, or nil.
func (c *Client) LastState() *State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	st := *c.last
	return &st
}

// BlockNumber is used by health checks.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.caller.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get block number: %w", err)
	}
	return n, nil
}

func (c *Client) callUint(ctx context.Context, to common.Address, data []byte) (*big.Int, error) {
	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("short return data (%d bytes)", len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

func fromWei(v *big.Int) float64 {
	return decimal.NewFromBigInt(v, -18).InexactFloat64()
}
