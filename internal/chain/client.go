package chain

import (
	"context"
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"
	"golang.org/x/time/rate"

	"betIndexer/internal/model"
)

const defaultPageSize = 100

// eventProvider is the subset of the starknet.go provider used by Client.
type eventProvider interface {
	BlockNumber(ctx context.Context) (uint64, error)
	Events(ctx context.Context, input rpc.EventsInput) (*rpc.EventChunk, error)
}

// Options tunes the RPC client.
type Options struct {
	// RateLimit caps RPC requests per second. Zero disables throttling.
	RateLimit float64
}

// EventQuery selects one contract's events over an inclusive block range.
type EventQuery struct {
	Contract  *felt.Felt
	FromBlock uint64
	ToBlock   uint64
	Key       *felt.Felt
	PageSize  int
}

// Client wraps the Starknet JSON-RPC provider.
type Client struct {
	provider eventProvider
	limiter  *rate.Limiter
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(rpcURL string, opts Options) (*Client, error) {
	provider, err := rpc.NewProvider(rpcURL)
	if err != nil {
		return nil, err
	}
	return newClient(provider, opts), nil
}

func newClient(provider eventProvider, opts Options) *Client {
	c := &Client{provider: provider}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

// LatestBlockNumber returns the current chain height.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	return c.provider.BlockNumber(ctx)
}

// Ping checks that the node answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.LatestBlockNumber(ctx)
	return err
}

// FetchEvents returns every matching event in the range, following
// continuation tokens until the node reports no more pages.
func (c *Client) FetchEvents(ctx context.Context, q EventQuery) ([]model.RawEvent, error) {
	if q.Contract == nil {
		return nil, fmt.Errorf("contract address is required")
	}
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	filter := rpc.EventFilter{
		FromBlock: rpc.WithBlockNumber(q.FromBlock),
		ToBlock:   rpc.WithBlockNumber(q.ToBlock),
		Address:   q.Contract,
	}
	if q.Key != nil {
		filter.Keys = [][]*felt.Felt{{q.Key}}
	}

	var events []model.RawEvent
	token := ""
	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}

		chunk, err := c.provider.Events(ctx, rpc.EventsInput{
			EventFilter: filter,
			ResultPageRequest: rpc.ResultPageRequest{
				ContinuationToken: token,
				ChunkSize:         pageSize,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("get events %d-%d: %w", q.FromBlock, q.ToBlock, err)
		}
		if chunk == nil {
			break
		}

		for _, ev := range chunk.Events {
			events = append(events, model.RawEvent{
				BlockNumber:     ev.BlockNumber,
				TransactionHash: ev.TransactionHash,
				FromAddress:     ev.FromAddress,
				Data:            ev.Data,
			})
		}

		if chunk.ContinuationToken == "" {
			break
		}
		if chunk.ContinuationToken == token {
			return nil, fmt.Errorf("get events %d-%d: continuation token %q did not advance", q.FromBlock, q.ToBlock, token)
		}
		token = chunk.ContinuationToken
	}

	return events, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}
