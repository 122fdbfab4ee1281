package ao

import (
	"context"
	"fmt"
	"strconv"

	"github.com/vietddude/tokend/internal/core/domain"
)

// Ledger exposes the typed integrations tokend needs from ledger processes.
type Ledger struct {
	client   *Client
	tagMatch TagMatch
}

// NewLedger creates a typed ledger facade with the given tag-match strategy.
func NewLedger(client *Client, tagMatch TagMatch) *Ledger {
	return &Ledger{client: client, tagMatch: tagMatch}
}

// TokenInfo fetches token metadata via an Info dry-run, extracting the
// Name/Ticker/Denomination/Logo tags from the reply.
func (l *Ledger) TokenInfo(ctx context.Context, endpoint, processID string) (domain.TokenInfo, error) {
	msg, err := l.client.DryRun(ctx, Query{
		Endpoint:  endpoint,
		ProcessID: processID,
		Tags:      []Tag{{Name: "Action", Value: "Info"}},
	})
	if err != nil {
		return domain.TokenInfo{}, err
	}

	info := domain.TokenInfo{ProcessID: processID}
	name, ok := msg.Tag("Name", l.tagMatch)
	if !ok {
		return domain.TokenInfo{}, fmt.Errorf("info reply for %s missing Name tag", processID)
	}
	info.Name = name
	info.Ticker, _ = msg.Tag("Ticker", l.tagMatch)
	info.Logo, _ = msg.Tag("Logo", l.tagMatch)

	if denom, ok := msg.Tag("Denomination", l.tagMatch); ok {
		d, err := strconv.Atoi(denom)
		if err != nil {
			return domain.TokenInfo{}, fmt.Errorf("invalid denomination %q: %w", denom, err)
		}
		info.Denomination = d
	}

	return info, nil
}

// RankedBalances fetches the balance-sorted wallet list of processID.
// The reply Data is a JSON array ordered by descending balance; rank is the
// 1-based list index.
func (l *Ledger) RankedBalances(ctx context.Context, endpoint, processID string) ([]domain.WalletBalance, error) {
	msg, err := l.client.DryRun(ctx, Query{
		Endpoint:  endpoint,
		ProcessID: processID,
		Tags:      []Tag{{Name: "Action", Value: "Ranked-Balances"}},
	})
	if err != nil {
		return nil, err
	}

	var balances []domain.WalletBalance
	if err := msg.DataJSON(&balances); err != nil {
		return nil, err
	}
	return balances, nil
}

// Registry fetches the token listing of the registry process.
func (l *Ledger) Registry(ctx context.Context, endpoint, processID string) ([]domain.RegistryEntry, error) {
	msg, err := l.client.DryRun(ctx, Query{
		Endpoint:  endpoint,
		ProcessID: processID,
		Tags:      []Tag{{Name: "Action", Value: "Get-Tokens"}},
	})
	if err != nil {
		return nil, err
	}

	var entries []domain.RegistryEntry
	if err := msg.DataJSON(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// PoolPrice quotes one token against a dex pool process, reading the Price
// tag of the reply.
func (l *Ledger) PoolPrice(ctx context.Context, endpoint, poolProcessID string) (float64, error) {
	msg, err := l.client.DryRun(ctx, Query{
		Endpoint:  endpoint,
		ProcessID: poolProcessID,
		Tags:      []Tag{{Name: "Action", Value: "Get-Price"}},
	})
	if err != nil {
		return 0, err
	}

	raw, ok := msg.Tag("Price", l.tagMatch)
	if !ok {
		return 0, fmt.Errorf("price reply from %s missing Price tag", poolProcessID)
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", raw, err)
	}
	return price, nil
}
