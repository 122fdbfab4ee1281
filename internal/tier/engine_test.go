package tier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vietddude/tokend/internal/core/domain"
	"github.com/vietddude/tokend/internal/infra/memory"
)

func addr(i int) string {
	return fmt.Sprintf("%043d", i)
}

type fakeSnapshot struct {
	records map[string]domain.WalletTierRecord
	err     error
	calls   int
}

func (f *fakeSnapshot) FetchSnapshot(ctx context.Context) (map[string]domain.WalletTierRecord, error) {
	f.calls++
	return f.records, f.err
}

type fakeLedger struct {
	balances  []domain.WalletBalance
	err       error
	endpoints []string
}

func (f *fakeLedger) RankedBalances(ctx context.Context, endpoint string) ([]domain.WalletBalance, error) {
	f.endpoints = append(f.endpoints, endpoint)
	if f.err != nil {
		return nil, f.err
	}
	return f.balances, nil
}

func validRecords(n int, ts int64) map[string]domain.WalletTierRecord {
	records := make(map[string]domain.WalletTierRecord, n)
	for i := 0; i < n; i++ {
		rank := i + 1
		records[addr(i)] = domain.WalletTierRecord{
			Balance:           fmt.Sprintf("%d", (n-i)*1000),
			Rank:              rank,
			Tier:              TierOf(rank, n),
			Progress:          ProgressOf(rank, n),
			SnapshotTimestamp: ts,
			TotalHolders:      n,
		}
	}
	return records
}

func fastConfig() Config {
	return Config{
		LedgerEndpoints: []string{"http://cu-a", "http://cu-b"},
		MaxAttempts:     4,
		BaseDelay:       time.Millisecond,
		MaxDelay:        time.Millisecond,
	}
}

func TestGetTiers_PrimarySnapshotWins(t *testing.T) {
	ts := time.Now().Add(-time.Hour).UnixMilli()
	snapshot := &fakeSnapshot{records: validRecords(10, ts)}
	ledger := &fakeLedger{}

	engine := NewEngine(fastConfig(), memory.NewStore(), snapshot, ledger)
	got, err := engine.GetTiers(context.Background(), []string{addr(0), addr(9)})
	if err != nil {
		t.Fatalf("GetTiers failed: %v", err)
	}

	if got[addr(0)].Tier != 1 || got[addr(0)].Rank != 1 {
		t.Errorf("Expected rank 1 tier 1 for top holder, got %+v", got[addr(0)])
	}
	if got[addr(9)].Tier != 5 {
		t.Errorf("Expected tier 5 for bottom holder, got %+v", got[addr(9)])
	}
	if len(ledger.endpoints) != 0 {
		t.Error("Expected ledger never consulted when primary is valid")
	}
}

func TestGetTiers_CountMismatchForcesFallback(t *testing.T) {
	ts := time.Now().UnixMilli()
	records := validRecords(10, ts)
	// Declared holder count disagrees with the parsed record count.
	for a, rec := range records {
		rec.TotalHolders = 11
		records[a] = rec
	}

	snapshot := &fakeSnapshot{records: records}
	ledger := &fakeLedger{balances: []domain.WalletBalance{
		{Address: addr(0), Balance: "5000"},
		{Address: addr(1), Balance: "3000"},
	}}

	engine := NewEngine(fastConfig(), memory.NewStore(), snapshot, ledger)
	got, err := engine.GetTiers(context.Background(), []string{addr(0)})
	if err != nil {
		t.Fatalf("GetTiers failed: %v", err)
	}

	if len(ledger.endpoints) == 0 {
		t.Fatal("Expected fallback path to query the ledger")
	}
	if got[addr(0)].Rank != 1 || got[addr(0)].TotalHolders != 2 {
		t.Errorf("Expected rank 1 of 2 from ledger recomputation, got %+v", got[addr(0)])
	}
}

func TestGetTiers_StaleSnapshotForcesFallback(t *testing.T) {
	ts := time.Now().Add(-25 * time.Hour).UnixMilli()
	snapshot := &fakeSnapshot{records: validRecords(5, ts)}
	ledger := &fakeLedger{balances: []domain.WalletBalance{
		{Address: addr(0), Balance: "100"},
	}}

	engine := NewEngine(fastConfig(), memory.NewStore(), snapshot, ledger)
	if _, err := engine.GetTiers(context.Background(), []string{addr(0)}); err != nil {
		t.Fatalf("GetTiers failed: %v", err)
	}
	if len(ledger.endpoints) == 0 {
		t.Error("Expected snapshot older than 24h to be rejected")
	}
}

func TestGetTiers_FallbackAlternatesEndpoints(t *testing.T) {
	snapshot := &fakeSnapshot{err: errors.New("endpoint down")}
	ledger := &fakeLedger{err: errors.New("cu down")}

	engine := NewEngine(fastConfig(), memory.NewStore(), snapshot, ledger)
	_, err := engine.GetTiers(context.Background(), []string{addr(0)})
	if err == nil {
		t.Fatal("Expected error when both paths fail")
	}

	want := []string{"http://cu-a", "http://cu-b", "http://cu-a", "http://cu-b"}
	if len(ledger.endpoints) != len(want) {
		t.Fatalf("Expected %d ledger attempts, got %d", len(want), len(ledger.endpoints))
	}
	for i, ep := range want {
		if ledger.endpoints[i] != ep {
			t.Errorf("Attempt %d hit %s, want %s (parity alternation)", i, ledger.endpoints[i], ep)
		}
	}
}

func TestGetTiers_AbsentAddressSynthesizesDefault(t *testing.T) {
	ts := time.Now().UnixMilli()
	snapshot := &fakeSnapshot{records: validRecords(10, ts)}

	engine := NewEngine(fastConfig(), memory.NewStore(), snapshot, &fakeLedger{})
	unknown := addr(999)
	got, err := engine.GetTiers(context.Background(), []string{unknown})
	if err != nil {
		t.Fatalf("GetTiers failed: %v", err)
	}

	rec := got[unknown]
	if rec.Balance != "0" || rec.Rank != 0 || rec.Tier != LowestTier || rec.Progress != 0 {
		t.Errorf("Expected default record for absent address, got %+v", rec)
	}
	if rec.SnapshotTimestamp != ts || rec.TotalHolders != 10 {
		t.Errorf("Expected snapshot context copied into default record, got %+v", rec)
	}
}

func TestGetTiers_SnapshotCachedWholeWithAlignedTTL(t *testing.T) {
	ts := time.Now().Add(-time.Hour).UnixMilli()
	snapshot := &fakeSnapshot{records: validRecords(10, ts)}
	store := memory.NewStore()

	engine := NewEngine(fastConfig(), store, snapshot, &fakeLedger{})
	if _, err := engine.GetTiers(context.Background(), []string{addr(0)}); err != nil {
		t.Fatalf("First GetTiers failed: %v", err)
	}
	if _, err := engine.GetTiers(context.Background(), []string{addr(1)}); err != nil {
		t.Fatalf("Second GetTiers failed: %v", err)
	}

	if snapshot.calls != 1 {
		t.Errorf("Expected primary fetched once, second call served from cache; got %d fetches", snapshot.calls)
	}

	data, found, err := store.Get(context.Background(), "tier:snapshot")
	if err != nil || !found {
		t.Fatalf("Expected whole snapshot cached, found=%v err=%v", found, err)
	}
	var snap domain.TierSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("Failed to decode cached snapshot: %v", err)
	}
	if snap.TotalWallets != 10 || len(snap.Records) != 10 {
		t.Errorf("Expected entire 10-record snapshot cached, got %d/%d", snap.TotalWallets, len(snap.Records))
	}
}
