package domain

import "regexp"

// WalletTierRecord describes one wallet's position in a ranked snapshot.
// Rank is 1-based; 0 means the wallet is unranked and is omitted from JSON.
type WalletTierRecord struct {
	Balance           string  `json:"balance"`
	Rank              int     `json:"rank,omitempty"`
	Tier              int     `json:"tier"`
	Progress          float64 `json:"progress"`
	SnapshotTimestamp int64   `json:"snapshotTimestamp"`
	TotalHolders      int     `json:"totalHolders"`
}

// TierSnapshot is a timestamped full capture of ranked wallet data.
// TotalWallets always equals len(Records).
type TierSnapshot struct {
	Records           map[string]WalletTierRecord `json:"records"`
	SnapshotTimestamp int64                       `json:"snapshotTimestamp"` // unix millis
	TotalWallets      int                         `json:"totalWallets"`
}

// WalletBalance is one entry of a balance-sorted wallet list from the ledger.
type WalletBalance struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

var addressPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{43}$`)

// ValidAddress reports whether s is a well-formed 43-character ledger address.
func ValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}
