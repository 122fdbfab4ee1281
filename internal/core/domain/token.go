package domain

// TokenInfo holds the metadata of a token process.
type TokenInfo struct {
	ProcessID    string `json:"processId"`
	Name         string `json:"name"`
	Ticker       string `json:"ticker"`
	Denomination int    `json:"denomination"`
	Logo         string `json:"logo,omitempty"`
}

// RegistryEntry is a single token listed by the registry process.
type RegistryEntry struct {
	ProcessID string `json:"processId"`
	Name      string `json:"name,omitempty"`
	Ticker    string `json:"ticker,omitempty"`
}
