// Package ao implements the ledger query interface: read-only dry-run
// messages against compute-unit endpoints, with tag-based and JSON-data
// response extraction.
package ao

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Tag is a name/value pair attached to a ledger message.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// TagMatch selects the tag-name matching strategy of an integration.
// Processes differ in tag casing, so the strategy is explicit per
// integration instead of an implicit runtime behavior.
type TagMatch int

const (
	// MatchExact matches tag names byte for byte.
	MatchExact TagMatch = iota
	// MatchFold matches tag names case-insensitively.
	MatchFold
)

// ParseTagMatch maps a config string to a TagMatch, defaulting to exact.
func ParseTagMatch(s string) TagMatch {
	if strings.EqualFold(s, "fold") || strings.EqualFold(s, "case-insensitive") {
		return MatchFold
	}
	return MatchExact
}

// Message is one reply message of a dry-run.
type Message struct {
	Data dataString `json:"Data"`
	Tags []Tag      `json:"Tags"`
}

// dataString tolerates both string and raw-JSON Data payloads.
type dataString string

func (d *dataString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = dataString(s)
		return nil
	}
	*d = dataString(b)
	return nil
}

// Tag returns the value of the first tag whose name matches, per strategy.
func (m *Message) Tag(name string, mode TagMatch) (string, bool) {
	for _, t := range m.Tags {
		if t.Name == name || (mode == MatchFold && strings.EqualFold(t.Name, name)) {
			return t.Value, true
		}
	}
	return "", false
}

// DataJSON parses the message Data as JSON into v.
func (m *Message) DataJSON(v any) error {
	if err := json.Unmarshal([]byte(m.Data), v); err != nil {
		return fmt.Errorf("parse message data: %w", err)
	}
	return nil
}

// Query describes one dry-run request.
type Query struct {
	Endpoint  string
	ProcessID string
	Tags      []Tag
	Data      string
}

// Client posts dry-run queries to compute-unit endpoints.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a ledger query client.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// DryRun executes the query and returns the first reply message.
func (c *Client) DryRun(ctx context.Context, q Query) (*Message, error) {
	reqBody := map[string]any{
		"Id":     "1234",
		"Target": q.ProcessID,
		"Owner":  "1234",
		"Anchor": "0",
		"Data":   q.Data,
		"Tags":   q.Tags,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/dry-run?process-id=%s", strings.TrimSuffix(q.Endpoint, "/"), q.ProcessID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dry-run call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	var dr struct {
		Messages []Message `json:"Messages"`
	}
	if err := json.Unmarshal(body, &dr); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(dr.Messages) == 0 {
		return nil, fmt.Errorf("empty reply from process %s", q.ProcessID)
	}

	return &dr.Messages[0], nil
}
