// Package relay speaks to the chat relay endpoint: a single HTTP POST that
// forwards the user's message to the external workflow engine and returns
// its reply.
package relay

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

// Product is a product the assistant surfaced in its reply.
type Product struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int    `json:"price"`
	Image string `json:"image,omitempty"`
}

// ActionButton is a tappable action offered alongside a reply.
type ActionButton struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// Reply is the parsed assistant response.
type Reply struct {
	Text          string         `json:"text"`
	Products      []Product      `json:"products,omitempty"`
	ActionButtons []ActionButton `json:"actionButtons,omitempty"`
	RichComponent string         `json:"richComponent,omitempty"`
}

// Request is the wire shape of a relay call.
type Request struct {
	ChatInput string `json:"chatInput"`
	SessionID string `json:"sessionId"`
}

// Client performs one relay call per Send. Retry policy lives with the
// caller; the client itself never retries.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewClient(endpoint, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{endpoint: endpoint, apiKey: apiKey, httpClient: httpClient}
}

// Send posts the message and parses the reply.
func (c *Client) Send(ctx context.Context, sessionID, text string) (*Reply, error) {
	body, err := json.Marshal(Request{ChatInput: text, SessionID: sessionID})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read relay response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relay: status %d", resp.StatusCode)
	}

	return ParseReply(extractOutput(raw)), nil
}

// extractOutput unwraps the {"output": ...} envelope. A body that is not
// that envelope is taken as the output itself.
func extractOutput(raw []byte) string {
	var envelope struct {
		Output string `json:"output"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Output != "" {
		return envelope.Output
	}
	return string(raw)
}

// ParseReply interprets the workflow output, which is either a JSON string
// carrying structured content or plain text.
func ParseReply(output string) *Reply {
	output = strings.TrimSpace(output)

	var reply Reply
	if err := json.Unmarshal([]byte(output), &reply); err == nil && reply.Text != "" {
		return &reply
	}
	return &Reply{Text: output}
}
