package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stonebridge-contracting/stonebridge-backend/pkg/config"
)

const defaultRequestTimeout = 10 * time.Second

// ConversationStarter is the chat-SaaS capability the quote lifecycle
// consumes: open a conversation channel between staff and the customer.
type ConversationStarter interface {
	CreateConversation(ctx context.Context, quoteNumber, customerName, customerEmail string) error
}

type httpClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient builds the portal-chat HTTP client from configuration.
func NewClient(cfg config.ChatConfig) (ConversationStarter, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("chat base url is required")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &httpClient{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type createConversationRequest struct {
	Topic         string `json:"topic"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
}

func (c *httpClient) CreateConversation(ctx context.Context, quoteNumber, customerName, customerEmail string) error {
	payload, err := json.Marshal(createConversationRequest{
		Topic:         fmt.Sprintf("Quote %s", quoteNumber),
		CustomerName:  customerName,
		CustomerEmail: customerEmail,
	})
	if err != nil {
		return fmt.Errorf("encode conversation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/conversations", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build conversation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("chat service responded %d", resp.StatusCode)
	}
	return nil
}
