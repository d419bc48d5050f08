package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"go.uber.org/config"

	"github.com/ben-mays/kitchen-ledger/harness"
	"github.com/ben-mays/kitchen-ledger/kitchen"
)

// OrderRecord is the challenge-server wire format for one order.
type OrderRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Temperature string `json:"temperature"`
	Freshness   int    `json:"freshness"`
}

// SubmitResponse is the server's acknowledgement of an action log.
type SubmitResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type ClientConfig struct {
	URL string `yaml:"url"`
}

// Client talks to the challenge server: it fetches the order stream and
// submits the final action ledger.
type Client struct {
	BaseURL *url.URL

	Transport *http.Client
}

// LoadConfig builds a Client from the "client" config key using the default
// http.Client.
func LoadConfig(provider config.Provider) (*Client, error) {
	var cfg ClientConfig
	if err := provider.Get("client").Populate(&cfg); err != nil {
		return nil, err
	}
	return New(cfg.URL)
}

func New(base string) (*Client, error) {
	host, err := url.Parse(base)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing challenge server url %q", base)
	}
	return &Client{
		BaseURL:   host,
		Transport: http.DefaultClient,
	}, nil
}

// FetchOrders pulls the full order stream. Records are converted as-is;
// validation happens at admission so malformed records surface there.
func (c *Client) FetchOrders() ([]kitchen.Order, error) {
	uri := c.BaseURL.String() + "/orders"
	resp, err := c.Transport.Get(uri)
	if err != nil {
		return nil, errors.Wrap(err, "fetching orders")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching orders: unexpected status %d", resp.StatusCode)
	}
	var records []OrderRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, errors.Wrap(err, "decoding orders")
	}
	orders := make([]kitchen.Order, len(records))
	for i, r := range records {
		orders[i] = kitchen.Order{
			ID:        r.ID,
			Name:      r.Name,
			Temp:      kitchen.Temperature(r.Temperature),
			Freshness: float64(r.Freshness),
		}
	}
	return orders, nil
}

// Submit posts the action ledger. Any non-200 response counts as a failed
// attempt; the harness owns the retry policy.
func (c *Client) Submit(actions []kitchen.Action) error {
	body, err := json.Marshal(actions)
	if err != nil {
		return errors.Wrap(err, "encoding actions")
	}
	uri := c.BaseURL.String() + "/actions"
	resp, err := c.Transport.Post(uri, "application/json", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "submitting actions")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("submitting actions: unexpected status %d", resp.StatusCode)
	}
	var ack SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return errors.Wrap(err, "decoding submit response")
	}
	if ack.Status != "success" {
		return fmt.Errorf("submitting actions: server reported %q: %s", ack.Status, ack.Message)
	}
	return nil
}

// NewSource fetches the order stream eagerly and wraps it as an OrderSource.
func (c *Client) NewSource() (harness.OrderSource, error) {
	orders, err := c.FetchOrders()
	if err != nil {
		return nil, err
	}
	return harness.NewStaticSource(orders), nil
}
