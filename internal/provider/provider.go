// Package provider talks to the remote fulfillment backend that
// processes Api-type orders: submit over HTTP, then result by polling
// or by the provider's websocket event stream.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	ResultPending  = "pending"
	ResultSuccess  = "success"
	ResultRejected = "rejected"
)

type Submission struct {
	Reference string            `json:"reference"`
	APIID     int64             `json:"api_id"`
	ServiceID string            `json:"service_id"`
	Fields    map[string]string `json:"fields"`
}

type SubmitResult struct {
	RemoteID string `json:"id"`
}

type OrderResult struct {
	RemoteID string `json:"id"`
	Status   string `json:"status"`
	Code     string `json:"code"`
}

type Client struct {
	http    *resty.Client
	baseURL string
}

func NewClient(baseURL, apiKey string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetTimeout(15 * time.Second)
	return &Client{http: c, baseURL: baseURL}
}

func (c *Client) Submit(ctx context.Context, sub Submission) (SubmitResult, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(sub).
		Post("/api/v1/orders")
	if err != nil {
		return SubmitResult{}, err
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return SubmitResult{}, fmt.Errorf("provider submit status: %d", resp.StatusCode())
	}

	var out SubmitResult
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return SubmitResult{}, err
	}
	return out, nil
}

func (c *Client) Result(ctx context.Context, remoteID string) (OrderResult, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/api/v1/orders/" + remoteID)
	if err != nil {
		return OrderResult{}, err
	}
	if resp.StatusCode() != http.StatusOK {
		return OrderResult{}, fmt.Errorf("provider result status: %d", resp.StatusCode())
	}

	var out OrderResult
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return OrderResult{}, err
	}
	return out, nil
}
