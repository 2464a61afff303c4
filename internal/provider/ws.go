package provider

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gorilla/websocket"
)

// Event is a status push from the provider's websocket stream.
// Reference carries back the reference we submitted with.
type Event struct {
	Reference string `json:"reference"`
	RemoteID  string `json:"id"`
	Status    string `json:"status"`
	Code      string `json:"code"`
}

type WSClient struct {
	Endpoint string
	Conn     *websocket.Conn
}

func NewWSClient(endpoint string) *WSClient {
	return &WSClient{Endpoint: endpoint}
}

func (c *WSClient) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, c.Endpoint, nil)
	if err != nil {
		return err
	}
	c.Conn = conn
	return nil
}

func (c *WSClient) Close() {
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}

func (c *WSClient) Subscribe(apiKey string) error {
	payload := map[string]any{
		"action": "subscribe",
		"token":  apiKey,
	}
	return c.Conn.WriteJSON(payload)
}

func (c *WSClient) Read(ctx context.Context) ([]byte, error) {
	_, msg, err := c.Conn.ReadMessage()
	return msg, err
}

// ParseEvent decodes one stream message. ok is false for frames that
// carry no order update (acks, keepalives).
func ParseEvent(msg []byte) (Event, bool, error) {
	var env struct {
		Event *Event `json:"event"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		return Event{}, false, err
	}
	if env.Error != nil {
		return Event{}, false, errors.New(env.Error.Message)
	}
	if env.Event == nil || env.Event.Reference == "" {
		return Event{}, false, nil
	}
	return *env.Event, true, nil
}
