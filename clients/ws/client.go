// Package ws provides a WebSocket client for the Lazy Tasks gateway.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	wsprotocol "github.com/dohr-michael/lazytasks/internal/gateway/ws"
)

// Client is a WebSocket client for the gateway.
type Client struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// Dial connects to the gateway WebSocket endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}

	clientCtx, cancel := context.WithCancel(ctx)

	return &Client{
		conn:   conn,
		ctx:    clientCtx,
		cancel: cancel,
	}, nil
}

// SendMessage sends a chat message and returns the request ID of the frame.
func (c *Client) SendMessage(params wsprotocol.SendMessageParams) (string, error) {
	id := uuid.NewString()

	frame, err := wsprotocol.NewRequestFrame(id, wsprotocol.MethodSendMessage, params)
	if err != nil {
		return "", err
	}

	data, err := wsprotocol.MarshalFrame(frame)
	if err != nil {
		return "", err
	}

	if err := c.conn.Write(c.ctx, websocket.MessageText, data); err != nil {
		return "", fmt.Errorf("ws write: %w", err)
	}
	return id, nil
}

// Ask sends a message and waits for its response frame. Event frames received
// in the meantime are passed to onEvent when it is non-nil.
func (c *Client) Ask(params wsprotocol.SendMessageParams, onEvent func(wsprotocol.Frame)) (*wsprotocol.SendMessageResult, error) {
	id, err := c.SendMessage(params)
	if err != nil {
		return nil, err
	}

	for {
		frame, err := c.ReadFrame()
		if err != nil {
			return nil, err
		}

		switch frame.Type {
		case wsprotocol.FrameTypeEvent:
			if onEvent != nil {
				onEvent(frame)
			}
		case wsprotocol.FrameTypeResponse:
			if frame.ID != id {
				continue
			}
			if frame.OK == nil || !*frame.OK {
				if frame.Error == "" {
					return nil, errors.New("request failed")
				}
				return nil, errors.New(frame.Error)
			}
			var res wsprotocol.SendMessageResult
			if err := json.Unmarshal(frame.Payload, &res); err != nil {
				return nil, fmt.Errorf("decode response: %w", err)
			}
			return &res, nil
		}
	}
}

// ReadFrame reads the next frame from the connection.
func (c *Client) ReadFrame() (wsprotocol.Frame, error) {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		return wsprotocol.Frame{}, err
	}
	return wsprotocol.UnmarshalFrame(data)
}

// Close gracefully closes the connection.
func (c *Client) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
