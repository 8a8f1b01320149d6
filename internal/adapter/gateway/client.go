package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"nhooyr.io/websocket"

	"medhelper/internal/domain"
	"medhelper/internal/protocol/correlation"
)

// Client is the calling side of a gateway connection. Responses and plain
// frames from the host are delivered to its correlation Manager.
type Client struct {
	ws      *websocket.Conn
	manager *correlation.Manager
	logger  *slog.Logger
	done    chan struct{}
	once    sync.Once
}

// Dial connects to the gateway at addr, which is either host:port or a
// ws:// or wss:// URL. opts configure the Manager.
func Dial(ctx context.Context, addr, token string, logger *slog.Logger, opts ...correlation.Option) (*Client, error) {
	target, err := endpoint(addr, token)
	if err != nil {
		return nil, err
	}
	ws, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("gateway dial %s: %w", addr, err)
	}
	c := &Client{ws: ws, logger: logger, done: make(chan struct{})}
	c.manager = correlation.New(domain.FrameSenderFunc(c.send), logger, opts...)
	go c.readLoop()
	return c, nil
}

// Manager returns the Manager that issues calls over this connection.
func (c *Client) Manager() *correlation.Manager { return c.manager }

// Done is closed once the connection has stopped reading.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close ends the connection and rejects every pending call.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		err = c.ws.Close(websocket.StatusNormalClosure, "")
		<-c.done
	})
	return err
}

func (c *Client) send(ctx context.Context, raw string) error {
	if err := c.ws.Write(ctx, websocket.MessageText, []byte(raw)); err != nil {
		return domain.NewDomainError("Client.Send", domain.ErrChannelClosed, err.Error())
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer c.manager.Close()
	ctx := context.Background()
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			c.logger.Debug("gateway client read ended", "error", err)
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		c.manager.Deliver(ctx, string(data))
	}
}

func endpoint(addr, token string) (string, error) {
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("gateway address %q: %w", addr, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("gateway address %q: unsupported scheme %q", addr, u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
