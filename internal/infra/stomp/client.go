package stomp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Handler receives the MESSAGE frames of one subscription.
// It is called from the client's read goroutine.
type Handler func(frame *Frame)

// Client is a STOMP 1.2 client over a websocket connection
type Client struct {
	url   string
	token string

	conn    *websocket.Conn
	writeMu sync.Mutex

	subs   map[string]Handler
	subsMu sync.Mutex

	running bool
	stateMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient creates a new STOMP client for the websocket endpoint
func NewClient(wsURL, token string) *Client {
	return &Client{
		url:   wsURL,
		token: token,
		subs:  make(map[string]Handler),
	}
}

// Start dials the endpoint and completes the CONNECT handshake
func (c *Client) Start(ctx context.Context) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.running {
		return nil
	}
	if c.conn != nil {
		// previous connection dropped
		c.cancel()
		c.conn.Close()
		c.wg.Wait()
		c.conn = nil
	}

	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("invalid websocket url: %w", err)
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{"v12.stomp"},
	}

	fmt.Printf("[Stomp] Connecting to %s\n", u.Redacted())
	conn, _, err := dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", u.Redacted(), err)
	}

	connect := NewFrame(CmdConnect,
		"accept-version", "1.2",
		"host", u.Hostname(),
		"heart-beat", "0,0",
	)
	if c.token != "" {
		connect.Headers["Authorization"] = "Bearer " + c.token
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.SetReadDeadline(deadline)
	}
	if err := conn.WriteMessage(websocket.TextMessage, connect.Marshal()); err != nil {
		conn.Close()
		return fmt.Errorf("failed to send CONNECT: %w", err)
	}

	reply, err := readFrame(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to read CONNECTED: %w", err)
	}
	if reply.Command != CmdConnected {
		conn.Close()
		return fmt.Errorf("broker refused connection: %s %s", reply.Get("message"), string(reply.Body))
	}
	_ = conn.SetWriteDeadline(time.Time{})
	_ = conn.SetReadDeadline(time.Time{})

	c.conn = conn
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.running = true

	c.wg.Add(1)
	go c.readLoop(conn)

	fmt.Printf("[Stomp] Connected (version %s)\n", reply.Get("version"))
	return nil
}

// Stop sends DISCONNECT and closes the connection
func (c *Client) Stop() error {
	c.stateMu.Lock()
	conn, wasRunning := c.conn, c.running
	c.conn = nil
	c.running = false
	c.stateMu.Unlock()
	if conn == nil {
		return nil
	}

	if wasRunning {
		c.writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = conn.WriteMessage(websocket.TextMessage, NewFrame(CmdDisconnect).Marshal())
		c.writeMu.Unlock()
	}
	c.cancel()
	conn.Close()
	c.wg.Wait()

	fmt.Println("[Stomp] Stopped")
	return nil
}

// IsRunning returns true while the connection is up
func (c *Client) IsRunning() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.running
}

// Subscribe registers handler for destination and returns the subscription id
func (c *Client) Subscribe(destination string, handler Handler) (string, error) {
	id := uuid.NewString()

	c.subsMu.Lock()
	c.subs[id] = handler
	c.subsMu.Unlock()

	frame := NewFrame(CmdSubscribe, "id", id, "destination", destination, "ack", "auto")
	if err := c.write(frame); err != nil {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
		return "", fmt.Errorf("failed to subscribe to %s: %w", destination, err)
	}

	fmt.Printf("[Stomp] Subscribed to %s (id=%s)\n", destination, id)
	return id, nil
}

// Unsubscribe stops the subscription; unknown ids are ignored
func (c *Client) Unsubscribe(id string) error {
	c.subsMu.Lock()
	_, ok := c.subs[id]
	delete(c.subs, id)
	c.subsMu.Unlock()
	if !ok {
		return nil
	}

	if !c.IsRunning() {
		return nil
	}
	return c.write(NewFrame(CmdUnsubscribe, "id", id))
}

// Send publishes body as JSON to destination
func (c *Client) Send(ctx context.Context, destination string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	frame := NewFrame(CmdSend, "destination", destination, "content-type", "application/json")
	frame.Body = data

	if err := ctx.Err(); err != nil {
		return err
	}
	return c.write(frame)
}

func (c *Client) write(frame *Frame) error {
	c.stateMu.Lock()
	conn, running := c.conn, c.running
	c.stateMu.Unlock()
	if !running || conn == nil {
		return fmt.Errorf("client not running")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, frame.Marshal())
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				fmt.Printf("[Stomp] Read error: %v\n", err)
			}
			c.stateMu.Lock()
			c.running = false
			c.stateMu.Unlock()
			return
		}

		frame, err := ParseFrame(data)
		if err != nil {
			fmt.Printf("[Stomp] Dropping malformed frame: %v\n", err)
			continue
		}
		if frame == nil {
			continue
		}
		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(frame *Frame) {
	switch frame.Command {
	case CmdMessage:
		id := frame.Get("subscription")
		c.subsMu.Lock()
		handler, ok := c.subs[id]
		c.subsMu.Unlock()
		if !ok {
			return
		}
		handler(frame)

	case CmdError:
		fmt.Printf("[Stomp] Broker error: %s %s\n", frame.Get("message"), string(frame.Body))

	case CmdReceipt:
		// no receipts are requested
	}
}

func readFrame(conn *websocket.Conn) (*Frame, error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		frame, err := ParseFrame(data)
		if err != nil {
			return nil, err
		}
		if frame != nil {
			return frame, nil
		}
	}
}
