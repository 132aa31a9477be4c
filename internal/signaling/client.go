package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/1ureka/rtcall/internal/util"
)

// ErrChannelClosed is returned by Send once the channel is no longer open.
// It is informational: the message is simply not delivered.
var ErrChannelClosed = errors.New("signaling channel closed")

// Conn is the raw bidirectional message channel to the relay.
type Conn interface {
	WriteMessage(data []byte) error
	ReadMessage() ([]byte, error)
	Close() error
}

// Client wraps a Conn: it stamps, encodes and sends outgoing messages, and
// decodes and dispatches incoming ones. It holds no negotiation state.
type Client struct {
	conn    Conn
	session string
	from    string
	log     util.Scope

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// NewClient wraps conn. Outgoing messages are stamped with session and from
// unless already set; incoming messages for another non-empty session are
// dropped.
func NewClient(conn Conn, session, from string) *Client {
	return &Client{
		conn:    conn,
		session: session,
		from:    from,
		log:     util.Scope("signaling"),
		done:    make(chan struct{}),
	}
}

// Send encodes and transmits msg. On a closed channel it logs and returns
// ErrChannelClosed without touching the connection.
func (c *Client) Send(msg Message) error {
	if !c.isOpen() {
		c.log.Warnf("dropping outgoing %s: %v", msg.Kind, ErrChannelClosed)
		return ErrChannelClosed
	}

	if msg.Session == "" {
		msg.Session = c.session
	}
	if msg.From == "" {
		msg.From = c.from
	}

	data, err := Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.log.Debugf("-> %s (%d bytes)", msg.Kind, len(data))
	if err := c.conn.WriteMessage(data); err != nil {
		if !c.isOpen() {
			return ErrChannelClosed
		}
		c.log.Warnf("failed to send %s: %v", msg.Kind, err)
		return fmt.Errorf("send %s: %w", msg.Kind, err)
	}
	return nil
}

// Run reads messages until the connection fails, Close is called, or ctx is
// cancelled, invoking handle for every decodable message in arrival order.
// Malformed and unknown messages are logged and skipped. Run returns nil when
// the channel was closed locally.
func (c *Client) Run(ctx context.Context, handle func(Message)) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.isOpen() {
				return nil
			}
			c.markClosed()
			return fmt.Errorf("read signaling message: %w", err)
		}

		msg, err := Decode(data)
		if err != nil {
			var decErr *DecodeError
			switch {
			case errors.As(err, &decErr):
				c.log.Warnf("dropping malformed message: %v", err)
			case errors.Is(err, ErrUnknownKind):
				c.log.Debugf("ignoring message: %v", err)
			default:
				c.log.Warnf("dropping message: %v", err)
			}
			continue
		}

		if msg.Session != "" && c.session != "" && msg.Session != c.session {
			c.log.Debugf("ignoring %s for session %q", msg.Kind, msg.Session)
			continue
		}

		c.log.Debugf("<- %s", msg.Kind)
		handle(msg)
	}
}

// Close releases the connection. Safe to call multiple times.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.markClosed()
		c.closeErr = c.conn.Close()
		close(c.done)
	})
	return c.closeErr
}

// Done is closed once Close has run.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) isOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *Client) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
