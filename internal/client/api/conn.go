package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/iudanet/gophstorage/pkg/api"
)

const (
	writeTimeout = 5 * time.Second
	incomingSize = 64
)

// ErrClosed возвращается после закрытия соединения
var ErrClosed = errors.New("connection closed")

// Conn is a websocket session channel. Responses awaited through Call are
// routed to their caller by request id; everything else goes to Incoming.
type Conn struct {
	ws       *websocket.Conn
	logger   *slog.Logger
	incoming chan api.Envelope
	waiters  map[string]chan api.Envelope
	done     chan struct{}
	closing  chan struct{}
	err      error
	once     sync.Once
	writeMu  sync.Mutex
	mu       sync.Mutex
}

// SessionURL converts the server base URL into the websocket endpoint
func SessionURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	u.Path += "/api/v1/session"
	return u.String(), nil
}

// Dial opens the session channel authenticated by token
func Dial(ctx context.Context, baseURL, token string, logger *slog.Logger) (*Conn, error) {
	endpoint, err := SessionURL(baseURL)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Conn{
		ws:       ws,
		logger:   logger,
		incoming: make(chan api.Envelope, incomingSize),
		waiters:  make(map[string]chan api.Envelope),
		done:     make(chan struct{}),
		closing:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Incoming returns responses not awaited by Call and pushed deltas. It is
// closed when the connection ends.
func (c *Conn) Incoming() <-chan api.Envelope {
	return c.incoming
}

// Done is closed when the connection ends
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection ended
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Send writes one envelope
func (c *Conn) Send(env api.Envelope) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteJSON(env); err != nil {
		return fmt.Errorf("failed to send %s: %w", env.Type, err)
	}
	return nil
}

// Call sends a request and waits for the response with the same request id
func (c *Conn) Call(ctx context.Context, typ api.MessageType, payload any) (*api.SessionResponse, error) {
	env, err := api.NewEnvelope(typ, uuid.NewString(), payload)
	if err != nil {
		return nil, err
	}

	wait := make(chan api.Envelope, 1)
	c.mu.Lock()
	c.waiters[env.RequestID] = wait
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.waiters, env.RequestID)
		c.mu.Unlock()
	}()

	if err := c.Send(env); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	case reply := <-wait:
		var resp api.SessionResponse
		if err := reply.Decode(&resp); err != nil {
			return nil, err
		}
		return &resp, nil
	}
}

// Close closes the connection
func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closing) })
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}

func (c *Conn) readLoop() {
	defer func() {
		close(c.done)
		close(c.incoming)
	}()

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			return
		}

		var env api.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			c.logger.Warn("Discarding malformed frame", slog.Any("error", err))
			continue
		}

		if env.Type == api.TypeResponse && env.RequestID != "" {
			c.mu.Lock()
			wait, ok := c.waiters[env.RequestID]
			c.mu.Unlock()
			if ok {
				wait <- env
				continue
			}
		}

		if env.Type == api.TypeResponse {
			// ответы не теряются, иначе операция зависнет
			select {
			case c.incoming <- env:
			case <-c.closing:
				return
			}
			continue
		}
		select {
		case c.incoming <- env:
		default:
			// потерянная дельта восстанавливается следующей ревизией
			c.logger.Warn("Incoming queue full, dropping frame", "type", env.Type)
		}
	}
}
