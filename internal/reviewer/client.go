// Package reviewer talks to an external interactive reviewer, such as an IDE
// companion, over HTTP.
//
// The reviewer answers GET {url}/health with any 2xx status and
// POST {url}/review with a JSON verdict:
//
//	{"status": "accepted" | "rejected", "content": "optional replacement"}
//
// A present content field means the proposal was accepted with that content instead.
package reviewer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"file-patch-server/internal/patch"
)

const healthTimeout = 2 * time.Second

type reviewRequest struct {
	FilePath        string `json:"file_path"`
	ProposedContent string `json:"proposed_content"`
}

type reviewResponse struct {
	Status  string  `json:"status"`
	Content *string `json:"content,omitempty"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its Timeout bounds every review round trip,
// so it should be zero or longer than a human needs to answer.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// Client is a patch.Reviewer backed by an HTTP service.
type Client struct {
	url    string
	client *http.Client
	logger *slog.Logger

	mu        sync.Mutex
	available bool
}

// New returns a disconnected Client for the reviewer at url.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:    strings.TrimRight(url, "/"),
		client: &http.Client{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect checks the health endpoint and marks the reviewer available.
func (c *Client) Connect(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(hctx, http.MethodGet, c.url+"/health", nil)
	if err != nil {
		return fmt.Errorf("build reviewer health request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.setAvailable(false)
		return fmt.Errorf("reviewer at %s unreachable: %w", c.url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.setAvailable(false)
		return fmt.Errorf("reviewer health status %d", resp.StatusCode)
	}
	c.setAvailable(true)
	c.logger.Debug("reviewer connected", "url", c.url)
	return nil
}

// Available reports whether the last Connect succeeded and no review failed since.
func (c *Client) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}

// Disconnect marks the reviewer unavailable. It never fails.
func (c *Client) Disconnect() error {
	c.setAvailable(false)
	c.client.CloseIdleConnections()
	return nil
}

// Review sends the proposal and waits for the verdict or for ctx to be done.
func (c *Client) Review(ctx context.Context, filePath, proposedContent string) (patch.Verdict, error) {
	b, err := json.Marshal(reviewRequest{FilePath: filePath, ProposedContent: proposedContent})
	if err != nil {
		return patch.Verdict{}, fmt.Errorf("marshal review request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/review", bytes.NewBuffer(b))
	if err != nil {
		return patch.Verdict{}, fmt.Errorf("build review request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			c.setAvailable(false)
		}
		return patch.Verdict{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return patch.Verdict{}, fmt.Errorf("reviewer status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out reviewResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return patch.Verdict{}, fmt.Errorf("decode review response: %w", err)
	}
	switch out.Status {
	case "accepted":
		if out.Content != nil {
			return patch.Verdict{Decision: patch.DecisionAcceptModified, Content: *out.Content}, nil
		}
		return patch.Verdict{Decision: patch.DecisionAccept}, nil
	case "rejected":
		return patch.Verdict{Decision: patch.DecisionReject}, nil
	default:
		return patch.Verdict{}, fmt.Errorf("reviewer returned unknown status %q", out.Status)
	}
}

func (c *Client) setAvailable(v bool) {
	c.mu.Lock()
	c.available = v
	c.mu.Unlock()
}

var _ patch.Reviewer = (*Client)(nil)
