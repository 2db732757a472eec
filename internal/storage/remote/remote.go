// Package remote is a storage.DocumentStore speaking a document database's
// HTTP bulk-docs API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Chichichkin/docsink/internal/document"
	"github.com/Chichichkin/docsink/internal/storage"
)

type Options struct {
	URL             string
	DefaultDatabase string
	// MaxRetries is the number of attempts per commit. Values below 1 mean a
	// single attempt: failed batches are not retried unless asked for.
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Client implements storage.DocumentStore over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	defaultDB  string
	logger     *slog.Logger
}

var _ storage.DocumentStore = (*Client)(nil)

// Command is one entry of a bulk-docs request.
type Command struct {
	Type     string          `json:"Type"`
	ID       string          `json:"Id"`
	Document json.RawMessage `json:"Document"`
}

type Payload struct {
	Commands []Command `json:"Commands"`
}

func NewClient(opts Options) (*Client, error) {
	u, err := url.Parse(opts.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("remote: invalid URL %q", opts.URL)
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(opts.URL, "/"),
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		defaultDB:  storage.DatabaseOrDefault(opts.DefaultDatabase),
		logger:     opts.Logger,
	}, nil
}

func (c *Client) OpenSession(ctx context.Context, database string) (storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if database == "" {
		database = c.defaultDB
	}
	return &session{client: c, database: database, index: make(map[string]int)}, nil
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) bulkDocsURL(database string) string {
	return c.baseURL + "/databases/" + url.PathEscape(database) + "/bulk_docs"
}

func (c *Client) send(ctx context.Context, database string, body []byte, count int) error {
	var err error
	for i := 0; i < c.maxRetries; i++ {
		err = c.sendRequest(ctx, database, body)
		if err == nil {
			c.logger.Debug("bulk docs stored", "database", database, "documents", count)
			return nil
		}
		if ctx.Err() != nil {
			return err
		}

		if i < c.maxRetries-1 {
			c.logger.Warn("bulk docs request failed, retrying",
				"attempt", i+1, "max_attempts", c.maxRetries, "error", err)
			select {
			case <-time.After(time.Duration(i+1) * c.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if c.maxRetries == 1 {
		return err
	}
	return fmt.Errorf("failed to store batch after %d attempts: %w", c.maxRetries, err)
}

func (c *Client) sendRequest(ctx context.Context, database string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.bulkDocsURL(database), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("document store returned status %d: %s", resp.StatusCode, string(responseBody))
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type stagedDoc struct {
	id       string
	entity   any
	metadata map[string]any
}

type session struct {
	client   *Client
	database string
	staged   []stagedDoc
	index    map[string]int
	closed   bool
}

func (s *session) Store(entity any) (string, error) {
	if s.closed {
		return "", storage.ErrSessionClosed
	}
	id := document.Collection + "/" + uuid.NewString()
	s.index[id] = len(s.staged)
	s.staged = append(s.staged, stagedDoc{
		id:       id,
		entity:   entity,
		metadata: map[string]any{"@collection": document.Collection},
	})
	return id, nil
}

func (s *session) SetMetadata(id, key string, value any) error {
	if s.closed {
		return storage.ErrSessionClosed
	}
	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("remote: document %q is not staged in this session", id)
	}
	if t, ok := value.(time.Time); ok {
		value = t.UTC()
	}
	s.staged[i].metadata[key] = value
	return nil
}

func (s *session) Commit(ctx context.Context) error {
	if s.closed {
		return storage.ErrSessionClosed
	}
	if len(s.staged) == 0 {
		s.closed = true
		return nil
	}

	payload, err := s.createPayload()
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	if err := s.client.send(ctx, s.database, body, len(s.staged)); err != nil {
		return err
	}
	s.closed = true
	return nil
}

func (s *session) Close() error {
	s.closed = true
	s.staged = nil
	return nil
}

var errNotObject = errors.New("remote: document must encode to a JSON object")

func (s *session) createPayload() (Payload, error) {
	payload := Payload{Commands: make([]Command, 0, len(s.staged))}

	for _, d := range s.staged {
		raw, err := json.Marshal(d.entity)
		if err != nil {
			return Payload{}, fmt.Errorf("encode %s: %w", d.id, err)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
			return Payload{}, fmt.Errorf("encode %s: %w", d.id, errNotObject)
		}
		md, err := json.Marshal(d.metadata)
		if err != nil {
			return Payload{}, fmt.Errorf("encode metadata of %s: %w", d.id, err)
		}
		fields["@metadata"] = md

		merged, err := json.Marshal(fields)
		if err != nil {
			return Payload{}, fmt.Errorf("encode %s: %w", d.id, err)
		}
		payload.Commands = append(payload.Commands, Command{Type: "PUT", ID: d.id, Document: merged})
	}

	return payload, nil
}
