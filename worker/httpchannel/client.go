/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpchannel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/acronis/go-callkit/internal/libinfo"
	"github.com/acronis/go-callkit/log"
	"github.com/acronis/go-callkit/retry"
	"github.com/acronis/go-callkit/worker"
)

// Default values for the client.
const (
	DefaultReplyBufferSize = 64
	DefaultRequestTimeout  = time.Minute
)

// DefaultRetryPolicy is used when ClientOpts.RetryPolicy is not set.
var DefaultRetryPolicy retry.Policy = retry.NewExponentialBackoffPolicy(time.Millisecond*100, 3)

// StatusError is returned when the worker responds with an unexpected HTTP status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d: %s", e.StatusCode, e.Body)
}

// ClientOpts represents options for the Client.
type ClientOpts struct {
	// HTTPClient is used for requests. Default is a client with DefaultRequestTimeout.
	HTTPClient *http.Client

	// RetryPolicy is used for retrying requests that failed with a transport error or 5xx status.
	// Default is DefaultRetryPolicy.
	RetryPolicy retry.Policy

	// ReplyBufferSize is the number of replies that may wait for Receive. Default is DefaultReplyBufferSize.
	ReplyBufferSize int

	// Logger may be nil.
	Logger log.FieldLogger
}

// Client is a worker.Channel that sends TASK messages to a remote worker over HTTP.
// Send returns once the terminal message is received, the message is then available via Receive.
// A retried request may execute the task more than once on the worker side.
type Client struct {
	tasksURL    string
	httpClient  *http.Client
	retryPolicy retry.Policy
	logger      log.FieldLogger

	replies chan *worker.Message
	done    chan struct{}
	once    sync.Once
}

var _ worker.Channel = (*Client)(nil)

// NewClient creates a new Client for the worker available at baseURL.
func NewClient(baseURL string, opts ClientOpts) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	if opts.RetryPolicy == nil {
		opts.RetryPolicy = DefaultRetryPolicy
	}
	if opts.ReplyBufferSize <= 0 {
		opts.ReplyBufferSize = DefaultReplyBufferSize
	}
	return &Client{
		tasksURL:    strings.TrimSuffix(baseURL, "/") + TasksPath,
		httpClient:  opts.HTTPClient,
		retryPolicy: opts.RetryPolicy,
		logger:      log.OrDisabled(opts.Logger),
		replies:     make(chan *worker.Message, opts.ReplyBufferSize),
		done:        make(chan struct{}),
	}
}

// Send posts the TASK message to the worker and queues its reply.
func (c *Client) Send(ctx context.Context, msg *worker.Message) error {
	if c.isClosed() {
		return worker.ErrChannelClosed
	}
	if msg.Type != worker.MessageTypeTask {
		return fmt.Errorf("only TASK messages can be sent over HTTP, got %s", msg.Type)
	}
	body, err := worker.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	var reply *worker.Message
	notify := func(err error, delay time.Duration) {
		c.logger.Warn("task request failed, will retry",
			log.String("task_id", msg.ID), log.Duration("delay", delay), log.Error(err))
	}
	err = retry.DoWithRetry(ctx, c.retryPolicy, isRetryable, notify, func(ctx context.Context) error {
		var postErr error
		reply, postErr = c.post(ctx, msg.TaskID(), body)
		return postErr
	})
	if err != nil {
		return err
	}

	select {
	case c.replies <- reply:
		return nil
	case <-c.done:
		return worker.ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) post(ctx context.Context, taskID string, body []byte) (*worker.Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tasksURL, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", ContentTypeAppJSON)
	req.Header.Set("User-Agent", libinfo.UserAgent())
	req.Header.Set(HeaderRequestID, taskID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Error("closing response body error", log.Error(closeErr))
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	reply, err := worker.DecodeMessage(respBody)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	return reply, nil
}

func isRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Receive returns the next queued reply.
func (c *Client) Receive(ctx context.Context) (*worker.Message, error) {
	select {
	case msg := <-c.replies:
		return msg, nil
	case <-c.done:
		return nil, worker.ErrChannelClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the channel. In-flight requests are not interrupted, their replies are dropped.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
