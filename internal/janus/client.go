package janus

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/imtaco/liveroom/internal/errors"
	"github.com/imtaco/liveroom/internal/log"
)

const (
	pluginAudioBridge = "janus.plugin.audiobridge"
	requestTimeout    = 10 * time.Second
	// Janus holds a long-poll for up to 30s before answering with a keepalive.
	pollTimeout = 40 * time.Second
	// Janus reaps sessions idle for 60s by default.
	keepaliveInterval = 15 * time.Second
)

type client struct {
	baseURL   string
	rest      *resty.Client
	poll      *resty.Client
	keepalive time.Duration
	txCounter atomic.Uint64
	logger    *log.Logger
}

type Option func(*client)

// WithRequestTimeout bounds every non-polling Janus request.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *client) {
		if d > 0 {
			c.rest.SetTimeout(d)
		}
	}
}

func WithKeepaliveInterval(d time.Duration) Option {
	return func(c *client) {
		if d > 0 {
			c.keepalive = d
		}
	}
}

// New creates a Janus REST client backed by go-resty.
func New(baseURL string, logger *log.Logger, opts ...Option) API {
	if logger == nil {
		panic("logger is required")
	}
	c := &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		rest: resty.New().
			SetHeader("Content-Type", "application/json").
			SetTimeout(requestTimeout),
		poll:      resty.New().SetTimeout(pollTimeout),
		keepalive: keepaliveInterval,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) Attach(ctx context.Context, display string) (Anchor, error) {
	h, err := c.open(ctx, display)
	if err != nil {
		return nil, err
	}
	return &anchor{handle: h}, nil
}

func (c *client) Admin(ctx context.Context, adminKey string) (Admin, error) {
	h, err := c.open(ctx, "admin")
	if err != nil {
		return nil, err
	}
	return &admin{handle: h, adminKey: adminKey}, nil
}

// open creates a session and attaches the AudioBridge plugin to it.
func (c *client) open(ctx context.Context, display string) (*handle, error) {
	resp, err := c.post(ctx, "/janus", map[string]any{"janus": "create"})
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, errors.New(ErrInvalidResponse, "create session: missing data")
	}
	sessionID := resp.Data.ID

	resp, err = c.post(ctx, sessionPath(sessionID), map[string]any{
		"janus":      "attach",
		"session_id": sessionID,
		"plugin":     pluginAudioBridge,
	})
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, errors.New(ErrInvalidResponse, "attach: missing data")
	}
	return &handle{
		client:    c,
		display:   display,
		sessionID: sessionID,
		handleID:  resp.Data.ID,
	}, nil
}

func (c *client) post(ctx context.Context, path string, payload map[string]any) (*Response, error) {
	if _, ok := payload["transaction"]; !ok {
		payload["transaction"] = fmt.Sprintf("tx-%d", c.txCounter.Add(1))
	}
	c.logger.Debug("janus req", log.String("path", path), log.Any("body", payload))

	var out Response
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&out).
		Post(c.baseURL + path)
	if err != nil {
		return nil, errors.Wrap(ErrFailedRequest, err, "post")
	}
	if resp.IsError() {
		return nil, errors.Newf(ErrFailedRequest, "janus http status %d", resp.StatusCode())
	}
	c.logger.Debug("janus resp", log.Int("status", resp.StatusCode()), log.Any("payload", out))

	switch out.Janus {
	case "success", "ack":
		return &out, nil
	case "error":
		return nil, errors.Newf(ErrRejected, "janus error: %s", out.Reason)
	default:
		return nil, errors.Newf(ErrInvalidResponse, "unexpected janus reply %q", out.Janus)
	}
}

func sessionPath(sessionID int64) string {
	return fmt.Sprintf("/janus/%d", sessionID)
}
