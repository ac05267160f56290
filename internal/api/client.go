package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/mutker/fand/internal/daemon"
	"codeberg.org/mutker/fand/internal/errors"
	"codeberg.org/mutker/fand/internal/fan"
	"codeberg.org/mutker/fand/internal/store"
)

// ErrUnreachable means no daemon answered at the configured address.
const ErrUnreachable = errors.ErrorCode("daemon_unreachable")

// Client talks to a running daemon.
type Client struct {
	base string
	http *http.Client
}

func NewClient(addr string) *Client {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Fans(ctx context.Context) ([]fan.Record, error) {
	var out []fan.Record
	return out, c.do(ctx, http.MethodGet, "/fans", nil, &out)
}

func (c *Client) Override(ctx context.Context) (fan.Override, error) {
	var out fan.Override
	return out, c.do(ctx, http.MethodGet, "/override", nil, &out)
}

func (c *Client) SetOverride(ctx context.Context, tier string) (fan.Override, error) {
	var out fan.Override
	return out, c.do(ctx, http.MethodPut, "/override", OverrideRequest{Speed: tier}, &out)
}

func (c *Client) ClearOverride(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/override", nil, nil)
}

func (c *Client) InsertFan(ctx context.Context, rec fan.Record) error {
	return c.do(ctx, http.MethodPost, "/fans", rec, nil)
}

func (c *Client) Subsystems(ctx context.Context) ([]store.Subsystem, error) {
	var out []store.Subsystem
	return out, c.do(ctx, http.MethodGet, "/subsystems", nil, &out)
}

func (c *Client) Dump(ctx context.Context) (daemon.Report, error) {
	var out daemon.Report
	return out, c.do(ctx, http.MethodGet, "/dump", nil, &out)
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	return out, c.do(ctx, http.MethodGet, "/health", nil, &out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	errFactory := errors.New()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errFactory.Wrap(errors.ErrInvalidArgument, err)
		}
		reader = bytes.NewReader(buf)
	}

	u, err := url.JoinPath(c.base, path)
	if err != nil {
		return errFactory.Wrap(errors.ErrInvalidArgument, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return errFactory.Wrap(errors.ErrInvalidArgument, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errFactory.Wrap(ErrUnreachable, err)
	}
	defer resp.Body.Close()

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
		Code    string          `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return errFactory.WithData(errors.ErrInternal, fmt.Sprintf("%s %s: %d %s", method, path, resp.StatusCode, err))
	}

	if !env.Success {
		code := errors.ErrorCode(env.Code)
		if code == "" {
			code = errors.ErrInternal
		}
		return errFactory.WithMessage(code, env.Error)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return errFactory.Wrap(errors.ErrInternal, err)
		}
	}
	return nil
}
