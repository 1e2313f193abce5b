package guestws

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

const (
	guestConnectPath = "/api/websocket/connect/guest"
	guestStatusPath  = "/api/websocket/status/"
	onlineStatsPath  = "/api/websocket/stats"

	defaultBrokerTimeout = 10 * time.Second
)

// BrokerReply is the generic envelope of the broker's informational endpoints.
type BrokerReply struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// HTTPBroker talks to the websocket session broker over HTTP.
type HTTPBroker struct {
	logger  Logger
	client  *fasthttp.Client
	baseURL string
	timeout time.Duration
}

func NewHTTPBroker(logger Logger, client *fasthttp.Client, baseURL string, timeout time.Duration) *HTTPBroker {
	if client == nil {
		client = &fasthttp.Client{}
	}
	if timeout <= 0 {
		timeout = defaultBrokerTimeout
	}
	return &HTTPBroker{
		logger:  logger.WithField("component", "http_broker"),
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}
}

// ConnectGuest asks the broker for the websocket endpoint of guestID. It has the
// SessionBrokerGetter signature so it can back a SessionBrokerRepo.
func (b *HTTPBroker) ConnectGuest(ctx context.Context, guestID string) (BrokerResponse, error) {
	var resp BrokerResponse
	form := url.Values{"guestId": {guestID}}
	if err := b.do(ctx, fasthttp.MethodPost, guestConnectPath, form, &resp); err != nil {
		return BrokerResponse{}, err
	}
	return resp, nil
}

// GuestStatus reports whether guestID currently holds a live session.
func (b *HTTPBroker) GuestStatus(ctx context.Context, guestID string) (BrokerReply, error) {
	var reply BrokerReply
	if err := b.do(ctx, fasthttp.MethodGet, guestStatusPath+url.PathEscape(guestID), nil, &reply); err != nil {
		return BrokerReply{}, err
	}
	return reply, nil
}

// OnlineStats returns the broker's connection statistics.
func (b *HTTPBroker) OnlineStats(ctx context.Context) (BrokerReply, error) {
	var reply BrokerReply
	if err := b.do(ctx, fasthttp.MethodGet, onlineStatsPath, nil, &reply); err != nil {
		return BrokerReply{}, err
	}
	return reply, nil
}

func (b *HTTPBroker) do(ctx context.Context, method, path string, form url.Values, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := b.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(b.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if form != nil {
		req.Header.SetContentType("application/x-www-form-urlencoded")
		req.SetBodyString(form.Encode())
	}

	b.logger.Debugf("=> %s %s", method, path)

	if err := b.client.DoTimeout(req, resp, timeout); err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}

	if code := resp.StatusCode(); code < fasthttp.StatusOK || code >= fasthttp.StatusMultipleChoices {
		return errors.Errorf("%s %s: unexpected status %d: %s", method, path, code, resp.Body())
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return errors.Wrapf(err, "%s %s: decode response", method, path)
	}

	return nil
}
