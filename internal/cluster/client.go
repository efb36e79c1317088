package cluster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/samcharles93/pigemm/internal/logger"
)

// DialOptions tunes how a remote rank reaches the coordinator.
type DialOptions struct {
	// HTTPClient defaults to a client without a timeout; collectives block
	// until the slowest rank arrives.
	HTTPClient *http.Client
	// RetryInterval spaces join attempts while the coordinator is not up yet.
	RetryInterval time.Duration
	Log           logger.Logger
}

// Dial joins the group served at baseURL as rank and returns its
// communicator. Connection failures are retried until ctx is done; a
// rejected join (rank taken or out of range) fails immediately.
func Dial(ctx context.Context, baseURL string, rank int, opts DialOptions) (Communicator, error) {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}
	if opts.Log == nil {
		opts.Log = logger.Default()
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse coordinator url: %w", err)
	}

	limiter := rate.NewLimiter(rate.Every(opts.RetryInterval), 1)
	var joined JoinResponse
	for attempt := 1; ; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("join %s: %w", base, err)
		}
		joined, err = join(ctx, opts.HTTPClient, base, rank)
		if err == nil {
			break
		}
		var rejected rejectedError
		if errors.As(err, &rejected) {
			return nil, err
		}
		opts.Log.Debug("coordinator not reachable yet", "url", base.String(), "attempt", attempt, "error", err)
	}

	ex := &httpExchanger{
		client:  opts.HTTPClient,
		url:     base.JoinPath("v1", "groups", joined.Session, "exchange").String(),
		session: joined.Session,
	}
	opts.Log.Info("joined group", "rank", rank, "size", joined.Size, "session", joined.Session)
	return newMember(rank, joined.Size, ex, nil), nil
}

// rejectedError marks a join the coordinator answered and refused.
type rejectedError struct {
	err error
}

func (e rejectedError) Error() string { return e.err.Error() }
func (e rejectedError) Unwrap() error { return e.err }

func join(ctx context.Context, client *http.Client, base *url.URL, rank int) (JoinResponse, error) {
	var out JoinResponse
	body, err := json.Marshal(JoinRequest{Rank: rank})
	if err != nil {
		return out, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base.JoinPath("v1", "groups", "join").String(), bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return out, fmt.Errorf("join: status %d", resp.StatusCode)
		}
		return out, rejectedError{err: errorFromCode(apiErr.Error.Code, apiErr.Error.Message)}
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode join response: %w", err)
	}
	return out, nil
}

type httpExchanger struct {
	client  *http.Client
	url     string
	session string
}

func (h *httpExchanger) Exchange(ctx context.Context, c Contribution) ([]float32, error) {
	var body bytes.Buffer
	if err := writeFrame(&body, frameHeader{Session: h.session, Contribution: &c}, c.Data); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", FrameContentType)
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%v #%d: %w", c.Op, c.Seq, err)
	}
	defer resp.Body.Close()

	hdr, data, err := readFrame(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%v #%d: status %d: %w", c.Op, c.Seq, resp.StatusCode, err)
	}
	if hdr.Code != "" || resp.StatusCode != http.StatusOK {
		if hdr.Error == "" {
			hdr.Error = fmt.Sprintf("%v #%d: status %d", c.Op, c.Seq, resp.StatusCode)
		}
		return nil, errorFromCode(hdr.Code, hdr.Error)
	}
	return data, nil
}
