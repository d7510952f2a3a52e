package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// transport posts JSON with rate limiting and retries on 429, 5xx and
// transient network errors.
type transport struct {
	http    *http.Client
	limiter *rate.Limiter
	cfg     Config
	log     *zap.Logger
	sleep   func(context.Context, time.Duration) error
}

func newTransport(cfg Config) *transport {
	return &transport{
		http:    &http.Client{Timeout: cfg.HTTPTimeout},
		limiter: cfg.limiter(),
		cfg:     cfg,
		log:     cfg.Logger,
		sleep:   sleepCtx,
	}
}

// postJSON sends body to url and decodes a 2xx response into out. header
// is applied to every attempt. host names the endpoint in UnreachableError.
func (t *transport) postJSON(ctx context.Context, url, host string, header http.Header, body, out any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	backoff := t.cfg.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= t.cfg.RetryMax; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return "", err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return "", fmt.Errorf("build request: %w", err)
		}
		req.Header = header.Clone()
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = &UnreachableError{Host: host, Err: err}
			if !retryableNetErr(err) || attempt == t.cfg.RetryMax {
				return "", lastErr
			}
			t.log.Debug("retrying after network error", zap.Int("attempt", attempt), zap.Error(err))
			if err := t.sleep(ctx, t.capped(withJitter(backoff))); err != nil {
				return "", err
			}
			backoff *= 2
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return "", fmt.Errorf("decode response: %w", err)
			}
			return requestID(resp), nil
		}

		apiErr := readAPIError(resp)
		resp.Body.Close()
		lastErr = classify(apiErr, resp.Header)
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if !retryable || attempt == t.cfg.RetryMax {
			return "", lastErr
		}
		wait := t.capped(withJitter(backoff))
		var rl *RateLimitError
		if errors.As(lastErr, &rl) && rl.RetryAfter > 0 {
			wait = rl.RetryAfter
		}
		t.log.Debug("retrying after api error",
			zap.Int("attempt", attempt),
			zap.Int("status", resp.StatusCode),
			zap.Duration("wait", wait))
		if err := t.sleep(ctx, wait); err != nil {
			return "", err
		}
		backoff *= 2
	}
	return "", lastErr
}

func (t *transport) capped(d time.Duration) time.Duration {
	if t.cfg.MaxDelay > 0 && d > t.cfg.MaxDelay {
		return t.cfg.MaxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retryableNetErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(v string) (time.Duration, error) {
	if v == "" {
		return 0, errors.New("empty Retry-After")
	}
	if s, err := strconv.Atoi(v); err == nil {
		return time.Duration(s) * time.Second, nil
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("invalid Retry-After: %q", v)
}

// withJitter spreads d by +/-20%.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
}
