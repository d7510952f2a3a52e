package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

type ipv4Server struct {
	URL  string
	srv  *http.Server
	hits atomic.Int32
}

func newIPv4Server(t *testing.T, handler http.HandlerFunc) *ipv4Server {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			t.Skipf("skipping test: cannot open local listener (%v)", err)
		}
		t.Fatalf("listen tcp4: %v", err)
	}
	s := &ipv4Server{URL: "http://" + ln.Addr().String()}
	s.srv = &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		handler(w, r)
	})}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(fmt.Sprintf("test server serve: %v", err))
		}
	}()
	t.Cleanup(s.Close)
	return s
}

func (s *ipv4Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}

// sequence answers with statuses in order, repeating the last one.
func sequence(t *testing.T, path string, statuses []int, headers []http.Header, ok any) *ipv4Server {
	t.Helper()
	var idx atomic.Int32
	return newIPv4Server(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		i := int(idx.Add(1)) - 1
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		if i < len(headers) {
			for k, vals := range headers[i] {
				for _, v := range vals {
					w.Header().Add(k, v)
				}
			}
		}
		w.WriteHeader(statuses[i])
		if statuses[i] < 300 {
			_ = json.NewEncoder(w).Encode(ok)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "slow down"}})
	})
}

var hello = GenerateRequest{Model: "test-model", Messages: []Message{{Role: "user", Content: "hi"}}, MaxTokens: 8}

func okBody(text string) GenerateResponse {
	return GenerateResponse{Choices: []Choice{{Message: Message{Role: "assistant", Content: text}}}}
}

func recordSleeps(c *OpenRouter) *[]time.Duration {
	var waits []time.Duration
	c.t.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return &waits
}

func TestOpenRouterRetriesOn429(t *testing.T) {
	srv := sequence(t, "/chat/completions", []int{429, 200}, []http.Header{{"Retry-After": {"0"}}}, okBody("ok"))
	c := NewOpenRouter(Config{APIKey: "k", BaseURL: srv.URL, BaseDelay: 10 * time.Millisecond})
	recordSleeps(c)

	resp, err := c.Generate(context.Background(), hello)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if resp.Text() != "ok" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if got := srv.hits.Load(); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
}

func TestOpenRouterHonorsRetryAfter(t *testing.T) {
	srv := sequence(t, "/chat/completions", []int{429, 503, 200}, []http.Header{{"Retry-After": {"3"}}}, okBody("ok"))
	c := NewOpenRouter(Config{APIKey: "k", BaseURL: srv.URL, BaseDelay: 100 * time.Millisecond, MaxDelay: 150 * time.Millisecond})
	waits := recordSleeps(c)

	if _, err := c.Generate(context.Background(), hello); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if len(*waits) != 2 {
		t.Fatalf("expected 2 waits, got %v", *waits)
	}
	if (*waits)[0] != 3*time.Second {
		t.Fatalf("expected Retry-After wait of 3s, got %v", (*waits)[0])
	}
	if (*waits)[1] > 150*time.Millisecond {
		t.Fatalf("backoff not capped: %v", (*waits)[1])
	}
}

func TestOpenRouterGivesUpAfterRetryMax(t *testing.T) {
	srv := sequence(t, "/chat/completions", []int{500}, nil, nil)
	c := NewOpenRouter(Config{APIKey: "k", BaseURL: srv.URL, RetryMax: 2})
	recordSleeps(c)

	_, err := c.Generate(context.Background(), hello)
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServerError, got %T: %v", err, err)
	}
	if got := srv.hits.Load(); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
}

func TestOpenRouterErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		body   map[string]any
		check  func(error) bool
	}{
		{401, map[string]any{"error": map[string]any{"message": "no key"}}, func(err error) bool { var e *AuthError; return errors.As(err, &e) }},
		{400, map[string]any{"error": map[string]any{"message": "bad req", "code": "bad_request"}}, func(err error) bool { var e *BadRequestError; return errors.As(err, &e) }},
		{404, map[string]any{"error": map[string]any{"message": "model xyz not found"}}, func(err error) bool { var e *ModelNotFoundError; return errors.As(err, &e) }},
		{402, map[string]any{"error": map[string]any{"message": "insufficient quota"}}, func(err error) bool { var e *QuotaExceededError; return errors.As(err, &e) }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(fmt.Sprint(tc.status), func(t *testing.T) {
			srv := newIPv4Server(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Request-Id", "req_test_123")
				w.WriteHeader(tc.status)
				_ = json.NewEncoder(w).Encode(tc.body)
			})
			c := NewOpenRouter(Config{APIKey: "k", BaseURL: srv.URL})
			_, err := c.Generate(context.Background(), hello)
			if err == nil || !tc.check(err) {
				t.Fatalf("unexpected error type %T: %v", err, err)
			}
			if !strings.Contains(err.Error(), "req_test_123") {
				t.Fatalf("expected request id in error, got: %v", err)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != tc.status {
				t.Fatalf("expected wrapped APIError with status %d, got %v", tc.status, err)
			}
			if got := srv.hits.Load(); got != 1 {
				t.Fatalf("client errors must not be retried, got %d requests", got)
			}
		})
	}
}

func TestOpenRouterRequiresKeyAndModel(t *testing.T) {
	if _, err := NewOpenRouter(Config{}).Generate(context.Background(), hello); err == nil {
		t.Fatalf("expected missing key error")
	}
	if _, err := NewOpenRouter(Config{APIKey: "k"}).Generate(context.Background(), GenerateRequest{}); err == nil {
		t.Fatalf("expected missing model error")
	}
}

func TestOllamaGenerate(t *testing.T) {
	var got ollamaRequest
	srv := newIPv4Server(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":           map[string]any{"role": "assistant", "content": "hello from ollama"},
			"done":              true,
			"prompt_eval_count": 12,
			"eval_count":        5,
		})
	})
	c := NewOllama(Config{Host: srv.URL})
	resp, err := c.Generate(context.Background(), GenerateRequest{Model: "llama3:latest", Messages: hello.Messages, MaxTokens: 16, Temperature: 0.7})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Text() != "hello from ollama" || resp.Usage.TotalTokens != 17 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if got.Stream || got.Options["num_predict"] != float64(16) || got.Options["temperature"] != 0.7 {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestOllamaErrors(t *testing.T) {
	srv := newIPv4Server(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "model 'nope' not found"})
	})
	_, err := NewOllama(Config{Host: srv.URL}).Generate(context.Background(), GenerateRequest{Model: "nope", Messages: hello.Messages})
	var mnf *ModelNotFoundError
	if !errors.As(err, &mnf) {
		t.Fatalf("expected ModelNotFoundError, got %T: %v", err, err)
	}

	_, err = NewOllama(Config{}).Generate(context.Background(), GenerateRequest{Model: "m"})
	if err == nil || err.Error() != "messages cannot be empty" {
		t.Fatalf("expected 'messages cannot be empty', got %v", err)
	}

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot open local listener: %v", err)
	}
	host := "http://" + ln.Addr().String()
	ln.Close()
	_, err = NewOllama(Config{Host: host, RetryMax: 1}).Generate(context.Background(), GenerateRequest{Model: "m", Messages: hello.Messages})
	var ue *UnreachableError
	if !errors.As(err, &ue) || ue.Host != host {
		t.Fatalf("expected UnreachableError for %s, got %T: %v", host, err, err)
	}
}

func TestRateLimiterFromConfig(t *testing.T) {
	if l := (Config{}).limiter(); l.Limit() != rate.Inf {
		t.Fatalf("expected unlimited limiter, got %v", l.Limit())
	}
	if l := (Config{RequestsPerMinute: 60}).limiter(); l.Limit() != rate.Every(time.Second) {
		t.Fatalf("expected one request per second, got %v", l.Limit())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewOpenRouter(Config{APIKey: "k", BaseURL: "http://127.0.0.1:1", RequestsPerMinute: 1})
	if _, err := c.Generate(ctx, hello); err == nil {
		t.Fatalf("expected cancelled context to stop the limiter wait")
	}
}

func TestRegistry(t *testing.T) {
	if _, err := New("gemini", Config{}); err == nil {
		t.Fatalf("expected unknown provider error")
	}
	rt, err := New(ProviderOllama, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := rt.(*Ollama); !ok {
		t.Fatalf("expected *Ollama, got %T", rt)
	}
}

func TestModels(t *testing.T) {
	local := Models(ProviderOllama)
	if len(local) == 0 {
		t.Fatalf("expected ollama models")
	}
	for _, m := range local {
		if m.Provider != ProviderOllama || m.Name == "" {
			t.Fatalf("unexpected entry %+v", m)
		}
	}
	if _, ok := LookupModel(DefaultModels[ProviderOpenRouter]); !ok {
		t.Fatalf("default openrouter model missing from catalog")
	}
	if len(Models("")) != len(catalog) {
		t.Fatalf("unfiltered list should include every model")
	}
}
