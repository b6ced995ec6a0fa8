package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/sensei/internal/domain"
	"github.com/felixgeelhaar/sensei/internal/metrics"
)

// scriptedProvider replays a fixed sequence of contents and records prompts.
type scriptedProvider struct {
	contents []string
	err      error
	block    bool
	prompts  []string
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	s.prompts = append(s.prompts, req.Messages[len(req.Messages)-1].Content)
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	i := len(s.prompts) - 1
	if i >= len(s.contents) {
		i = len(s.contents) - 1
	}
	return &Response{Content: s.contents[i]}, nil
}

func TestGateway_Issue_Success(t *testing.T) {
	p := &scriptedProvider{contents: []string{"  {\"title\": \"Two Sum\"}\n"}}
	g := NewGateway(p, GatewayConfig{}, metrics.New(nil))

	raw, err := g.Issue(context.Background(), "make a challenge")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if string(raw) != `{"title": "Two Sum"}` {
		t.Errorf("Issue() = %s, want trimmed object", raw)
	}
	if len(p.prompts) != 1 {
		t.Errorf("calls = %d, want 1", len(p.prompts))
	}
	if p.prompts[0] != "make a challenge" {
		t.Errorf("first prompt = %q, want original prompt", p.prompts[0])
	}
}

func TestGateway_Issue_ConnectionErrorNotRetried(t *testing.T) {
	p := &scriptedProvider{err: errors.New("dial tcp: connection refused")}
	g := NewGateway(p, GatewayConfig{MaxAttempts: 3}, nil)

	_, err := g.Issue(context.Background(), "prompt")

	var connErr *domain.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Issue() error = %v, want *domain.ConnectionError", err)
	}
	if !errors.Is(err, domain.ErrConnection) {
		t.Error("error should match domain.ErrConnection")
	}
	if len(p.prompts) != 1 {
		t.Errorf("calls = %d, want 1 (no retries)", len(p.prompts))
	}
}

func TestGateway_Issue_MalformedExhaustsAttempts(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts int
	}{
		{"default budget", 0},
		{"single attempt", 1},
		{"five attempts", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptedProvider{contents: []string{"Sure! Here is your challenge:"}}
			g := NewGateway(p, GatewayConfig{MaxAttempts: tt.maxAttempts}, nil)

			_, err := g.Issue(context.Background(), "prompt")

			want := tt.maxAttempts
			if want == 0 {
				want = 3
			}
			var malformed *domain.MalformedOutputError
			if !errors.As(err, &malformed) {
				t.Fatalf("Issue() error = %v, want *domain.MalformedOutputError", err)
			}
			if malformed.Attempts != want {
				t.Errorf("Attempts = %d; want %d", malformed.Attempts, want)
			}
			if len(p.prompts) != want {
				t.Errorf("calls = %d; want %d", len(p.prompts), want)
			}
			if malformed.Err == nil {
				t.Error("MalformedOutputError should wrap the last parse error")
			}
		})
	}
}

func TestGateway_Issue_EscalatesPromptOnRetry(t *testing.T) {
	p := &scriptedProvider{contents: []string{"not json", "[1,2,3]", `{"ok":true}`}}
	g := NewGateway(p, GatewayConfig{MaxAttempts: 3}, nil)

	raw, err := g.Issue(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if string(raw) != `{"ok":true}` {
		t.Errorf("Issue() = %s", raw)
	}
	if len(p.prompts) != 3 {
		t.Fatalf("calls = %d, want 3", len(p.prompts))
	}
	if strings.Contains(p.prompts[0], StrictJSONDirective) {
		t.Error("first attempt should not carry the strict directive")
	}
	for i, prompt := range p.prompts[1:] {
		if !strings.HasPrefix(prompt, "prompt") || !strings.HasSuffix(prompt, StrictJSONDirective) {
			t.Errorf("retry %d prompt = %q, want original prompt plus directive", i+1, prompt)
		}
		if n := strings.Count(prompt, StrictJSONDirective); n != i+1 {
			t.Errorf("retry %d carries the directive %d times, want %d", i+1, n, i+1)
		}
	}
}

func TestGateway_Issue_TimeoutIsConnectionError(t *testing.T) {
	p := &scriptedProvider{block: true}
	g := NewGateway(p, GatewayConfig{Timeout: 20 * time.Millisecond}, nil)

	_, err := g.Issue(context.Background(), "prompt")
	if !errors.Is(err, domain.ErrConnection) {
		t.Fatalf("Issue() error = %v, want ErrConnection", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Issue() error = %v, should wrap context.DeadlineExceeded", err)
	}
	if len(p.prompts) != 1 {
		t.Errorf("calls = %d, want 1", len(p.prompts))
	}
}

func TestGateway_Issue_BackendStatusIsConnectionError(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"model crashed"}`))
	}))
	defer server.Close()

	g := NewGateway(NewOllamaProvider(OllamaConfig{BaseURL: server.URL}), GatewayConfig{}, nil)

	_, err := g.Issue(context.Background(), "prompt")
	if !errors.Is(err, domain.ErrConnection) {
		t.Fatalf("Issue() error = %v, want ErrConnection", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != 500 {
		t.Errorf("Issue() error = %v, want wrapped StatusError 500", err)
	}
	if hits.Load() != 1 {
		t.Errorf("backend hits = %d, want 1", hits.Load())
	}
}

func TestGateway_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[]}`))
	}))

	g := NewGateway(NewOllamaProvider(OllamaConfig{BaseURL: server.URL}), GatewayConfig{HealthTimeout: time.Second}, nil)
	if !g.IsAvailable(context.Background()) {
		t.Error("IsAvailable() = false, want true")
	}

	server.Close()
	if g.IsAvailable(context.Background()) {
		t.Error("IsAvailable() = true after server closed, want false")
	}
}

func TestGateway_IsAvailable_NoHealthCheck(t *testing.T) {
	g := NewGateway(&scriptedProvider{}, GatewayConfig{}, nil)
	if g.IsAvailable(context.Background()) {
		t.Error("IsAvailable() = true for provider without liveness endpoint")
	}
}

func TestParseObject(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"object", `{"a":1}`, false},
		{"padded object", "\n\t{\"a\":1}  ", false},
		{"empty", "   ", true},
		{"prose", "Here you go", true},
		{"array", `[{"a":1}]`, true},
		{"null", "null", true},
		{"markdown fence", "```json\n{\"a\":1}\n```", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseObject(tt.content)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseObject() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
