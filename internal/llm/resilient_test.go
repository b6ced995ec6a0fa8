package llm

import (
	"context"
	"errors"
	"testing"
)

type pingProvider struct {
	mockProvider
	pingErr error
	pinged  int
}

func (p *pingProvider) Ping(ctx context.Context) error {
	p.pinged++
	return p.pingErr
}

func TestDefaultResilientConfig(t *testing.T) {
	cfg := DefaultResilientConfig()

	if !cfg.EnableCircuitBreaker {
		t.Error("EnableCircuitBreaker should be true by default")
	}
	if !cfg.EnableBulkhead {
		t.Error("EnableBulkhead should be true by default")
	}
	if !cfg.EnableRateLimit {
		t.Error("EnableRateLimit should be true by default")
	}
	if cfg.MaxConcurrent != 5 {
		t.Errorf("MaxConcurrent = %d, want 5", cfg.MaxConcurrent)
	}
	if cfg.RatePerSecond != 2 {
		t.Errorf("RatePerSecond = %d, want 2", cfg.RatePerSecond)
	}
	if cfg.FailureThreshold != 3 {
		t.Errorf("FailureThreshold = %d, want 3", cfg.FailureThreshold)
	}
}

func TestNewResilientProvider(t *testing.T) {
	rp := NewResilientProvider(&mockProvider{name: "test"}, DefaultResilientConfig())

	if rp.Name() != "test" {
		t.Errorf("Name() = %v, want test", rp.Name())
	}
	if rp.circuitBreaker == nil {
		t.Error("circuitBreaker should be set")
	}
	if rp.bulkhead == nil {
		t.Error("bulkhead should be set")
	}
	if rp.rateLimit == nil {
		t.Error("rateLimit should be set")
	}
	if err := rp.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNewResilientProvider_NoPatterns(t *testing.T) {
	rp := NewResilientProvider(&mockProvider{name: "test"}, ResilientConfig{})

	if rp.circuitBreaker != nil {
		t.Error("circuitBreaker should be nil when disabled")
	}
	if rp.bulkhead != nil {
		t.Error("bulkhead should be nil when disabled")
	}
	if rp.rateLimit != nil {
		t.Error("rateLimit should be nil when disabled")
	}
	if err := rp.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestResilientProvider_Generate_Success(t *testing.T) {
	p := &mockProvider{
		name:     "test",
		response: &Response{Content: `{"ok":true}`, FinishReason: "stop"},
	}

	rp := NewResilientProvider(p, ResilientConfig{
		EnableCircuitBreaker: true,
		EnableBulkhead:       true,
		EnableRateLimit:      true,
		MaxConcurrent:        2,
		RatePerSecond:        10,
	})
	defer rp.Close()

	resp, err := rp.Generate(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Content != `{"ok":true}` {
		t.Errorf("Content = %v, want {\"ok\":true}", resp.Content)
	}
}

func TestResilientProvider_Generate_PassesErrorThrough(t *testing.T) {
	backendErr := &StatusError{StatusCode: 500, Body: "boom"}
	rp := NewResilientProvider(&mockProvider{name: "test", err: backendErr}, ResilientConfig{})

	_, err := rp.Generate(context.Background(), &Request{})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Generate() error = %v, want *StatusError", err)
	}
}

func TestResilientProvider_Ping(t *testing.T) {
	inner := &pingProvider{mockProvider: mockProvider{name: "ollama"}}
	rp := NewResilientProvider(inner, DefaultResilientConfig())
	defer rp.Close()

	if err := rp.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if inner.pinged != 1 {
		t.Errorf("inner pinged %d times, want 1", inner.pinged)
	}

	inner.pingErr = errors.New("down")
	if err := rp.Ping(context.Background()); err == nil {
		t.Error("Ping() should surface the inner error")
	}
}
