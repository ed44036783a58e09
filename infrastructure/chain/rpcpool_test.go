package chain

import (
	"testing"
	"time"
)

func TestParseEndpoints(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"https://a.example", []string{"https://a.example"}},
		{"https://a.example,https://b.example", []string{"https://a.example", "https://b.example"}},
		{" https://a.example , , https://b.example ", []string{"https://a.example", "https://b.example"}},
	}
	for _, tc := range cases {
		got := ParseEndpoints(tc.in)
		if len(got) != len(tc.want) {
			t.Fatalf("ParseEndpoints(%q) = %v, want %v", tc.in, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("ParseEndpoints(%q)[%d] = %q, want %q", tc.in, i, got[i], tc.want[i])
			}
		}
	}
}

func TestNewRPCPool_RequiresEndpoints(t *testing.T) {
	if _, err := NewRPCPool(&RPCPoolConfig{}); err == nil {
		t.Fatal("expected an error with no endpoints configured")
	}
}

func TestNewRPCPool_DefaultsConfig(t *testing.T) {
	pool, err := NewRPCPool(&RPCPoolConfig{Endpoints: []string{"https://a.example"}})
	if err != nil {
		t.Fatalf("NewRPCPool: %v", err)
	}
	if pool.config.MaxConsecutiveFails != DefaultRPCPoolConfig().MaxConsecutiveFails {
		t.Fatalf("expected default MaxConsecutiveFails to carry through, got %d", pool.config.MaxConsecutiveFails)
	}
}

func TestNewRPCPool_InitializesEndpointsHealthyInOrder(t *testing.T) {
	pool, err := NewRPCPool(&RPCPoolConfig{
		Endpoints:           []string{" https://a.example ", "https://b.example"},
		MaxConsecutiveFails: 3,
	})
	if err != nil {
		t.Fatalf("NewRPCPool: %v", err)
	}
	eps := pool.GetEndpoints()
	if len(eps) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(eps))
	}
	if eps[0].URL != "https://a.example" {
		t.Fatalf("expected trimmed URL, got %q", eps[0].URL)
	}
	if eps[0].Priority != 0 || eps[1].Priority != 1 {
		t.Fatalf("expected priority to follow configuration order, got %d, %d", eps[0].Priority, eps[1].Priority)
	}
	if !eps[0].Healthy || !eps[1].Healthy {
		t.Fatal("expected endpoints to start healthy")
	}
}

func TestGetBestEndpoint_EmptyPool(t *testing.T) {
	pool := &RPCPool{config: DefaultRPCPoolConfig()}
	if _, err := pool.GetBestEndpoint(); err == nil {
		t.Fatal("expected an error for an empty pool")
	}
}

func TestGetBestEndpoint_FallsBackWhenNoneHealthy(t *testing.T) {
	pool, err := NewRPCPool(&RPCPoolConfig{
		Endpoints:           []string{"https://a.example", "https://b.example"},
		MaxConsecutiveFails: 1,
	})
	if err != nil {
		t.Fatalf("NewRPCPool: %v", err)
	}
	pool.MarkUnhealthy("https://a.example")
	pool.MarkUnhealthy("https://b.example")

	ep, err := pool.GetBestEndpoint()
	if err == nil {
		t.Fatal("expected a fallback error when no endpoint is healthy")
	}
	if ep == nil || ep.URL != "https://a.example" {
		t.Fatalf("expected fallback to the first endpoint, got %+v", ep)
	}
}

func TestGetBestEndpoint_PrefersLowerLatencyThenPriority(t *testing.T) {
	pool, err := NewRPCPool(&RPCPoolConfig{
		Endpoints:           []string{"https://slow.example", "https://fast.example", "https://tied.example"},
		MaxConsecutiveFails: 3,
	})
	if err != nil {
		t.Fatalf("NewRPCPool: %v", err)
	}
	pool.MarkHealthy("https://slow.example", 200*time.Millisecond)
	pool.MarkHealthy("https://fast.example", 10*time.Millisecond)
	pool.MarkHealthy("https://tied.example", 10*time.Millisecond)

	ep, err := pool.GetBestEndpoint()
	if err != nil {
		t.Fatalf("GetBestEndpoint: %v", err)
	}
	// fast.example has priority 1, tied.example has priority 2; both latency
	// 10ms after MarkHealthy seeds AvgLatency directly from the first sample.
	if ep.URL != "https://fast.example" {
		t.Fatalf("expected the lowest-latency endpoint to win ties by priority, got %q", ep.URL)
	}
}

func TestGetNextEndpoint_RoundRobinSkipsUnhealthy(t *testing.T) {
	pool, err := NewRPCPool(&RPCPoolConfig{
		Endpoints:           []string{"https://a.example", "https://b.example", "https://c.example"},
		MaxConsecutiveFails: 1,
	})
	if err != nil {
		t.Fatalf("NewRPCPool: %v", err)
	}
	pool.MarkUnhealthy("https://b.example")

	first := pool.GetNextEndpoint()
	if first.URL != "https://b.example" && first.URL == "https://a.example" {
		t.Fatalf("unexpected starting endpoint %q", first.URL)
	}

	seen := map[string]bool{first.URL: true}
	for i := 0; i < 2; i++ {
		seen[pool.GetNextEndpoint().URL] = true
	}
	if seen["https://b.example"] {
		t.Fatal("round-robin should skip the unhealthy endpoint while others remain healthy")
	}
}

func TestGetNextEndpoint_FallsThroughWhenAllUnhealthy(t *testing.T) {
	pool, err := NewRPCPool(&RPCPoolConfig{
		Endpoints:           []string{"https://a.example", "https://b.example"},
		MaxConsecutiveFails: 1,
	})
	if err != nil {
		t.Fatalf("NewRPCPool: %v", err)
	}
	pool.MarkUnhealthy("https://a.example")
	pool.MarkUnhealthy("https://b.example")

	// Should not hang or panic even though no endpoint is healthy.
	ep := pool.GetNextEndpoint()
	if ep == nil {
		t.Fatal("expected a non-nil endpoint even with none healthy")
	}
}

func TestMarkUnhealthy_FlipsAfterThreshold(t *testing.T) {
	pool, err := NewRPCPool(&RPCPoolConfig{
		Endpoints:           []string{"https://a.example"},
		MaxConsecutiveFails: 3,
	})
	if err != nil {
		t.Fatalf("NewRPCPool: %v", err)
	}

	pool.MarkUnhealthy("https://a.example")
	pool.MarkUnhealthy("https://a.example")
	if pool.HealthyCount() != 1 {
		t.Fatal("expected endpoint to remain healthy below the failure threshold")
	}

	pool.MarkUnhealthy("https://a.example")
	if pool.HealthyCount() != 0 {
		t.Fatal("expected endpoint to flip unhealthy once MaxConsecutiveFails is reached")
	}
}

func TestMarkHealthy_ResetsFailuresAndUpdatesEMA(t *testing.T) {
	pool, err := NewRPCPool(&RPCPoolConfig{
		Endpoints:           []string{"https://a.example"},
		MaxConsecutiveFails: 2,
	})
	if err != nil {
		t.Fatalf("NewRPCPool: %v", err)
	}

	pool.MarkUnhealthy("https://a.example")
	pool.MarkHealthy("https://a.example", 100*time.Millisecond)

	eps := pool.GetEndpoints()
	ep := eps[0]
	if !ep.Healthy {
		t.Fatal("expected endpoint to be healthy after MarkHealthy")
	}
	if ep.ConsecutiveFails != 0 {
		t.Fatalf("expected failure count reset, got %d", ep.ConsecutiveFails)
	}
	if ep.AvgLatency != 100*time.Millisecond {
		t.Fatalf("expected first sample to seed AvgLatency directly, got %v", ep.AvgLatency)
	}

	pool.MarkHealthy("https://a.example", 200*time.Millisecond)
	eps = pool.GetEndpoints()
	want := (100*time.Millisecond*7 + 200*time.Millisecond*3) / 10
	if eps[0].AvgLatency != want {
		t.Fatalf("expected EMA-updated AvgLatency %v, got %v", want, eps[0].AvgLatency)
	}
}

func TestHealthyCount(t *testing.T) {
	pool, err := NewRPCPool(&RPCPoolConfig{
		Endpoints:           []string{"https://a.example", "https://b.example"},
		MaxConsecutiveFails: 1,
	})
	if err != nil {
		t.Fatalf("NewRPCPool: %v", err)
	}
	if pool.HealthyCount() != 2 {
		t.Fatalf("expected both endpoints healthy initially, got %d", pool.HealthyCount())
	}
	pool.MarkUnhealthy("https://a.example")
	if pool.HealthyCount() != 1 {
		t.Fatalf("expected one healthy endpoint after a failure, got %d", pool.HealthyCount())
	}
}
