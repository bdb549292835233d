package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCheckAllHealthy(t *testing.T) {
	c := New(time.Second)
	c.Register("ledger", "database", func(ctx context.Context) error { return nil })
	c.Register("cache", "cache", func(ctx context.Context) error { return nil })

	components, healthy := c.Check(context.Background())
	if !healthy {
		t.Fatal("all probes pass but overall unhealthy")
	}
	if len(components) != 2 {
		t.Fatalf("components = %d, want 2", len(components))
	}
	for _, comp := range components {
		if comp.Status != StatusHealthy {
			t.Fatalf("%s status = %s", comp.Name, comp.Status)
		}
	}
}

func TestCheckReportsFailure(t *testing.T) {
	c := New(time.Second)
	c.Register("ledger", "database", func(ctx context.Context) error { return nil })
	c.Register("redis", "cache", func(ctx context.Context) error { return errors.New("connection refused") })

	components, healthy := c.Check(context.Background())
	if healthy {
		t.Fatal("failing probe but overall healthy")
	}
	var found bool
	for _, comp := range components {
		if comp.Name == "redis" {
			found = true
			if comp.Status != StatusUnhealthy || comp.Error == "" {
				t.Fatalf("redis component: %+v", comp)
			}
		}
	}
	if !found {
		t.Fatal("redis component missing from report")
	}
}

func TestCheckProbeTimeout(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.Register("slow", "database", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})

	_, healthy := c.Check(context.Background())
	if healthy {
		t.Fatal("slow probe should time out and fail the check")
	}
}
