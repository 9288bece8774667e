package cache

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-health/materna/internal/domain"
)

func TestLRUCacheBasicOps(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(10)

	t.Run("set and get", func(t *testing.T) {
		if err := c.Set(ctx, "k1", []byte("v1"), time.Minute); err != nil {
			t.Fatalf("Set: %v", err)
		}
		val, err := c.Get(ctx, "k1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(val) != "v1" {
			t.Errorf("got %q, want v1", val)
		}
	})

	t.Run("miss returns nil without error", func(t *testing.T) {
		val, err := c.Get(ctx, "missing")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if val != nil {
			t.Errorf("got %q for missing key", val)
		}
	})

	t.Run("update replaces value", func(t *testing.T) {
		if err := c.Set(ctx, "k1", []byte("v2"), time.Minute); err != nil {
			t.Fatalf("Set: %v", err)
		}
		val, _ := c.Get(ctx, "k1")
		if string(val) != "v2" {
			t.Errorf("got %q, want v2", val)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := c.Delete(ctx, "k1"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if val, _ := c.Get(ctx, "k1"); val != nil {
			t.Errorf("got %q after delete", val)
		}
		if err := c.Delete(ctx, "never-existed"); err != nil {
			t.Errorf("Delete of missing key: %v", err)
		}
	})
}

func TestLRUCacheTTL(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(10)

	if err := c.Set(ctx, "ephemeral", []byte("x"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	val, err := c.Get(ctx, "ephemeral")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != nil {
		t.Errorf("expired entry still returned: %q", val)
	}
}

func TestLRUCacheEviction(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(3)

	for _, k := range []string{"a", "b", "c"} {
		if err := c.Set(ctx, k, []byte(k), time.Minute); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	// Touch "a" so "b" becomes the oldest, then push over capacity.
	if _, err := c.Get(ctx, "a"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := c.Set(ctx, "d", []byte("d"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if val, _ := c.Get(ctx, "b"); val != nil {
		t.Error("least recently used entry was not evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if val, _ := c.Get(ctx, k); val == nil {
			t.Errorf("entry %q was evicted unexpectedly", k)
		}
	}

	if size, capacity := c.Stats(); size != 3 || capacity != 3 {
		t.Errorf("stats = %d/%d", size, capacity)
	}
}

func TestNewCache(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if _, ok := c.(*LRUCache); !ok {
			t.Errorf("got %T, want *LRUCache", c)
		}
	})

	t.Run("unsupported type", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Fatal("expected error for unsupported cache type")
		}
	})
}

func TestPredictionRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(10)

	pred := &domain.Prediction{
		ID: "p-123",
		Outcomes: []domain.RiskOutcome{
			{RiskType: domain.RiskSepsis, Probability: 0.42, RiskLevel: domain.RiskLevelBajo},
		},
		Summary:   domain.PatientSummary{OverallRisk: domain.RiskLevelBajo, HighestRisk: domain.RiskSepsis, HighestProb: 0.42},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	if err := SetPrediction(ctx, c, pred, time.Minute); err != nil {
		t.Fatalf("SetPrediction: %v", err)
	}

	got, err := GetPrediction(ctx, c, "p-123")
	if err != nil {
		t.Fatalf("GetPrediction: %v", err)
	}
	if got == nil {
		t.Fatal("cached prediction not found")
	}
	if got.ID != pred.ID || got.Summary.OverallRisk != pred.Summary.OverallRisk {
		t.Errorf("round trip mismatch: %+v", got)
	}

	t.Run("miss", func(t *testing.T) {
		got, err := GetPrediction(ctx, c, "unknown")
		if err != nil {
			t.Fatalf("GetPrediction: %v", err)
		}
		if got != nil {
			t.Errorf("got %+v for unknown ID", got)
		}
	})

	t.Run("corrupt payload", func(t *testing.T) {
		if err := c.Set(ctx, predictionKey("bad"), []byte("{"), time.Minute); err != nil {
			t.Fatal(err)
		}
		if _, err := GetPrediction(ctx, c, "bad"); err == nil {
			t.Fatal("expected error for corrupt payload")
		}
	})
}
