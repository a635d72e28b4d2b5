package embedder

import (
	"context"
	"errors"
	"testing"

	"ragfabric/internal/ragerr"
)

func TestNew_UnknownModelRejected(t *testing.T) {
	if _, err := New(nil, "not-a-real-model", nil); !errors.Is(err, ragerr.ErrModelUnknown) {
		t.Fatalf("expected unknown-model error, got %v", err)
	}
}

func TestNormalize_UnitLength(t *testing.T) {
	v := normalize([]float32{3, 4})
	const want = 0.6
	if diff := v[0] - want; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("expected v[0] ~= %v, got %v", want, v[0])
	}
}

func TestNormalize_ZeroVectorUnchanged(t *testing.T) {
	v := normalize([]float32{0, 0, 0})
	for _, x := range v {
		if x != 0 {
			t.Fatalf("expected all-zero vector to stay zero, got %v", v)
		}
	}
}

type fakeEmbedder struct {
	healthy bool
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}
func (f *fakeEmbedder) Model() string  { return "fake" }
func (f *fakeEmbedder) Dimension() int { return 4 }
func (f *fakeEmbedder) HealthCheck(ctx context.Context) error {
	if f.healthy {
		return nil
	}
	return errors.New("unreachable")
}

func TestHealthCheckAll_IsolatesFailures(t *testing.T) {
	embedders := map[string]Embedder{
		"ok":   &fakeEmbedder{healthy: true},
		"down": &fakeEmbedder{healthy: false},
	}
	results := HealthCheckAll(context.Background(), embedders)
	if !results["ok"] {
		t.Error("expected ok embedder to report healthy")
	}
	if results["down"] {
		t.Error("expected down embedder to report unhealthy")
	}
}
