package llmgateway

import "testing"

func TestResolveModel_UnknownRejected(t *testing.T) {
	if _, err := resolveModel("not-a-real-model"); err == nil {
		t.Fatal("expected error for unknown model")
	}
}

func TestResolveModel_KnownDimensions(t *testing.T) {
	cases := map[string]int{
		"jina-v3":                 1024,
		"jina-v4":                 2048,
		"bge-multilingual-gemma2": 3584,
		"e5-mistral-7b":           4096,
		"bge-en-icl":              4096,
		"qwen3-8b":                4096,
	}
	for model, dim := range cases {
		spec, err := resolveModel(model)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", model, err)
		}
		if spec.Dimension != dim {
			t.Errorf("%s: expected dimension %d, got %d", model, dim, spec.Dimension)
		}
		if !spec.Capabilities[CapEmbed] {
			t.Errorf("%s: expected embed capability", model)
		}
	}
}

func TestModelsForTier(t *testing.T) {
	fast := ModelsForTier("fast")
	if len(fast) == 0 {
		t.Fatal("expected at least one fast-tier chat model")
	}
	strong := ModelsForTier("strong")
	if len(strong) == 0 {
		t.Fatal("expected at least one strong-tier chat model")
	}
}
