package app

import (
	"strings"
	"testing"

	embmock "github.com/animus-ai/animus/pkg/provider/embeddings/mock"
	llmmock "github.com/animus-ai/animus/pkg/provider/llm/mock"
	sttmock "github.com/animus-ai/animus/pkg/provider/stt/mock"
	visionmock "github.com/animus-ai/animus/pkg/provider/vision/mock"
)

func TestRequireProviders(t *testing.T) {
	full := &Providers{
		LLM:        &llmmock.Provider{},
		STT:        &sttmock.Transcriber{},
		Vision:     &visionmock.Describer{},
		Embeddings: &embmock.Provider{},
	}

	t.Run("full set passes", func(t *testing.T) {
		if err := requireProviders(full); err != nil {
			t.Fatalf("requireProviders: %v", err)
		}
	})

	t.Run("every missing slot is named", func(t *testing.T) {
		err := requireProviders(&Providers{LLM: full.LLM})
		if err == nil {
			t.Fatal("expected error for missing providers")
		}
		for _, want := range []string{"stt", "vision", "embeddings"} {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("error %q does not mention %s", err, want)
			}
		}
		if strings.Contains(err.Error(), "llm provider") {
			t.Error("llm was provided but still reported missing")
		}
	})
}
