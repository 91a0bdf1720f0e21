package app

import (
	"testing"

	"github.com/docent-ai/docent/internal/config"
)

func TestQualifiedModelName(t *testing.T) {
	tests := []struct {
		provider string
		model    string
		want     string
	}{
		{config.ProviderGemini, "gemini-2.5-flash", "googleai/gemini-2.5-flash"},
		{config.ProviderOpenAI, "gpt-4o-mini", "openai/gpt-4o-mini"},
		{config.ProviderOllama, "llama3.3", "ollama/llama3.3"},
		{config.ProviderOpenAI, "openai/gpt-4o", "openai/gpt-4o"},
	}

	for _, tt := range tests {
		if got := qualifiedModelName(tt.provider, tt.model); got != tt.want {
			t.Errorf("qualifiedModelName(%q, %q) = %q, want %q",
				tt.provider, tt.model, got, tt.want)
		}
	}
}
