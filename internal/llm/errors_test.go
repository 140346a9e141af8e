package llm

import (
	"fmt"
	"net"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"rate limited", &openai.APIError{HTTPStatusCode: 429}, KindRateLimited},
		{"unauthorized", &openai.APIError{HTTPStatusCode: 401}, KindMissingCredentials},
		{"forbidden", &openai.APIError{HTTPStatusCode: 403}, KindSafetyBlocked},
		{"server error", &openai.APIError{HTTPStatusCode: 500}, KindTransient},
		{"bad gateway", &openai.APIError{HTTPStatusCode: 502}, KindTransient},
		{"client error", &openai.APIError{HTTPStatusCode: 400}, KindUnknown},
		{"network failure", &net.DNSError{Err: "no such host"}, KindTransient},
		{"plain error", fmt.Errorf("dial tcp: connection refused"), KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Kind != tt.want {
				t.Errorf("Classify(%v).Kind = %v, want %v", tt.err, got.Kind, tt.want)
			}
		})
	}
}

func TestClassifyWrappedAPIError(t *testing.T) {
	wrapped := fmt.Errorf("LLM API call: %w", &openai.APIError{HTTPStatusCode: 429})
	if got := Classify(wrapped); got.Kind != KindRateLimited {
		t.Errorf("Classify wrapped APIError = %v, want rate_limited", got.Kind)
	}
}

func TestKindOfPlainError(t *testing.T) {
	if got := KindOf(fmt.Errorf("boom")); got != KindUnknown {
		t.Errorf("KindOf(plain) = %v, want unknown", got)
	}
}
