package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/veilm/hnt/internal/llmstream"
)

// openRouterStream is the one integration point that actually talks to
// an LLM provider over HTTP: it issues the completion request and hands
// the response body to llmstream.NewDecoder. Any
// OpenAI-compatible streaming chat-completions endpoint works here; the
// default points at OpenRouter because config.DefaultModel names an
// OpenRouter model slug.
func openRouterStream(ctx context.Context, model, prompt string) (*llmstream.Decoder, error) {
	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("HNT_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("no API key set (OPENROUTER_API_KEY or HNT_API_KEY)")
	}

	body, err := json.Marshal(map[string]any{
		"model":  model,
		"stream": true,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding completion request: %w", err)
	}

	endpoint := os.Getenv("HNT_AGENT_ENDPOINT")
	if endpoint == "" {
		endpoint = "https://openrouter.ai/api/v1/chat/completions"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending completion request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, fmt.Errorf("completion request failed: %s", resp.Status)
	}

	return llmstream.NewDecoder(closeOnEOF{resp.Body}), nil
}

// closeOnEOF closes the wrapped ReadCloser as soon as Read reports EOF
// (or any other error), so the decoder's drop-to-cancel policy also
// releases the HTTP response body on the normal completion
// path, not just on an explicit cancellation.
type closeOnEOF struct {
	io.ReadCloser
}

func (c closeOnEOF) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	if err != nil {
		c.ReadCloser.Close()
	}
	return n, err
}
