package committee

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Provider reviews an evidence pack and returns a validated mapping result.
// Implementations are polymorphic over prompt preparation, invocation and
// output parsing; the three HTTP families below cover the provider pool.
type Provider interface {
	// Name returns the provider's configured name (e.g. "anthropic-main").
	Name() string

	// Family returns the vendor family used for the diversity rule
	// (e.g. "anthropic", "openai", "generic").
	Family() string

	// Review runs the schema-mapping review against the evidence pack.
	// The returned result has already passed contract validation.
	Review(ctx context.Context, pack *Pack) (*ProviderResult, error)
}

// ProviderConfig configures one HTTP provider in the pool.
type ProviderConfig struct {
	// Name is the unique provider name inside the pool.
	Name string `yaml:"name"`

	// Family is the vendor family: "anthropic", "openai" or "generic".
	Family string `yaml:"family"`

	// BaseURL is the API endpoint base.
	BaseURL string `yaml:"base_url"`

	// Model is the model identifier sent to the vendor.
	Model string `yaml:"model"`

	// APIKeySecret names the secret holding the API key.
	APIKeySecret string `yaml:"api_key_secret"`

	// Timeout bounds one review call. Default: 30s.
	Timeout time.Duration `yaml:"timeout"`
}

// SecretSource resolves named secrets at call time so keys never sit in
// config structs.
type SecretSource interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// HTTPProvider is the shared HTTP implementation. The family decides how
// the prompt is framed and how the completion is unwrapped.
type HTTPProvider struct {
	config  ProviderConfig
	client  *http.Client
	secrets SecretSource
}

// NewHTTPProvider creates a provider for the configured family.
func NewHTTPProvider(config ProviderConfig, secrets SecretSource) (*HTTPProvider, error) {
	switch config.Family {
	case "anthropic", "openai", "generic":
	default:
		return nil, fmt.Errorf("unknown provider family %q", config.Family)
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &HTTPProvider{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		secrets: secrets,
	}, nil
}

// Name returns the provider's configured name.
func (p *HTTPProvider) Name() string { return p.config.Name }

// Family returns the provider's vendor family.
func (p *HTTPProvider) Family() string { return p.config.Family }

// Review prepares the prompt, invokes the vendor API and parses the output
// through contract validation.
func (p *HTTPProvider) Review(ctx context.Context, pack *Pack) (*ProviderResult, error) {
	prompt, err := p.preparePrompt(pack)
	if err != nil {
		return nil, err
	}

	raw, err := p.invoke(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return p.parseOutput(raw, pack)
}

// preparePrompt renders the review instruction plus the serialized pack.
func (p *HTTPProvider) preparePrompt(pack *Pack) (string, error) {
	packJSON, err := json.Marshal(pack)
	if err != nil {
		return "", fmt.Errorf("failed to serialize evidence pack: %w", err)
	}

	var b strings.Builder
	b.WriteString("You review spreadsheet column mappings for order intake.\n")
	b.WriteString("Given the column evidence below, map every listed field to the best column id, or null.\n")
	b.WriteString("Respond with a single JSON object matching this shape and nothing else:\n")
	b.WriteString(`{"mappings":[{"field":"...","selected_column_id":"col_N or null","confidence":0.0,"reasoning":"..."}],` +
		`"issues":[{"code":"...","severity":"info|warning|error","evidence":"..."}],` +
		`"overall_confidence":0.0,"processing_time_ms":0}` + "\n\n")
	b.WriteString("Evidence pack:\n")
	b.Write(packJSON)
	return b.String(), nil
}

// invoke calls the vendor chat/completion API and returns the model text.
func (p *HTTPProvider) invoke(ctx context.Context, prompt string) ([]byte, error) {
	apiKey, err := p.secrets.GetSecret(ctx, p.config.APIKeySecret)
	if err != nil {
		return nil, &ProviderError{Provider: p.config.Name, Message: "secret lookup failed", Cause: err}
	}

	var url string
	var body any
	headers := map[string]string{"Content-Type": "application/json"}

	switch p.config.Family {
	case "anthropic":
		url = strings.TrimSuffix(p.config.BaseURL, "/") + "/v1/messages"
		headers["x-api-key"] = apiKey
		headers["anthropic-version"] = "2023-06-01"
		body = map[string]any{
			"model":      p.config.Model,
			"max_tokens": 4096,
			"messages": []map[string]string{
				{"role": "user", "content": prompt},
			},
		}
	default: // openai and OpenAI-compatible generic endpoints
		url = strings.TrimSuffix(p.config.BaseURL, "/") + "/v1/chat/completions"
		headers["Authorization"] = "Bearer " + apiKey
		body = map[string]any{
			"model": p.config.Model,
			"messages": []map[string]string{
				{"role": "user", "content": prompt},
			},
			"response_format": map[string]string{"type": "json_object"},
		}
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, &ProviderError{Provider: p.config.Name, Message: "marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(reqBody)))
	if err != nil {
		return nil, &ProviderError{Provider: p.config.Name, Message: "create request", Cause: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &TimeoutError{Provider: p.config.Name, Timeout: p.config.Timeout}
		}
		return nil, &ProviderError{Provider: p.config.Name, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: p.config.Name, Message: "read response", Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProviderError{
			Provider:   p.config.Name,
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	return extractCompletionText(p.config.Family, respBody)
}

// parseOutput validates the model text against the contract.
func (p *HTTPProvider) parseOutput(raw []byte, pack *Pack) (*ProviderResult, error) {
	return ParseResult(p.config.Name, raw, pack)
}

// extractCompletionText unwraps the vendor envelope down to the model text.
func extractCompletionText(family string, respBody []byte) ([]byte, error) {
	switch family {
	case "anthropic":
		var env struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(respBody, &env); err != nil {
			return nil, fmt.Errorf("failed to decode anthropic response: %w", err)
		}
		for _, c := range env.Content {
			if c.Type == "text" {
				return []byte(c.Text), nil
			}
		}
		return nil, fmt.Errorf("anthropic response has no text content")
	default:
		var env struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := json.Unmarshal(respBody, &env); err != nil {
			return nil, fmt.Errorf("failed to decode completion response: %w", err)
		}
		if len(env.Choices) == 0 {
			return nil, fmt.Errorf("completion response has no choices")
		}
		return []byte(env.Choices[0].Message.Content), nil
	}
}
