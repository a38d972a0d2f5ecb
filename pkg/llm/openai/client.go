package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/user/thinkstream/pkg/llm"
)

// Client implements llm.Provider for Responses-API compatible endpoints.
type Client struct {
	config     *llm.Config
	httpClient *http.Client
	retry      *llm.RetryPolicy
}

// New creates a new Responses-API client with the given configuration.
func New(config *llm.Config) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = 120 * time.Second

	retry := llm.DefaultRetryPolicy()
	if config.RetryAttempts > 0 {
		retry.MaxAttempts = config.RetryAttempts
	}
	return &Client{
		config: config,
		// No overall timeout: reasoning streams can legitimately run for minutes.
		httpClient: &http.Client{Transport: transport},
		retry:      retry,
	}
}

// responsesRequest is the Responses API request body.
type responsesRequest struct {
	Model           string         `json:"model"`
	Input           []inputMessage `json:"input"`
	Tools           []any          `json:"tools,omitempty"`
	Reasoning       *reasoning     `json:"reasoning,omitempty"`
	MaxOutputTokens int            `json:"max_output_tokens,omitempty"`
	Stream          bool           `json:"stream"`
}

type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type reasoning struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

type functionTool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type hostedTool struct {
	Type string `json:"type"`
}

// hostedToolTypes maps hosted tool names to their upstream tool type.
var hostedToolTypes = map[string]string{
	"web_search": "web_search_preview",
}

func buildRequest(req llm.Request, maxOutput int) responsesRequest {
	body := responsesRequest{
		Model:  req.Model,
		Input:  make([]inputMessage, 0, len(req.Messages)),
		Stream: true,
	}
	for _, m := range req.Messages {
		role := string(m.Role)
		if m.Role == llm.RoleSystem {
			role = "developer"
		}
		body.Input = append(body.Input, inputMessage{Role: role, Content: m.Content})
	}
	for _, t := range req.Tools {
		switch t.Kind {
		case llm.ToolHosted:
			typ, ok := hostedToolTypes[t.Name]
			if !ok {
				slog.Warn("unknown hosted tool dropped from request", "tool", t.Name)
				continue
			}
			body.Tools = append(body.Tools, hostedTool{Type: typ})
		default:
			params := t.Parameters
			if len(params) == 0 {
				params = json.RawMessage(`{"type":"object","properties":{}}`)
			}
			body.Tools = append(body.Tools, functionTool{
				Type:        "function",
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			})
		}
	}
	if req.Effort != "" {
		body.Reasoning = &reasoning{Effort: string(req.Effort), Summary: "auto"}
	}
	body.MaxOutputTokens = maxOutput
	if req.MaxOutputTokens > 0 {
		body.MaxOutputTokens = req.MaxOutputTokens
	}
	return body
}

// Stream opens a streaming Responses request. Failures before the first frame
// are retried according to the client's retry policy.
func (c *Client) Stream(ctx context.Context, req llm.Request) (llm.FrameStream, error) {
	body, err := json.Marshal(buildRequest(req, c.config.MaxOutputTokens))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/responses"

	var resp *http.Response
	err = c.retry.Execute(ctx, func() error {
		r, err := c.open(ctx, url, body)
		if err != nil {
			slog.Debug("stream open failed", "model", req.Model, "error", err)
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &frameStream{decoder: ssestream.NewDecoder(resp)}, nil
}

func (c *Client) open(ctx context.Context, url string, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		return nil, &llm.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return resp, nil
}

// frameStream adapts an SSE decoder to llm.FrameStream.
type frameStream struct {
	decoder ssestream.Decoder
	current llm.Frame
}

func (s *frameStream) Next() bool {
	if s.decoder == nil || !s.decoder.Next() {
		return false
	}
	ev := s.decoder.Event()
	s.current = llm.Frame{Type: ev.Type, Data: ev.Data}
	return true
}

func (s *frameStream) Frame() llm.Frame { return s.current }

func (s *frameStream) Err() error {
	if s.decoder == nil {
		return nil
	}
	if err := s.decoder.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return nil
}

func (s *frameStream) Close() error {
	if s.decoder == nil {
		return nil
	}
	return s.decoder.Close()
}

// Model is a model entry returned by ListModels.
type Model struct {
	ID      string
	Created time.Time
	OwnedBy string
}

// ListModels returns the models visible to the configured API key.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	client := openai.NewClient(
		option.WithAPIKey(c.config.APIKey),
		option.WithBaseURL(strings.TrimRight(c.config.BaseURL, "/")+"/"),
		option.WithHTTPClient(c.httpClient),
	)
	page, err := client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}

	models := make([]Model, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, Model{
			ID:      m.ID,
			Created: time.Unix(m.Created, 0),
			OwnedBy: m.OwnedBy,
		})
	}
	return models, nil
}
