package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"snapquiz-service/internal/domain"
	"snapquiz-service/internal/pkg/logger"
)

// Options configures the remote model client.
type Options struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client talks to the OpenAI Responses API. Every call is a single request;
// failures are one-shot decisions made at the call site, never retried.
type Client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(opts Options, log *logger.Logger) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("missing openai api key")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		log:        log.With("service", "GenAIClient"),
		baseURL:    baseURL,
		apiKey:     opts.APIKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}, nil
}

type responsesRequest struct {
	Model string `json:"model"`

	Input []responsesInput `json:"input"`

	Text struct {
		Format map[string]any `json:"format,omitempty"`
	} `json:"text,omitempty"`

	Temperature float64 `json:"temperature,omitempty"`
}

type responsesInput struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
}

func (c *Client) do(ctx context.Context, path string, body any, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("openai http %d: %s", resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("openai decode error: %w", err)
	}
	return nil
}

func extractOutputText(resp responsesResponse) string {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, content := range item.Content {
				if content.Type == "output_text" && content.Text != "" {
					out.WriteString(content.Text)
				}
			}
		}
	}
	return out.String()
}

// quizPayload is the model-facing quiz shape, minus the locally assigned IDs
// and timestamp.
type quizPayload struct {
	Title string `json:"title"`
	Items []struct {
		Question        string `json:"question"`
		Answer          string `json:"answer"`
		OriginalContext string `json:"originalContext"`
	} `json:"items"`
}

// GenerateQuizFromImage sends the photo to the model with a fixed instruction
// and a strict JSON schema, then assigns IDs and the creation timestamp
// locally. An empty result is a generation failure, not a valid empty quiz.
func (c *Client) GenerateQuizFromImage(ctx context.Context, image []byte, mime string) (domain.QuizSet, error) {
	if len(image) == 0 {
		return domain.QuizSet{}, fmt.Errorf("empty image")
	}
	if mime == "" {
		mime = "image/jpeg"
	}
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)

	req := responsesRequest{
		Model: c.model,
		Input: []responsesInput{
			{Role: "system", Content: quizSystemPrompt},
			{Role: "user", Content: []map[string]any{
				{"type": "input_text", "text": quizUserPrompt},
				{"type": "input_image", "image_url": dataURL},
			}},
		},
		Temperature: 0.2,
	}
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   "quiz_set",
		"schema": quizSchema(),
		"strict": true,
	}

	var resp responsesResponse
	if err := c.do(ctx, "/v1/responses", req, &resp); err != nil {
		return domain.QuizSet{}, err
	}
	if resp.Refusal != "" {
		return domain.QuizSet{}, fmt.Errorf("model refused: %s", resp.Refusal)
	}

	text := extractOutputText(resp)
	if strings.TrimSpace(text) == "" {
		return domain.QuizSet{}, domain.ErrNoModelOutput
	}

	var payload quizPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return domain.QuizSet{}, fmt.Errorf("parse quiz payload: %w", err)
	}
	if len(payload.Items) == 0 {
		return domain.QuizSet{}, domain.ErrEmptyQuizSet
	}

	millis := c.now().UnixMilli()
	stamp := strconv.FormatInt(millis, 10)
	set := domain.QuizSet{
		ID:        "set-" + stamp,
		Title:     payload.Title,
		CreatedAt: millis,
		Items:     make([]domain.QuizItem, len(payload.Items)),
	}
	for i, item := range payload.Items {
		set.Items[i] = domain.QuizItem{
			ID:              "q-" + stamp + "-" + strconv.Itoa(i),
			Question:        item.Question,
			Answer:          item.Answer,
			OriginalContext: item.OriginalContext,
		}
	}
	return set, nil
}

// GenerateHint asks the model for a level-tiered hint. Every failure path
// degrades to the fixed fallback hint; a broken hint call never blocks quiz
// progress.
func (c *Client) GenerateHint(ctx context.Context, question, answer string, level domain.HintLevel, sourceContext string) (string, error) {
	if !level.Valid() {
		return "", domain.ErrHintLevelInvalid
	}

	req := responsesRequest{
		Model: c.model,
		Input: []responsesInput{
			{Role: "system", Content: hintSystemPrompt},
			{Role: "user", Content: hintUserPrompt(question, answer, level, sourceContext)},
		},
		Temperature: 0.4,
	}

	var resp responsesResponse
	if err := c.do(ctx, "/v1/responses", req, &resp); err != nil {
		c.log.Warn("hint call failed, serving fallback", "level", int(level), "error", err)
		return domain.FallbackHint, nil
	}

	text := strings.TrimSpace(extractOutputText(resp))
	if text == "" || strings.EqualFold(text, strings.TrimSpace(answer)) {
		c.log.Warn("hint output unusable, serving fallback", "level", int(level))
		return domain.FallbackHint, nil
	}
	return text, nil
}
