package dubbing

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL     = "http://127.0.0.1:3001"
	defaultHTTPTimeout = 5 * time.Minute
	// DefaultSampleRate is the rate of the PCM the collaborator returns.
	DefaultSampleRate = 24000
)

// Client calls the dubbing collaborator's HTTP API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the collaborator base URL.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		base = strings.TrimSpace(base)
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewClient constructs a collaborator client. apiKey may be empty when the
// collaborator holds its own credentials.
func NewClient(apiKey string, opts ...Option) *Client {
	client := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Speaker is one voice detected in the source video.
type Speaker struct {
	ID     string `json:"id"`
	Gender string `json:"gender"`
	Age    string `json:"age"`
}

// Analysis is the translated, speaker-attributed script.
type Analysis struct {
	Transcript string    `json:"transcript"`
	Speakers   []Speaker `json:"speakers"`
}

type analyzeRequest struct {
	VideoData          string `json:"videoData"`
	MIMEType           string `json:"mimeType"`
	TargetLanguageCode string `json:"targetLanguageCode"`
}

type generateRequest struct {
	Analysis Analysis `json:"analysis"`
}

type generateResponse struct {
	AudioBase64 string `json:"audioBase64"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// AnalyzeScript sends the video to the collaborator and returns the
// translated script for targetLanguage (ISO 639-1).
func (c *Client) AnalyzeScript(ctx context.Context, video []byte, mimeType, targetLanguage string) (Analysis, error) {
	var empty Analysis
	if len(video) == 0 {
		return empty, errors.New("dubbing analyze: video required")
	}
	if strings.TrimSpace(targetLanguage) == "" {
		return empty, errors.New("dubbing analyze: target language required")
	}
	payload := analyzeRequest{
		VideoData:          base64.StdEncoding.EncodeToString(video),
		MIMEType:           strings.TrimSpace(mimeType),
		TargetLanguageCode: targetLanguage,
	}
	var analysis Analysis
	if err := c.post(ctx, "/api/analyze-script", payload, &analysis); err != nil {
		return empty, fmt.Errorf("dubbing analyze: %w", err)
	}
	analysis.Transcript = strings.TrimSpace(analysis.Transcript)
	if analysis.Transcript == "" {
		return empty, errors.New("dubbing analyze: empty transcript")
	}
	for i := range analysis.Speakers {
		analysis.Speakers[i] = normalizeSpeaker(analysis.Speakers[i])
	}
	return analysis, nil
}

// GenerateAudio synthesizes the dub for analysis and returns raw PCM.
func (c *Client) GenerateAudio(ctx context.Context, analysis Analysis) ([]byte, error) {
	if strings.TrimSpace(analysis.Transcript) == "" {
		return nil, errors.New("dubbing generate: transcript required")
	}
	var resp generateResponse
	if err := c.post(ctx, "/api/generate-audio", generateRequest{Analysis: analysis}, &resp); err != nil {
		return nil, fmt.Errorf("dubbing generate: %w", err)
	}
	if strings.TrimSpace(resp.AudioBase64) == "" {
		return nil, errors.New("dubbing generate: no audio returned")
	}
	pcm, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("dubbing generate: decode audio: %w", err)
	}
	return pcm, nil
}

// Health reports whether the collaborator answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	endpoint, err := url.JoinPath(c.baseURL, "/health")
	if err != nil {
		return fmt.Errorf("dubbing health: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dubbing health: request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dubbing health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dubbing health: http %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("build url: %w", err)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil && strings.TrimSpace(apiErr.Error) != "" {
			return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(apiErr.Error))
		}
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func normalizeSpeaker(s Speaker) Speaker {
	s.ID = strings.TrimSpace(s.ID)
	if strings.Contains(strings.ToUpper(s.Gender), "FEMALE") {
		s.Gender = "FEMALE"
	} else {
		s.Gender = "MALE"
	}
	if strings.Contains(strings.ToUpper(s.Age), "CHILD") {
		s.Age = "CHILD"
	} else {
		s.Age = "ADULT"
	}
	return s
}
