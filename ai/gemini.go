package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	defaultGeminiModel   = "gemini-1.5-flash"
	defaultGeminiTimeout = 30 * time.Second
)

// GeminiConfig holds the connection settings for the Gemini API.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Gemini calls the generateContent endpoint of the Gemini REST API.
// It implements Provider. Safe for concurrent use.
type Gemini struct {
	config     GeminiConfig
	httpClient *http.Client
}

func NewGemini(config GeminiConfig) *Gemini {
	if config.Model == "" {
		config.Model = defaultGeminiModel
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultGeminiBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaultGeminiTimeout
	}
	return &Gemini{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends the prompt and returns the first candidate's text.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.config.BaseURL, g.config.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.config.APIKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	var decoded geminiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("gemini response unreadable (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if decoded.Error != nil {
			return "", fmt.Errorf("gemini error %d: %s", decoded.Error.Code, decoded.Error.Message)
		}
		return "", fmt.Errorf("gemini returned status %d", resp.StatusCode)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	return strings.TrimSpace(decoded.Candidates[0].Content.Parts[0].Text), nil
}
