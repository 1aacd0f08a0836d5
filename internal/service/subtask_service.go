package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"smart-todos/internal/apierr"
)

const (
	subtaskModel       = "gpt-3.5-turbo"
	subtaskMaxTokens   = 300
	subtaskTemperature = 0.7
	subtaskSystem      = "You are a helpful assistant that breaks down tasks into actionable subtasks."

	defaultAITimeout = 30 * time.Second
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// SubtaskService asks an OpenAI-compatible chat endpoint to split a todo into
// subtasks. The caller supplies the provider API key.
type SubtaskService struct {
	baseURL string
	timeout time.Duration
}

func NewSubtaskService(baseURL string, timeout time.Duration) *SubtaskService {
	if timeout <= 0 {
		timeout = defaultAITimeout
	}
	return &SubtaskService{baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}
}

// Generate returns the provider's numbered list of subtasks.
func (s *SubtaskService) Generate(ctx context.Context, apiKey, title, description string) (string, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return "", ErrAPIKeyRequired
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return "", invalid("title", "title is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	agent := fiber.Post(s.baseURL + "/chat/completions")
	agent.Set(fiber.HeaderAuthorization, "Bearer "+apiKey)
	agent.Timeout(timeout)
	agent.JSON(chatRequest{
		Model: subtaskModel,
		Messages: []chatMessage{
			{Role: "system", Content: subtaskSystem},
			{Role: "user", Content: subtaskPrompt(title, description)},
		},
		MaxTokens:   subtaskMaxTokens,
		Temperature: subtaskTemperature,
	})

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return "", &AIServiceError{Err: apierr.Normalize(errors.Join(errs...))}
	}
	if status != http.StatusOK {
		failure := apierr.FromResponse(status, body)
		switch failure.Status {
		case http.StatusUnauthorized:
			return "", ErrInvalidAPIKey
		case http.StatusTooManyRequests:
			return "", ErrAIRateLimited
		default:
			return "", &AIServiceError{Err: failure}
		}
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &AIServiceError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return "", &AIServiceError{Err: errors.New("no choices in response")}
	}
	subtasks := strings.TrimSpace(resp.Choices[0].Message.Content)
	if subtasks == "" {
		return "", &AIServiceError{Err: errors.New("empty response")}
	}
	return subtasks, nil
}

func subtaskPrompt(title, description string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", title)
	if d := strings.TrimSpace(description); d != "" {
		fmt.Fprintf(&b, "Description: %s\n", d)
	}
	b.WriteString("\nBreak this task down into 3-5 specific, actionable subtasks. Format as a numbered list:\n")
	b.WriteString("1. First subtask\n2. Second subtask\netc.\n\n")
	b.WriteString("Keep subtasks concise and specific.")
	return b.String()
}
