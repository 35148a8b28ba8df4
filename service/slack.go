package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jimmy-lgtm/pd-sms/config"
)

// SlackService talks to the Slack Web API and the configured incoming webhook.
type SlackService struct {
	config     *config.SlackConfig
	httpClient *http.Client
}

func NewSlackService(cfg *config.SlackConfig) *SlackService {
	return &SlackService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type slackAPIResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type slackRepliesResponse struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Messages []struct {
		Text string `json:"text"`
		TS   string `json:"ts"`
		User string `json:"user"`
	} `json:"messages"`
}

// PostMessage posts text into a channel, threaded when threadTS is non-empty.
// Retries on 429 (honoring Retry-After) and 5xx, three attempts max.
func (s *SlackService) PostMessage(ctx context.Context, channel, text, threadTS string) error {
	payload := map[string]string{
		"channel": channel,
		"text":    text,
	}
	if threadTS != "" {
		payload["thread_ts"] = threadTS
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIURL+"/chat.postMessage", bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+s.config.BotToken)
		req.Header.Set("Content-Type", "application/json")

		status := 0
		headers := http.Header{}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			status = resp.StatusCode
			headers = resp.Header
			respBody, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				lastErr = readErr
			} else {
				var out slackAPIResponse
				if parseErr := json.Unmarshal(respBody, &out); parseErr != nil {
					lastErr = fmt.Errorf("failed to parse response: %w", parseErr)
				} else if status < 200 || status >= 300 {
					lastErr = fmt.Errorf("slack chat.postMessage http %d", status)
				} else if out.OK {
					return nil
				} else {
					code := strings.TrimSpace(out.Error)
					if code == "" {
						code = "unknown_error"
					}
					lastErr = fmt.Errorf("slack chat.postMessage failed: %s", code)
				}
			}
		}

		if attempt >= maxAttempts {
			break
		}
		if status == 0 {
			status = http.StatusBadGateway
		}
		wait, retryable := retryDelay(status, headers, attempt)
		if !retryable {
			break
		}
		if err := sleepWithContext(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

// GetThreadRoot returns the text of a thread's root message.
func (s *SlackService) GetThreadRoot(ctx context.Context, channel, threadTS string) (string, error) {
	endpoint := fmt.Sprintf("%s/conversations.replies?channel=%s&ts=%s&limit=1", s.config.APIURL, channel, threadTS)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.config.BotToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var result slackRepliesResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if !result.OK {
		return "", fmt.Errorf("slack conversations.replies failed: %s", result.Error)
	}
	if len(result.Messages) == 0 {
		return "", fmt.Errorf("thread %s has no root message", threadTS)
	}

	return result.Messages[0].Text, nil
}

// Notify posts text through the incoming webhook. No-op when no webhook is
// configured.
func (s *SlackService) Notify(ctx context.Context, text string) error {
	if s.config.WebhookURL == "" {
		return nil
	}

	jsonData, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook http %d", resp.StatusCode)
	}
	return nil
}

func retryDelay(status int, headers http.Header, attempt int) (time.Duration, bool) {
	switch {
	case status == http.StatusTooManyRequests:
		retryAfter := strings.TrimSpace(headers.Get("Retry-After"))
		if retryAfter == "" {
			return 1 * time.Second, true
		}
		secs, err := strconv.Atoi(retryAfter)
		if err != nil || secs <= 0 {
			return 1 * time.Second, true
		}
		return time.Duration(secs) * time.Second, true
	case status >= 500 && status <= 599:
		switch attempt {
		case 1:
			return 300 * time.Millisecond, true
		case 2:
			return 1 * time.Second, true
		default:
			return 2 * time.Second, true
		}
	default:
		return 0, false
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
