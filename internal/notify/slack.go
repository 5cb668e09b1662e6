package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// terminalStatusError 4xx 응답은 재시도해도 소용없다
type terminalStatusError struct {
	statusCode int
}

func (e *terminalStatusError) Error() string {
	return fmt.Sprintf("slack webhook returned status %d", e.statusCode)
}

// SlackNotifier Slack incoming webhook 알림
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
	retry      retryPolicy
	logger     *zap.Logger
}

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	logger, _ := zap.NewProduction()

	policy := defaultRetryPolicy()
	policy.retryable = func(err error) bool {
		if _, terminal := err.(*terminalStatusError); terminal {
			return false
		}
		return true
	}

	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		retry:      policy,
		logger:     logger,
	}
}

// Notify 이벤트를 Slack 메시지로 전송
func (n *SlackNotifier) Notify(ctx context.Context, event Event) error {
	text := fmt.Sprintf("[%s] %s: %s", event.Severity, event.Type, event.Message)

	payload := map[string]interface{}{
		"text": text,
	}
	if len(event.Evidence) > 0 {
		evidence, err := json.MarshalIndent(event.Evidence, "", "  ")
		if err == nil {
			payload["text"] = fmt.Sprintf("%s\n```%s```", text, evidence)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	err = n.retry.do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build slack request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send slack notification: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return &terminalStatusError{statusCode: resp.StatusCode}
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
		}

		return nil
	})

	if err != nil {
		n.logger.Warn("Slack notification failed",
			zap.String("eventType", event.Type),
			zap.Error(err))
		return err
	}

	return nil
}
