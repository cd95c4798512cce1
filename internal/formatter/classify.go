package formatter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alnah/speakerfmt/internal/apierr"
)

// classifyError maps OpenAI client errors to apierr sentinel errors.
// parent is the caller's context: its cancellation wins over everything else,
// while a deadline on the per-attempt context is a retryable timeout.
func classifyError(parent context.Context, err error) error {
	if err == nil {
		return nil
	}

	if parent.Err() != nil {
		return parent.Err()
	}

	// Check for typed API errors first (most reliable).
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, apiErr.Message, fmt.Sprint(apiErr.Code), apiErr.Type)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := string(reqErr.Body)
		if msg == "" && reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return classifyStatus(reqErr.HTTPStatusCode, msg, "", "")
	}

	// Per-attempt timeout.
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", apierr.ErrTransient)
	}

	// Connection resets, DNS failures, truncated bodies.
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return fmt.Errorf("%v: %w", err, apierr.ErrTransient)
	}

	return err
}

// classifyStatus maps an HTTP status and provider error details to a sentinel.
func classifyStatus(status int, msg, code, typ string) error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	lower := strings.ToLower(msg + " " + code + " " + typ)

	switch {
	case status == http.StatusTooManyRequests:
		// Quota exceeded should not be retried: it requires user action.
		if strings.Contains(lower, "quota") || strings.Contains(lower, "billing") {
			return fmt.Errorf("%s: %w", msg, apierr.ErrQuotaExceeded)
		}
		return fmt.Errorf("%s: %w", msg, apierr.ErrRateLimit)
	case status == http.StatusPaymentRequired:
		return fmt.Errorf("%s: %w", msg, apierr.ErrQuotaExceeded)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%s: %w", msg, apierr.ErrAuthFailed)
	case status == http.StatusRequestTimeout, status == http.StatusConflict, status >= http.StatusInternalServerError:
		return fmt.Errorf("%s: %w", msg, apierr.ErrTransient)
	case strings.Contains(lower, "content_policy") || strings.Contains(lower, "content_filter") ||
		strings.Contains(lower, "content management policy"):
		return fmt.Errorf("%s: %w", msg, apierr.ErrContentPolicy)
	case status >= http.StatusBadRequest:
		return fmt.Errorf("%s: %w", msg, apierr.ErrBadRequest)
	default:
		return fmt.Errorf("HTTP %d: %s: %w", status, msg, apierr.ErrTransient)
	}
}

// extractText returns the formatted text of a completion, or a classified error
// when the completion cannot be used as-is.
func extractText(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response: %w", apierr.ErrTransient)
	}

	choice := resp.Choices[0]
	switch choice.FinishReason {
	case openai.FinishReasonLength:
		return "", fmt.Errorf("model hit its output limit, use a smaller chunk size: %w", apierr.ErrTruncated)
	case openai.FinishReasonContentFilter:
		return "", fmt.Errorf("completion filtered: %w", apierr.ErrContentPolicy)
	}

	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty completion: %w", apierr.ErrTransient)
	}
	return text, nil
}
