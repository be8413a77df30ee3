package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/passman/internal/model"
	"github.com/hitoshi/passman/internal/security"
)

const (
	// maxAttempts は1通知あたりの最大送信試行回数。
	maxAttempts = 3
	// initialRetryDelay は再送の初回遅延。試行ごとに2倍になる。
	initialRetryDelay = 1 * time.Second
)

// WebhookDispatcher は管理者が設定したWebhook URLへ通知をPOSTする実装。
// URLは設定読み込み時にSSRF検証され、送信にはsafeurlのSSRF防止クライアントを使用する。
type WebhookDispatcher struct {
	client     *http.Client
	webhookURL string
	logger     *slog.Logger
}

// overduePayload はWebhookに送信するJSONボディ。
type overduePayload struct {
	Event            string    `json:"event"`
	PassID           string    `json:"pass_id"`
	StudentID        string    `json:"student_id"`
	IssuedBy         string    `json:"issued_by"`
	Destination      string    `json:"destination"`
	IssuedAt         time.Time `json:"issued_at"`
	ExpectedReturnAt time.Time `json:"expected_return_at"`
	Period           *int      `json:"period"`
}

// NewWebhookDispatcher はWebhookDispatcherを生成する。
// webhookURLの静的検証に失敗した場合はエラーを返す。
func NewWebhookDispatcher(
	guard security.SSRFGuardService,
	webhookURL string,
	timeout time.Duration,
	logger *slog.Logger,
) (*WebhookDispatcher, error) {
	if err := guard.ValidateURL(webhookURL); err != nil {
		return nil, fmt.Errorf("webhook URLの検証に失敗しました: %w", err)
	}
	return &WebhookDispatcher{
		client:     guard.NewSafeClient(timeout),
		webhookURL: webhookURL,
		logger:     logger,
	}, nil
}

// NotifyOverdue は期限超過通知をWebhookへPOSTする。
// 失敗時は指数バックオフで再送し、最大試行回数を超えたらエラーを返す。
// 4xx応答は設定ミスの可能性が高いため再送しない。
func (d *WebhookDispatcher) NotifyOverdue(ctx context.Context, pass *model.Pass) error {
	payload := overduePayload{
		Event:            "pass_overdue",
		PassID:           pass.ID,
		StudentID:        pass.StudentID,
		IssuedBy:         pass.IssuedBy,
		Destination:      pass.Destination,
		IssuedAt:         pass.IssuedAt,
		ExpectedReturnAt: pass.ExpectedReturnAt,
		Period:           pass.Period,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("通知ペイロードの生成に失敗しました: %w", err)
	}

	delay := initialRetryDelay
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = d.post(ctx, body)
		if lastErr == nil {
			return nil
		}
		if permanent, ok := lastErr.(*permanentError); ok {
			return fmt.Errorf("通知の送信が拒否されました: %w", permanent)
		}

		d.logger.Warn("通知の送信に失敗しました。再送します",
			slog.String("pass_id", pass.ID),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()),
		)

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("通知の送信が%d回失敗しました: %w", maxAttempts, lastErr)
}

// permanentError は再送しても成功しない送信エラーを表す。
type permanentError struct {
	statusCode int
}

func (e *permanentError) Error() string {
	return fmt.Sprintf("webhook returned status %d", e.statusCode)
}

// post は1回分の送信を行う。
func (d *WebhookDispatcher) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("リクエストの生成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("リクエストの送信に失敗しました: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return &permanentError{statusCode: resp.StatusCode}
	default:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
}
