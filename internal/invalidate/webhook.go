package invalidate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	defaultWebhookTimeout = 5 * time.Second
	secretHeader          = "X-Revalidate-Secret"
)

// WebhookNotifier はフロントエンドの再検証エンドポイントへパスをPOSTする。
type WebhookNotifier struct {
	url     string
	secret  string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger

	wg sync.WaitGroup
}

// NewWebhookNotifier はWebhookNotifierを生成する。
// clientは内部ネットワークへ到達できないもの（security.URLGuard.NewSafeClient）を渡す。
func NewWebhookNotifier(url, secret string, client *http.Client, logger *slog.Logger) *WebhookNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookNotifier{
		url:     url,
		secret:  secret,
		client:  client,
		timeout: defaultWebhookTimeout,
		logger:  logger,
	}
}

// Invalidate は送信をゴルーチンで行い、すぐに戻る。
func (n *WebhookNotifier) Invalidate(paths ...string) {
	if len(paths) == 0 {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.deliver(ctx, paths); err != nil {
			n.logger.Warn("cache invalidation webhook failed",
				slog.String("error", err.Error()),
				slog.Any("paths", paths),
			)
		}
	}()
}

// Wait は送信中のリクエストがすべて終わるまで待つ。シャットダウン時とテストで使う。
func (n *WebhookNotifier) Wait() {
	n.wg.Wait()
}

// deliver は429/5xxと通信エラーに限り、ctxの期限内で再送する。
func (n *WebhookNotifier) deliver(ctx context.Context, paths []string) error {
	var err error
	for attempt := 1; attempt <= maxDeliveryAttempts; attempt++ {
		var result deliveryResult
		result, err = n.send(ctx, paths)
		if result != deliveryRetry {
			return err
		}
		if attempt == maxDeliveryAttempts || !sleepContext(ctx, retryDelay(attempt)) {
			break
		}
	}
	return fmt.Errorf("gave up after retries: %w", err)
}

func (n *WebhookNotifier) send(ctx context.Context, paths []string) (deliveryResult, error) {
	body, err := encode(paths)
	if err != nil {
		return deliveryGiveUp, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return deliveryGiveUp, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret != "" {
		req.Header.Set(secretHeader, n.secret)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return deliveryRetry, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	result := classifyStatus(resp.StatusCode)
	if result != deliveryOK {
		return result, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return deliveryOK, nil
}
