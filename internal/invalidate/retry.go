package invalidate

import (
	"context"
	"net/http"
	"time"
)

// deliveryResult はWebhook応答のステータスコードによる分類。
type deliveryResult int

const (
	// deliveryOK は2xxで受理された。
	deliveryOK deliveryResult = iota
	// deliveryRetry は429/5xxで、間を置いて再送する。
	deliveryRetry
	// deliveryGiveUp はそれ以外で、再送しても結果が変わらない。
	deliveryGiveUp
)

const (
	maxDeliveryAttempts = 3
	initialRetryDelay   = 200 * time.Millisecond
	maxRetryDelay       = time.Second
)

func classifyStatus(statusCode int) deliveryResult {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return deliveryOK
	case statusCode == http.StatusTooManyRequests, statusCode >= 500:
		return deliveryRetry
	default:
		return deliveryGiveUp
	}
}

// retryDelay は失敗回数に応じた待ち時間。初回200ms、2倍ずつ、最大1秒。
func retryDelay(failures int) time.Duration {
	delay := initialRetryDelay
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay > maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// sleepContext はdだけ待つ。ctxが先に終われば false を返す。
func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
