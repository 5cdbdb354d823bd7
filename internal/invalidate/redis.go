package invalidate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Publisher はRedisのPUBLISHを行うクライアント。*redis.Clientが満たす。
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisNotifier は無効化パスをRedisチャネルへpublishする。
// 複数のフロントエンドインスタンスが購読する構成で使う。
type RedisNotifier struct {
	pub     Publisher
	channel string
	timeout time.Duration
	logger  *slog.Logger

	wg sync.WaitGroup
}

// NewRedisClient はREDIS_URL形式の接続文字列からクライアントを生成する。
func NewRedisClient(rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

// NewRedisNotifier はRedisNotifierを生成する。
func NewRedisNotifier(pub Publisher, channel string, logger *slog.Logger) *RedisNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisNotifier{
		pub:     pub,
		channel: channel,
		timeout: 2 * time.Second,
		logger:  logger,
	}
}

// Invalidate はpublishをゴルーチンで1回だけ試み、すぐに戻る。
func (n *RedisNotifier) Invalidate(paths ...string) {
	if len(paths) == 0 {
		return
	}
	msg, err := encode(paths)
	if err != nil {
		n.logger.Warn("cache invalidation encode failed", slog.String("error", err.Error()))
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.pub.Publish(ctx, n.channel, msg).Err(); err != nil {
			n.logger.Warn("cache invalidation publish failed",
				slog.String("channel", n.channel),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Wait は送信中のpublishがすべて終わるまで待つ。
func (n *RedisNotifier) Wait() {
	n.wg.Wait()
}
