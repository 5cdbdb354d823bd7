// Package maintenance は定期メンテナンスジョブを提供する。
// 参加人数の整合性補正と、締切日を過ぎた投稿の募集終了を行う。
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dmswl6310/volunteer-work/internal/invalidate"
	"github.com/dmswl6310/volunteer-work/internal/metrics"
	"github.com/dmswl6310/volunteer-work/internal/repository"
)

// ジョブ名。メトリクスのラベルとログに使う。
const (
	JobReconcile = "reconcile_occupancy"
	JobExpire    = "expire_recruitment"
)

// DefaultSchedule は毎日4時に実行するcron式。
const DefaultSchedule = "0 4 * * *"

// Job は定期メンテナンスジョブ。冪等なので何度実行してもよい。
type Job struct {
	repo     repository.MaintenanceRepository
	notifier invalidate.Notifier
	metrics  metrics.Recorder
	logger   *slog.Logger
	loc      *time.Location
	now      func() time.Time
}

// NewJob は新しいJobを生成する。locは締切日の暦日判定に使うタイムゾーン。
func NewJob(repo repository.MaintenanceRepository, notifier invalidate.Notifier, rec metrics.Recorder, logger *slog.Logger, loc *time.Location) *Job {
	if notifier == nil {
		notifier = invalidate.Nop{}
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Job{
		repo:     repo,
		notifier: notifier,
		metrics:  rec,
		logger:   logger,
		loc:      loc,
		now:      time.Now,
	}
}

// Run は全ジョブを順に実行する。一方が失敗しても他方は実行する。
func (j *Job) Run(ctx context.Context) error {
	return errors.Join(
		j.ReconcileOccupancy(ctx),
		j.ExpireRecruitment(ctx),
	)
}

// ReconcileOccupancy は参加人数を承認済み申請数に合わせて補正する。
func (j *Job) ReconcileOccupancy(ctx context.Context) error {
	start := time.Now()

	corrections, err := j.repo.ReconcileOccupancy(ctx)
	if err != nil {
		j.logger.Error("参加人数の整合性補正に失敗しました",
			slog.String("job", JobReconcile),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("参加人数の整合性補正に失敗: %w", err)
	}

	for _, c := range corrections {
		j.logger.Warn("参加人数を補正しました",
			slog.String("post_id", c.PostID),
			slog.Int("previous", c.Previous),
			slog.Int("current", c.Current),
		)
		j.notifier.Invalidate(invalidate.PostPaths(c.PostID)...)
	}
	j.metrics.RecordOccupancyCorrections(len(corrections))

	duration := time.Since(start)
	j.metrics.RecordMaintenanceRun(JobReconcile, duration)
	j.logger.Info("参加人数の整合性補正が完了しました",
		slog.Int("corrected_count", len(corrections)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}

// ExpireRecruitment は締切日を過ぎた募集中の投稿を募集終了にする。
func (j *Job) ExpireRecruitment(ctx context.Context) error {
	start := time.Now()

	closed, err := j.repo.CloseExpiredRecruitment(ctx, j.now(), j.loc)
	if err != nil {
		j.logger.Error("募集終了処理に失敗しました",
			slog.String("job", JobExpire),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("募集終了処理に失敗: %w", err)
	}
	if closed > 0 {
		j.notifier.Invalidate("/board")
	}

	duration := time.Since(start)
	j.metrics.RecordMaintenanceRun(JobExpire, duration)
	j.logger.Info("募集終了処理が完了しました",
		slog.Int64("closed_count", closed),
		slog.String("timezone", j.loc.String()),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回実行した後、scheduleのcron式に従って定期実行する。
// ctxがキャンセルされると実行中のジョブの完了を待って戻る。
func (j *Job) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	c := cron.New(cron.WithLocation(j.loc))
	if _, err := c.AddFunc(schedule, func() { j.runLogged(ctx) }); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", schedule, err)
	}

	j.runLogged(ctx)

	c.Start()
	j.logger.Info("メンテナンスジョブのスケジュールを開始しました",
		slog.String("schedule", schedule),
	)

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (j *Job) runLogged(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := j.Run(ctx); err != nil {
		j.logger.Error("メンテナンスジョブが失敗しました", slog.String("error", err.Error()))
	}
}
