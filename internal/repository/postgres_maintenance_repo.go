package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresMaintenanceRepo はPostgreSQLを使用したメンテナンスジョブ用リポジトリ。
type PostgresMaintenanceRepo struct {
	db *sql.DB
}

// NewPostgresMaintenanceRepo はPostgresMaintenanceRepoを生成する。
func NewPostgresMaintenanceRepo(db *sql.DB) *PostgresMaintenanceRepo {
	return &PostgresMaintenanceRepo{db: db}
}

// ReconcileOccupancy は参加人数が承認済み申請数と食い違う投稿を補正する。
// 候補の抽出はロックなしで行い、補正は投稿ごとに行ロックを取ってから数え直す。
func (r *PostgresMaintenanceRepo) ReconcileOccupancy(ctx context.Context) ([]OccupancyCorrection, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.id
		 FROM posts p
		 LEFT JOIN applications a
		        ON a.post_id = p.id AND a.status IN ('approved', 'confirmed')
		 GROUP BY p.id, p.current_participants, p.max_participants
		 HAVING p.current_participants <> LEAST(COUNT(a.id), p.max_participants)`,
	)
	if err != nil {
		return nil, fmt.Errorf("参加人数の不整合候補の取得に失敗しました: %w", err)
	}
	var candidates []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("不整合候補のスキャンに失敗しました: %w", err)
		}
		candidates = append(candidates, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("不整合候補の走査に失敗しました: %w", err)
	}
	rows.Close()

	var corrections []OccupancyCorrection
	for _, id := range candidates {
		c, err := r.reconcilePost(ctx, id)
		if err != nil {
			return corrections, err
		}
		if c != nil {
			corrections = append(corrections, *c)
		}
	}
	return corrections, nil
}

// reconcilePost は1投稿の参加人数を行ロック下で数え直す。補正不要ならnilを返す。
func (r *PostgresMaintenanceRepo) reconcilePost(ctx context.Context, postID string) (*OccupancyCorrection, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current, maxParticipants int
	err = tx.QueryRowContext(ctx,
		`SELECT current_participants, max_participants FROM posts WHERE id = $1 FOR UPDATE`,
		postID,
	).Scan(&current, &maxParticipants)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("投稿のロックに失敗しました: %w", err)
	}

	var counted int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM applications WHERE post_id = $1 AND status IN ('approved', 'confirmed')`,
		postID,
	).Scan(&counted); err != nil {
		return nil, fmt.Errorf("承認済み申請数の集計に失敗しました: %w", err)
	}

	actual := min(counted, maxParticipants)
	if actual == current {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE posts SET current_participants = $2 WHERE id = $1`,
		postID, actual,
	); err != nil {
		return nil, fmt.Errorf("参加人数の補正に失敗しました: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &OccupancyCorrection{PostID: postID, Previous: current, Current: actual}, nil
}

// CloseExpiredRecruitment は締切日が今日より前の募集中投稿を募集終了にする。
// 日付の比較はlocの暦日で行う。
func (r *PostgresMaintenanceRepo) CloseExpiredRecruitment(ctx context.Context, now time.Time, loc *time.Location) (int64, error) {
	if loc == nil {
		loc = time.UTC
	}
	today := now.In(loc).Format(time.DateOnly)
	result, err := r.db.ExecContext(ctx,
		`UPDATE posts SET is_recruiting = FALSE, updated_at = NOW()
		 WHERE is_recruiting = TRUE
		   AND due_date IS NOT NULL
		   AND (due_date AT TIME ZONE $2)::date < $1::date`,
		today, loc.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("募集終了処理に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// compile-time interface check
var _ MaintenanceRepository = (*PostgresMaintenanceRepo)(nil)
