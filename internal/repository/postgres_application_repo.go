package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmswl6310/volunteer-work/internal/model"
)

// PostgresApplicationRepo はPostgreSQLを使用した参加申請リポジトリ。
// 参加人数（posts.current_participants）を書き換えるのはこのリポジトリだけである。
type PostgresApplicationRepo struct {
	db *sql.DB
}

// NewPostgresApplicationRepo はPostgresApplicationRepoを生成する。
func NewPostgresApplicationRepo(db *sql.DB) *PostgresApplicationRepo {
	return &PostgresApplicationRepo{db: db}
}

func scanApplication(row rowScanner) (*model.Application, error) {
	app := &model.Application{}
	var status string
	if err := row.Scan(&app.ID, &app.PostID, &app.AccountID, &status, &app.CreatedAt, &app.UpdatedAt); err != nil {
		return nil, err
	}
	app.Status = model.ApplicationStatus(status)
	return app, nil
}

// FindByID は指定IDの申請を取得する。見つからない場合はnilを返す。
func (r *PostgresApplicationRepo) FindByID(ctx context.Context, id string) (*model.Application, error) {
	if !isUUID(id) {
		return nil, nil
	}
	app, err := scanApplication(r.db.QueryRowContext(ctx,
		`SELECT id, post_id, account_id, status, created_at, updated_at
		 FROM applications WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("申請の取得に失敗しました: %w", err)
	}
	return app, nil
}

// FindByPostAndAccount は投稿IDとアカウントIDで申請を検索する。見つからない場合はnilを返す。
func (r *PostgresApplicationRepo) FindByPostAndAccount(ctx context.Context, postID, accountID string) (*model.Application, error) {
	if !isUUID(postID) {
		return nil, nil
	}
	app, err := scanApplication(r.db.QueryRowContext(ctx,
		`SELECT id, post_id, account_id, status, created_at, updated_at
		 FROM applications WHERE post_id = $1 AND account_id = $2`,
		postID, accountID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("投稿とアカウントによる申請の検索に失敗しました: %w", err)
	}
	return app, nil
}

// Create は申請を作成する。参加人数は変更しない。
func (r *PostgresApplicationRepo) Create(ctx context.Context, app *model.Application) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO applications (id, post_id, account_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		app.ID, app.PostID, app.AccountID, string(app.Status), app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("申請の作成に失敗しました: %w", mapPQError(err))
	}
	return nil
}

// TransitionStatus はステータスをfromからtoへcompare-and-setで変更し、
// deltaに応じて同一トランザクション内で参加人数を増減する。
func (r *PostgresApplicationRepo) TransitionStatus(ctx context.Context, id string, from, to model.ApplicationStatus, delta int) (*model.Application, error) {
	if !isUUID(id) {
		return nil, ErrNotFound
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	app, err := scanApplication(tx.QueryRowContext(ctx,
		`UPDATE applications SET status = $3, updated_at = NOW()
		 WHERE id = $1 AND status = $2
		 RETURNING id, post_id, account_id, status, created_at, updated_at`,
		id, string(from), string(to),
	))
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return nil, fmt.Errorf("申請の存在確認に失敗しました: %w", err)
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, ErrStatusConflict
	}
	if err != nil {
		return nil, fmt.Errorf("申請ステータスの更新に失敗しました: %w", err)
	}

	switch {
	case delta > 0:
		// 定員未満のときだけ1枠確保する。0件なら満員としてロールバックする。
		result, err := tx.ExecContext(ctx,
			`UPDATE posts SET current_participants = current_participants + 1
			 WHERE id = $1 AND current_participants < max_participants`,
			app.PostID,
		)
		if err != nil {
			return nil, fmt.Errorf("参加人数の更新に失敗しました: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return nil, ErrCapacityExceeded
		}
	case delta < 0:
		if err := releaseSeat(ctx, tx, app.PostID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return app, nil
}

// Delete は申請を削除し、削除した行を返す。
// RETURNINGで得たステータスが参加人数に数えられるものであれば同一トランザクションで1枠解放する。
func (r *PostgresApplicationRepo) Delete(ctx context.Context, id string) (*model.Application, error) {
	if !isUUID(id) {
		return nil, ErrNotFound
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	app, err := scanApplication(tx.QueryRowContext(ctx,
		`DELETE FROM applications WHERE id = $1
		 RETURNING id, post_id, account_id, status, created_at, updated_at`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("申請の削除に失敗しました: %w", err)
	}

	if app.Status.IsCounted() {
		if err := releaseSeat(ctx, tx, app.PostID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return app, nil
}

// releaseSeat は参加人数を0を下限として1減らす。
func releaseSeat(ctx context.Context, tx *sql.Tx, postID string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE posts SET current_participants = GREATEST(current_participants - 1, 0) WHERE id = $1`,
		postID,
	)
	if err != nil {
		return fmt.Errorf("参加人数の解放に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ApplicationRepository = (*PostgresApplicationRepo)(nil)
