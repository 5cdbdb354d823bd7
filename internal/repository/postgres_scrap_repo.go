package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresScrapRepo はPostgreSQLを使用したスクラップリポジトリ。
type PostgresScrapRepo struct {
	db *sql.DB
}

// NewPostgresScrapRepo はPostgresScrapRepoを生成する。
func NewPostgresScrapRepo(db *sql.DB) *PostgresScrapRepo {
	return &PostgresScrapRepo{db: db}
}

// Toggle はスクラップを作成または削除し、posts.scrap_count を同一トランザクションで増減する。
func (r *PostgresScrapRepo) Toggle(ctx context.Context, postID, accountID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM scraps WHERE post_id = $1 AND account_id = $2`,
		postID, accountID,
	)
	if err != nil {
		return false, fmt.Errorf("スクラップの削除に失敗しました: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if deleted > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE posts SET scrap_count = GREATEST(scrap_count - 1, 0) WHERE id = $1`,
			postID,
		); err != nil {
			return false, fmt.Errorf("スクラップ数の更新に失敗しました: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return false, nil
	}

	result, err = tx.ExecContext(ctx,
		`INSERT INTO scraps (id, post_id, account_id, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (post_id, account_id) DO NOTHING`,
		uuid.New().String(), postID, accountID, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("スクラップの作成に失敗しました: %w", mapPQError(err))
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if inserted > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE posts SET scrap_count = scrap_count + 1 WHERE id = $1`,
			postID,
		); err != nil {
			return false, fmt.Errorf("スクラップ数の更新に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted > 0, nil
}

// compile-time interface check
var _ ScrapRepository = (*PostgresScrapRepo)(nil)
