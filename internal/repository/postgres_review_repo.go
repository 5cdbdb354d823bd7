package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmswl6310/volunteer-work/internal/model"
)

// PostgresReviewRepo はPostgreSQLを使用した後記リポジトリ。
type PostgresReviewRepo struct {
	db *sql.DB
}

// NewPostgresReviewRepo はPostgresReviewRepoを生成する。
func NewPostgresReviewRepo(db *sql.DB) *PostgresReviewRepo {
	return &PostgresReviewRepo{db: db}
}

// FindByPostAndAccount は投稿IDとアカウントIDで後記を検索する。見つからない場合はnilを返す。
func (r *PostgresReviewRepo) FindByPostAndAccount(ctx context.Context, postID, accountID string) (*model.Review, error) {
	if !isUUID(postID) {
		return nil, nil
	}
	rv := &model.Review{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, post_id, account_id, content, created_at
		 FROM reviews WHERE post_id = $1 AND account_id = $2`,
		postID, accountID,
	).Scan(&rv.ID, &rv.PostID, &rv.AccountID, &rv.Content, &rv.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("後記の検索に失敗しました: %w", err)
	}
	return rv, nil
}

// Create は後記を作成する。
func (r *PostgresReviewRepo) Create(ctx context.Context, rv *model.Review) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reviews (id, post_id, account_id, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rv.ID, rv.PostID, rv.AccountID, rv.Content, rv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("後記の作成に失敗しました: %w", mapPQError(err))
	}
	return nil
}

// ListByPost は投稿の後記を作成日時の降順で返す。
func (r *PostgresReviewRepo) ListByPost(ctx context.Context, postID string) ([]*model.Review, error) {
	if !isUUID(postID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT rv.id, rv.post_id, rv.account_id, a.name, rv.content, rv.created_at
		 FROM reviews rv
		 JOIN accounts a ON a.id = rv.account_id
		 WHERE rv.post_id = $1
		 ORDER BY rv.created_at DESC`,
		postID,
	)
	if err != nil {
		return nil, fmt.Errorf("後記一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var reviews []*model.Review
	for rows.Next() {
		rv := &model.Review{}
		if err := rows.Scan(&rv.ID, &rv.PostID, &rv.AccountID, &rv.AuthorName, &rv.Content, &rv.CreatedAt); err != nil {
			return nil, fmt.Errorf("後記のスキャンに失敗しました: %w", err)
		}
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("後記一覧の走査に失敗しました: %w", err)
	}
	return reviews, nil
}

// compile-time interface check
var _ ReviewRepository = (*PostgresReviewRepo)(nil)
