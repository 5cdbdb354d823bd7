package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmswl6310/volunteer-work/internal/model"
)

const postColumns = `id, author_id, title, content, category, image_url, max_participants, current_participants,
	is_recruiting, is_urgent, due_date, views, scrap_count, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通部分。
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresPostRepo はPostgreSQLを使用した募集投稿リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

func scanPost(row rowScanner) (*model.Post, error) {
	p := &model.Post{}
	var dueDate sql.NullTime
	err := row.Scan(&p.ID, &p.AuthorID, &p.Title, &p.Content, &p.Category, &p.ImageURL,
		&p.MaxParticipants, &p.CurrentParticipants, &p.IsRecruiting, &p.IsUrgent, &dueDate,
		&p.Views, &p.ScrapCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if dueDate.Valid {
		t := dueDate.Time
		p.DueDate = &t
	}
	return p, nil
}

// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	if !isUUID(id) {
		return nil, nil
	}
	p, err := scanPost(r.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	return p, nil
}

// Create は投稿を作成する。参加人数は常に0から始まる。
func (r *PostgresPostRepo) Create(ctx context.Context, p *model.Post) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO posts (id, author_id, title, content, category, image_url, max_participants,
		                    current_participants, is_recruiting, is_urgent, due_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10, $11, $12)`,
		p.ID, p.AuthorID, p.Title, p.Content, p.Category, p.ImageURL, p.MaxParticipants,
		p.IsRecruiting, p.IsUrgent, dueDateArg(p), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("投稿の作成に失敗しました: %w", mapPQError(err))
	}
	return nil
}

// Update は投稿内容を更新する。current_participants は書き換えない。
// 定員の引き下げは現在の参加人数以上の場合のみ条件付きで反映する。
func (r *PostgresPostRepo) Update(ctx context.Context, p *model.Post) error {
	if !isUUID(p.ID) {
		return ErrNotFound
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE posts
		 SET title = $2, content = $3, category = $4, image_url = $5, max_participants = $6,
		     is_recruiting = $7, is_urgent = $8, due_date = $9, updated_at = NOW()
		 WHERE id = $1 AND current_participants <= $6`,
		p.ID, p.Title, p.Content, p.Category, p.ImageURL, p.MaxParticipants,
		p.IsRecruiting, p.IsUrgent, dueDateArg(p),
	)
	if err != nil {
		return fmt.Errorf("投稿の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists bool
	err = r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1)`, p.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("投稿の存在確認に失敗しました: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrCapacityBelowOccupancy
}

// IncrementViews は閲覧数を1増やす。
func (r *PostgresPostRepo) IncrementViews(ctx context.Context, id string) error {
	if !isUUID(id) {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `UPDATE posts SET views = views + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("閲覧数の更新に失敗しました: %w", err)
	}
	return nil
}

func dueDateArg(p *model.Post) any {
	if p.DueDate == nil {
		return nil
	}
	return *p.DueDate
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
