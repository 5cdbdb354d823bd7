package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmswl6310/volunteer-work/internal/model"
)

const accountColumns = `id, email, handle, name, contact, address, job, role, is_approved, points, created_at, updated_at`

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

func scanAccount(row *sql.Row) (*model.Account, error) {
	a := &model.Account{}
	var role string
	err := row.Scan(&a.ID, &a.Email, &a.Handle, &a.Name, &a.Contact, &a.Address, &a.Job,
		&role, &a.IsApproved, &a.Points, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Role = model.Role(role)
	return a, nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	return a, nil
}

// FindByHandle はハンドルでアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByHandle(ctx context.Context, handle string) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE handle = $1`, handle))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ハンドルによるアカウントの検索に失敗しました: %w", err)
	}
	return a, nil
}

// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("メールアドレスによるアカウントの検索に失敗しました: %w", err)
	}
	return a, nil
}

// Create はアカウントを作成する。
// 一意制約違反は制約名付きの *ConstraintError で返すため、呼び出し側は
// 主キー・ハンドル・メールアドレスのどれが衝突したかを区別できる。
func (r *PostgresAccountRepo) Create(ctx context.Context, a *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, handle, name, contact, address, job, role, is_approved, points, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.Email, a.Handle, a.Name, a.Contact, a.Address, a.Job,
		string(a.Role), a.IsApproved, a.Points, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("アカウントの作成に失敗しました: %w", mapPQError(err))
	}
	return nil
}

// Approve はis_approvedをfalseからtrueへ一度だけ切り替える。
func (r *PostgresAccountRepo) Approve(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET is_approved = TRUE, updated_at = NOW()
		 WHERE id = $1 AND is_approved = FALSE`,
		id,
	)
	if err != nil {
		return fmt.Errorf("アカウントの承認に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	// 0件の場合は存在しないのか承認済みなのかを区別する
	var approved bool
	err = r.db.QueryRowContext(ctx, `SELECT is_approved FROM accounts WHERE id = $1`, id).Scan(&approved)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	return ErrAlreadyApproved
}

// UpdateProfile は表示名と連絡先などのプロフィール項目を更新する。
func (r *PostgresAccountRepo) UpdateProfile(ctx context.Context, a *model.Account) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET name = $2, contact = $3, address = $4, job = $5, updated_at = NOW()
		 WHERE id = $1`,
		a.ID, a.Name, a.Contact, a.Address, a.Job,
	)
	if err != nil {
		return fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GrantAdmin はアカウントを管理者に昇格させ、同時に承認済みにする。
func (r *PostgresAccountRepo) GrantAdmin(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET role = $2, is_approved = TRUE, updated_at = NOW() WHERE id = $1`,
		id, string(model.RoleAdministrator),
	)
	if err != nil {
		return fmt.Errorf("管理者権限の付与に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
