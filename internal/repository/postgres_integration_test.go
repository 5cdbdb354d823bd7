package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dmswl6310/volunteer-work/internal/database/dbtest"
	"github.com/dmswl6310/volunteer-work/internal/model"
)

func seedAccount(t *testing.T, repo *PostgresAccountRepo, id, handle string) {
	t.Helper()
	now := time.Now()
	err := repo.Create(context.Background(), &model.Account{
		ID: id, Email: id + "@example.com", Handle: handle, Name: "User",
		Contact: model.DefaultContact, Address: model.DefaultAddress, Job: model.DefaultJob,
		Role: model.RoleMember, IsApproved: true, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("seed account %s: %v", id, err)
	}
}

func seedPost(t *testing.T, repo *PostgresPostRepo, authorID string, max int) string {
	t.Helper()
	now := time.Now()
	id := uuid.NewString()
	err := repo.Create(context.Background(), &model.Post{
		ID: id, AuthorID: authorID, Title: "해변 정화", Content: "본문", Category: "환경",
		MaxParticipants: max, IsRecruiting: true, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("seed post: %v", err)
	}
	return id
}

func seedApplication(t *testing.T, repo *PostgresApplicationRepo, postID, accountID string, status model.ApplicationStatus) string {
	t.Helper()
	now := time.Now()
	id := uuid.NewString()
	err := repo.Create(context.Background(), &model.Application{
		ID: id, PostID: postID, AccountID: accountID, Status: status, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("seed application: %v", err)
	}
	return id
}

func occupancy(t *testing.T, db *sql.DB, postID string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT current_participants FROM posts WHERE id = $1`, postID).Scan(&n); err != nil {
		t.Fatalf("read occupancy: %v", err)
	}
	return n
}

// 定員1の投稿に対する同時承認は1件だけ成功し、残りは満員で失敗すること
func TestPostgres_ConcurrentApprovalsTakeOneSeat(t *testing.T) {
	db := dbtest.Open(t, "repository_test")
	accounts := NewPostgresAccountRepo(db)
	posts := NewPostgresPostRepo(db)
	apps := NewPostgresApplicationRepo(db)

	seedAccount(t, accounts, "author", "author")
	postID := seedPost(t, posts, "author", 1)

	const applicants = 5
	appIDs := make([]string, applicants)
	for i := range appIDs {
		accountID := uuid.NewString()
		seedAccount(t, accounts, accountID, accountID)
		appIDs[i] = seedApplication(t, apps, postID, accountID, model.StatusPending)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		approved int
		full     int
	)
	for _, id := range appIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := apps.TransitionStatus(context.Background(), id, model.StatusPending, model.StatusApproved, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				approved++
			case errors.Is(err, ErrCapacityExceeded):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	if approved != 1 || full != applicants-1 {
		t.Errorf("approved = %d, full = %d; want 1 and %d", approved, full, applicants-1)
	}
	if got := occupancy(t, db, postID); got != 1 {
		t.Errorf("current_participants = %d, want 1", got)
	}

	// 満員で失敗した申請はpendingのまま残る
	var pending int
	if err := db.QueryRow(`SELECT COUNT(*) FROM applications WHERE post_id = $1 AND status = 'pending'`, postID).Scan(&pending); err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if pending != applicants-1 {
		t.Errorf("pending = %d, want %d", pending, applicants-1)
	}
}

// 参加人数が0のまま承認済みの申請を削除しても負にならないこと
func TestPostgres_DeleteCountedRowClampsAtZero(t *testing.T) {
	db := dbtest.Open(t, "repository_test")
	accounts := NewPostgresAccountRepo(db)
	posts := NewPostgresPostRepo(db)
	apps := NewPostgresApplicationRepo(db)

	seedAccount(t, accounts, "author", "author")
	seedAccount(t, accounts, "member", "member")
	postID := seedPost(t, posts, "author", 2)
	appID := seedApplication(t, apps, postID, "member", model.StatusApproved)

	deleted, err := apps.Delete(context.Background(), appID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.Status != model.StatusApproved {
		t.Errorf("deleted status = %q", deleted.Status)
	}
	if got := occupancy(t, db, postID); got != 0 {
		t.Errorf("current_participants = %d, want 0", got)
	}
	if _, err := apps.Delete(context.Background(), appID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

// 承認を取り消すと枠が戻り、状態が変わっていればCASは失敗すること
func TestPostgres_TransitionStatus_ReleaseAndConflict(t *testing.T) {
	db := dbtest.Open(t, "repository_test")
	accounts := NewPostgresAccountRepo(db)
	posts := NewPostgresPostRepo(db)
	apps := NewPostgresApplicationRepo(db)

	seedAccount(t, accounts, "author", "author")
	seedAccount(t, accounts, "member", "member")
	postID := seedPost(t, posts, "author", 1)
	appID := seedApplication(t, apps, postID, "member", model.StatusPending)
	ctx := context.Background()

	if _, err := apps.TransitionStatus(ctx, appID, model.StatusPending, model.StatusApproved, 1); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := apps.TransitionStatus(ctx, appID, model.StatusPending, model.StatusApproved, 1); !errors.Is(err, ErrStatusConflict) {
		t.Errorf("stale CAS err = %v, want ErrStatusConflict", err)
	}
	if got := occupancy(t, db, postID); got != 1 {
		t.Errorf("current_participants = %d, want 1", got)
	}
	if _, err := apps.TransitionStatus(ctx, appID, model.StatusApproved, model.StatusRejected, -1); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := occupancy(t, db, postID); got != 0 {
		t.Errorf("current_participants = %d, want 0", got)
	}
	if _, err := apps.TransitionStatus(ctx, missingID, model.StatusPending, model.StatusApproved, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing err = %v, want ErrNotFound", err)
	}
}

// PostgreSQLが返す制約名がマイグレーションの命名と一致すること
func TestPostgres_ConstraintNames(t *testing.T) {
	db := dbtest.Open(t, "repository_test")
	accounts := NewPostgresAccountRepo(db)
	posts := NewPostgresPostRepo(db)
	apps := NewPostgresApplicationRepo(db)
	ctx := context.Background()
	now := time.Now()

	seedAccount(t, accounts, "acc-1", "kim")

	newAccount := func(id, email, handle string) *model.Account {
		return &model.Account{
			ID: id, Email: email, Handle: handle, Name: "User",
			Contact: model.DefaultContact, Address: model.DefaultAddress, Job: model.DefaultJob,
			Role: model.RoleMember, CreatedAt: now, UpdatedAt: now,
		}
	}

	tests := []struct {
		name    string
		account *model.Account
		want    string
	}{
		{"same id", newAccount("acc-1", "other@example.com", "other"), ConstraintAccountsPkey},
		{"same handle", newAccount("acc-2", "acc-2@example.com", "kim"), ConstraintAccountsHandle},
		{"same email", newAccount("acc-3", "acc-1@example.com", "lee"), ConstraintAccountsEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := accounts.Create(ctx, tt.account)
			if !errors.Is(err, ErrDuplicate) {
				t.Fatalf("err = %v, want ErrDuplicate", err)
			}
			if got := ViolatedConstraint(err); got != tt.want {
				t.Errorf("constraint = %q, want %q", got, tt.want)
			}
		})
	}

	postID := seedPost(t, posts, "acc-1", 3)
	seedApplication(t, apps, postID, "acc-1", model.StatusPending)

	err := apps.Create(ctx, &model.Application{
		ID: uuid.NewString(), PostID: postID, AccountID: "acc-1", Status: model.StatusPending, CreatedAt: now, UpdatedAt: now,
	})
	if got := ViolatedConstraint(err); !errors.Is(err, ErrDuplicate) || got != ConstraintApplicationsUnique {
		t.Errorf("duplicate application: err = %v, constraint = %q", err, got)
	}

	err = apps.Create(ctx, &model.Application{
		ID: uuid.NewString(), PostID: postID, AccountID: "ghost", Status: model.StatusPending, CreatedAt: now, UpdatedAt: now,
	})
	if got := ViolatedConstraint(err); !errors.Is(err, ErrReferenceNotFound) || got != ConstraintApplicationsAccountFK {
		t.Errorf("unknown account: err = %v, constraint = %q", err, got)
	}
}
