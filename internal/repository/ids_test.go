package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dmswl6310/volunteer-work/internal/model"
)

const (
	testPostID  = "6f1c2a4e-8d3b-4f5a-9c7e-1b2d3e4f5a60"
	testPostID2 = "6f1c2a4e-8d3b-4f5a-9c7e-1b2d3e4f5a61"
	testAppID   = "0a9b8c7d-6e5f-4a3b-8c2d-1e0f9a8b7c6d"
	missingID   = "ffffffff-ffff-4fff-bfff-ffffffffffff"
)

func TestIsUUID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{testPostID, true},
		{"6F1C2A4E-8D3B-4F5A-9C7E-1B2D3E4F5A60", true},
		{"", false},
		{"abc", false},
		{"post-1", false},
		{"1 OR 1=1", false},
	}
	for _, tt := range tests {
		if got := isUUID(tt.id); got != tt.want {
			t.Errorf("isUUID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

// UUID形式でないIDはSQLを発行せずに該当行なしとして扱うこと
func TestMalformedIDs_AreNotFoundWithoutQuerying(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	posts := NewPostgresPostRepo(db)
	apps := NewPostgresApplicationRepo(db)
	reviews := NewPostgresReviewRepo(db)

	if p, err := posts.FindByID(ctx, "abc"); p != nil || err != nil {
		t.Errorf("posts.FindByID = %v, %v; want nil, nil", p, err)
	}
	if err := posts.Update(ctx, &model.Post{ID: "abc", MaxParticipants: 1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("posts.Update err = %v, want ErrNotFound", err)
	}
	if err := posts.IncrementViews(ctx, "abc"); err != nil {
		t.Errorf("posts.IncrementViews err = %v", err)
	}
	if a, err := apps.FindByID(ctx, "abc"); a != nil || err != nil {
		t.Errorf("apps.FindByID = %v, %v; want nil, nil", a, err)
	}
	if a, err := apps.FindByPostAndAccount(ctx, "abc", "acc-1"); a != nil || err != nil {
		t.Errorf("apps.FindByPostAndAccount = %v, %v; want nil, nil", a, err)
	}
	if _, err := apps.TransitionStatus(ctx, "abc", model.StatusPending, model.StatusApproved, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("apps.TransitionStatus err = %v, want ErrNotFound", err)
	}
	if _, err := apps.Delete(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("apps.Delete err = %v, want ErrNotFound", err)
	}
	if rv, err := reviews.FindByPostAndAccount(ctx, "abc", "acc-1"); rv != nil || err != nil {
		t.Errorf("reviews.FindByPostAndAccount = %v, %v; want nil, nil", rv, err)
	}
	if list, err := reviews.ListByPost(ctx, "abc"); len(list) != 0 || err != nil {
		t.Errorf("reviews.ListByPost = %v, %v; want empty", list, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no SQL should be issued: %v", err)
	}
}
