package lifecycle

import (
	"context"
	"sync"

	"github.com/dmswl6310/volunteer-work/internal/model"
	"github.com/dmswl6310/volunteer-work/internal/repository"
)

// memoryStore は投稿と申請を1つのロックで守るフェイク。
// TransitionStatusとDeleteはPostgreSQL実装と同じく、ステータス変更と参加人数の増減を
// 不可分に行う。
type memoryStore struct {
	mu    sync.Mutex
	posts map[string]*model.Post
	apps  map[string]*model.Application

	// beforeTransition はTransitionStatusのロック取得前に呼ばれる。競合の再現に使う。
	beforeTransition func(id string)
	transitions      int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		posts: map[string]*model.Post{},
		apps:  map[string]*model.Application{},
	}
}

func (s *memoryStore) addPost(p *model.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[p.ID] = p
}

func (s *memoryStore) addApplication(a *model.Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[a.ID] = a
}

func (s *memoryStore) occupancy(postID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posts[postID].CurrentParticipants
}

func (s *memoryStore) status(id string) (model.ApplicationStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok {
		return "", false
	}
	return a.Status, true
}

// --- PostRepository ---

func (s *memoryStore) FindByID(ctx context.Context, id string) (*model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.posts[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (s *memoryStore) Create(ctx context.Context, p *model.Post) error {
	s.addPost(p)
	return nil
}

func (s *memoryStore) Update(ctx context.Context, p *model.Post) error {
	return nil
}

func (s *memoryStore) IncrementViews(ctx context.Context, id string) error {
	return nil
}

// applicationRepo はmemoryStoreをApplicationRepositoryとして見せる。
type applicationRepo struct{ *memoryStore }

func (r applicationRepo) FindByID(ctx context.Context, id string) (*model.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.apps[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (r applicationRepo) FindByPostAndAccount(ctx context.Context, postID, accountID string) (*model.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.apps {
		if a.PostID == postID && a.AccountID == accountID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r applicationRepo) Create(ctx context.Context, app *model.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[app.PostID]; !ok {
		return &repository.ConstraintError{Constraint: repository.ConstraintApplicationsPostFK, Err: repository.ErrReferenceNotFound}
	}
	for _, a := range r.apps {
		if a.PostID == app.PostID && a.AccountID == app.AccountID {
			return &repository.ConstraintError{Constraint: repository.ConstraintApplicationsUnique, Err: repository.ErrDuplicate}
		}
	}
	cp := *app
	r.apps[app.ID] = &cp
	return nil
}

func (r applicationRepo) TransitionStatus(ctx context.Context, id string, from, to model.ApplicationStatus, delta int) (*model.Application, error) {
	if r.beforeTransition != nil {
		r.beforeTransition(id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions++

	a, ok := r.apps[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if a.Status != from {
		return nil, repository.ErrStatusConflict
	}
	p := r.posts[a.PostID]
	switch {
	case delta > 0:
		if p.CurrentParticipants >= p.MaxParticipants {
			return nil, repository.ErrCapacityExceeded
		}
		p.CurrentParticipants++
	case delta < 0:
		if p.CurrentParticipants > 0 {
			p.CurrentParticipants--
		}
	}
	a.Status = to
	cp := *a
	return &cp, nil
}

func (r applicationRepo) Delete(ctx context.Context, id string) (*model.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.apps[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(r.apps, id)
	if a.Status.IsCounted() {
		if p := r.posts[a.PostID]; p != nil && p.CurrentParticipants > 0 {
			p.CurrentParticipants--
		}
	}
	return a, nil
}

var (
	_ repository.PostRepository        = (*memoryStore)(nil)
	_ repository.ApplicationRepository = applicationRepo{}
)
