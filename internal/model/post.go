package model

import "time"

// Categories は投稿に指定できるカテゴリの一覧。
var Categories = []string{"교육", "환경", "의료", "동물", "문화", "기타"}

// IsValidCategory はカテゴリが定義済みのものかを返す。
func IsValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Post はボランティア募集投稿を表す。
// 0 <= CurrentParticipants <= MaxParticipants を常に満たす。
// CurrentParticipants を更新してよいのは申請ライフサイクルエンジンのみ。
type Post struct {
	ID                  string
	AuthorID            string
	Title               string
	Content             string
	Category            string
	ImageURL            string
	MaxParticipants     int
	CurrentParticipants int
	IsRecruiting        bool
	IsUrgent            bool
	DueDate             *time.Time
	Views               int
	ScrapCount          int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Remaining は残りの参加枠数を返す。
func (p *Post) Remaining() int {
	r := p.MaxParticipants - p.CurrentParticipants
	if r < 0 {
		return 0
	}
	return r
}

// IsFull は参加枠が埋まっているかを返す。
func (p *Post) IsFull() bool {
	return p.CurrentParticipants >= p.MaxParticipants
}

// IsPastDueDay は締切日が today の属する日より前かを loc の暦日単位で判定する。
// 締切当日はまだ締め切られていないものとして扱う。
func (p *Post) IsPastDueDay(now time.Time, loc *time.Location) bool {
	if p.DueDate == nil {
		return false
	}
	if loc == nil {
		loc = time.UTC
	}
	dy, dm, dd := p.DueDate.In(loc).Date()
	ny, nm, nd := now.In(loc).Date()
	due := time.Date(dy, dm, dd, 0, 0, 0, 0, loc)
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, loc)
	return due.Before(today)
}

// HasFinished は締切日時が now 以前かを瞬間単位で判定する。
// 締切日が未設定の投稿は終了済みとして扱う。
func (p *Post) HasFinished(now time.Time) bool {
	if p.DueDate == nil {
		return true
	}
	return !p.DueDate.After(now)
}

// Scrap は投稿のブックマークを表す。
type Scrap struct {
	ID        string
	PostID    string
	AccountID string
	CreatedAt time.Time
}
