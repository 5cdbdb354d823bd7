// Package invalidate はデータ変更後に表示キャッシュの無効化を外部へ通知する。
//
// 通知はすべてfire-and-forgetで、失敗はログに残すだけで呼び出し元へは返さない。
package invalidate

import (
	"encoding/json"
	"fmt"
)

// Notifier はキャッシュ無効化の通知先。Invalidateは即座に戻る。
type Notifier interface {
	Invalidate(paths ...string)
}

// PostPaths は募集に関わる変更で無効化するパスの一覧を返す。
func PostPaths(postID string) []string {
	return []string{fmt.Sprintf("/board/%s", postID), "/board", "/mypage", "/admin"}
}

type payload struct {
	Paths []string `json:"paths"`
}

func encode(paths []string) ([]byte, error) {
	return json.Marshal(payload{Paths: paths})
}

// Nop は何もしないNotifier。
type Nop struct{}

func (Nop) Invalidate(...string) {}

// Multi は複数のNotifierへ同じパスを通知する。
type Multi []Notifier

func (m Multi) Invalidate(paths ...string) {
	if len(paths) == 0 {
		return
	}
	for _, n := range m {
		n.Invalidate(paths...)
	}
}
