package repository

import "github.com/google/uuid"

// isUUID はidがUUID列と比較できる形式かを返す。
// posts/applications/reviews のIDはUUID型のため、形式外のIDは該当行なしとして扱う。
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
