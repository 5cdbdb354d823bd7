package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dmswl6310/volunteer-work/internal/middleware"
	"github.com/dmswl6310/volunteer-work/internal/model"
)

// maxBodyBytes はJSONリクエストボディの上限。
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディをvに読み込む。未知のフィールドは拒否する。
// 失敗時は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return false
	}
	return true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden, model.ErrCodeAccountNotApproved:
		return http.StatusForbidden
	case model.ErrCodeValidation, model.ErrCodeMissingContactInfo, model.ErrCodeInvalidStatus:
		return http.StatusBadRequest
	case model.ErrCodeAccountNotFound, model.ErrCodePostNotFound, model.ErrCodeApplicationNotFound:
		return http.StatusNotFound
	case model.ErrCodeAccountAlreadyApproved, model.ErrCodeAccountAlreadyExists,
		model.ErrCodeHandleTaken, model.ErrCodeEmailTaken,
		model.ErrCodePostNotEditable, model.ErrCodeCapacityBelowOccupancy,
		model.ErrCodeRecruitmentClosed, model.ErrCodeCapacityExceeded,
		model.ErrCodeDuplicateApplication, model.ErrCodeInvalidStatusTransition,
		model.ErrCodeDuplicateReview:
		return http.StatusConflict
	case model.ErrCodeReviewNotAllowed, model.ErrCodeProfanityDetected:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
