package socket

import (
	"errors"

	"github.com/example/shiftline/internal/application"
)

const (
	codeBadRequest      = "BAD_REQUEST"
	codeUnauthenticated = "UNAUTHENTICATED"
	codeForbidden       = "FORBIDDEN"
	codeNotFound        = "NOT_FOUND"
	codeConflict        = "CONFLICT"
	codeRateLimited     = "RATE_LIMITED"
	codeInternal        = "INTERNAL"
)

var (
	errInvalidFrame  = errors.New("無効なフレーム形式です。")
	errUnknownEvent  = errors.New("未対応のイベントです。")
	errMissingChatID = errors.New("チャット ID を指定してください。")
	errRateLimited   = errors.New("送信頻度が上限を超えています。")
)

// errorEvent classifies err the same way the HTTP responder does.
func errorEvent(err error) application.ErrorEvent {
	switch {
	case errors.Is(err, application.ErrUnauthenticated):
		return application.ErrorEvent{Code: codeUnauthenticated, Message: "認証が必要です。"}
	case errors.Is(err, application.ErrForbidden):
		return application.ErrorEvent{Code: codeForbidden, Message: "この操作を実行する権限がありません。"}
	case errors.Is(err, application.ErrNotFound):
		return application.ErrorEvent{Code: codeNotFound, Message: "指定されたリソースが見つかりません。"}
	case errors.Is(err, application.ErrConflict):
		return application.ErrorEvent{Code: codeConflict, Message: "他のデータと競合するため保存できませんでした。"}
	case errors.Is(err, errRateLimited):
		return application.ErrorEvent{Code: codeRateLimited, Message: err.Error()}
	case errors.Is(err, errInvalidFrame), errors.Is(err, errUnknownEvent), errors.Is(err, errMissingChatID):
		return application.ErrorEvent{Code: codeBadRequest, Message: err.Error()}
	}

	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		return application.ErrorEvent{Code: codeBadRequest, Message: "入力内容に誤りがあります。"}
	}
	return application.ErrorEvent{Code: codeInternal, Message: "サーバー内部でエラーが発生しました。"}
}
