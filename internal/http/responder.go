package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/shiftline/internal/application"
)

var (
	errBadRequestBody  = errors.New("無効なリクエスト形式です。")
	errMissingToken    = errors.New("認証トークンを指定してください")
	errInvalidLimit    = errors.New("limit には正の整数を指定してください。")
	errInvalidBefore   = errors.New("before には RFC3339 形式の日時を指定してください。")
	errInvalidUnread   = errors.New("unread には true または false を指定してください。")
	errMissingResource = errors.New("リソース ID を指定してください。")
)

// maxRequestBody caps JSON request bodies; message content is far smaller.
const maxRequestBody = 1 << 20

// decodeJSON reads a single JSON document into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// serviceFailures lists the sentinel errors clients can branch on, in match order.
var serviceFailures = []struct {
	target  error
	status  int
	code    string
	message string
}{
	{application.ErrUnauthenticated, http.StatusUnauthorized, "AUTH_UNAUTHENTICATED", "認証が必要です。"},
	{application.ErrInvalidCredentials, http.StatusUnauthorized, "AUTH_INVALID_CREDENTIALS", "メールアドレスまたはパスワードが正しくありません"},
	{application.ErrAccountDisabled, http.StatusForbidden, "AUTH_ACCOUNT_DISABLED", "このアカウントは無効化されています。"},
	{application.ErrForbidden, http.StatusForbidden, "AUTH_FORBIDDEN", "この操作を実行する権限がありません。"},
	{application.ErrNotFound, http.StatusNotFound, "", "指定されたリソースが見つかりません。"},
	{application.ErrConflict, http.StatusConflict, "RESOURCE_CONFLICT", "他のデータと競合するため保存できませんでした。"},
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	for _, f := range serviceFailures {
		if errors.Is(err, f.target) {
			r.writeJSON(ctx, w, f.status, errorResponse{ErrorCode: f.code, Message: f.message})
			return
		}
	}

	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		r.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   "入力内容に誤りがあります。",
			Errors:    vErr.FieldErrors,
		})
		return
	}

	r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err)
	r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: localizedStatusMessage(http.StatusInternalServerError)})
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "リクエスト内容が正しくありません。"
	case http.StatusUnauthorized:
		return "認証が必要です。"
	case http.StatusForbidden:
		return "この操作を実行する権限がありません。"
	case http.StatusNotFound:
		return "指定されたリソースが見つかりません。"
	case http.StatusMethodNotAllowed:
		return "許可されていないメソッドです。"
	case http.StatusConflict:
		return "他のデータと競合するため保存できませんでした。"
	case http.StatusServiceUnavailable:
		return "サービスが一時的に利用できません。"
	default:
		return "サーバー内部でエラーが発生しました。"
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
