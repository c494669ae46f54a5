package api

import (
	"errors"
	"fmt"

	"github.com/pefman/medal-dashboard/internal/envelope"
)

var (
	ErrValidation = errors.New("invalid input")
	ErrMissingURL = fmt.Errorf("%w: missing URL", ErrValidation)
	ErrInvalidURL = fmt.Errorf("%w: URL must be absolute http(s)", ErrValidation)
	ErrNotFound   = errors.New("not found")
	ErrAuth       = errors.New("authentication failed")
	ErrNetwork    = errors.New("network error")
	ErrDecode     = envelope.ErrDecode
)

// ErrHostNotAllowed is an otherwise valid URL outside the data API hosts.
var ErrHostNotAllowed = fmt.Errorf("%w: host not allowed", ErrInvalidURL)

// HTTPError is any other non-2xx answer.
type HTTPError struct {
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("api status %d", e.Status)
}

// Message maps err to the text shown to the player.
func Message(err error) string {
	var httpErr *HTTPError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingURL):
		return "URLを入力してください"
	case errors.Is(err, ErrHostNotAllowed):
		return "このURLのデータは読み込めません"
	case errors.Is(err, ErrValidation):
		return "URLの形式が正しくありません"
	case errors.Is(err, ErrNotFound):
		return "データが見つかりませんでした"
	case errors.Is(err, ErrAuth):
		return "認証に失敗しました（署名が無効です）"
	case errors.As(err, &httpErr):
		return fmt.Sprintf("データの取得に失敗しました (HTTP %d)", httpErr.Status)
	case errors.Is(err, ErrDecode):
		return "レスポンスの形式が正しくありません"
	case errors.Is(err, ErrNetwork):
		return "サーバーに接続できませんでした"
	default:
		return "データの取得に失敗しました"
	}
}

// Category names the error class for logs and JSON.
func Category(err error) string {
	var httpErr *HTTPError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.As(err, &httpErr):
		return "http"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrNetwork):
		return "network"
	default:
		return "unknown"
	}
}
