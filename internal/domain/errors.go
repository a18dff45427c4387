package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork возвращается, когда удалённый API недоступен или не ответил вовремя.
	ErrNetwork = errors.New("network unavailable")

	// ErrUnauthorized возвращается при истёкшей или отсутствующей сессии.
	ErrUnauthorized = errors.New("session expired or missing")

	// ErrValidation возвращается, когда сервер отклонил данные действия.
	ErrValidation = errors.New("request rejected by server")

	// ErrNotFound возвращается, когда запись не найдена.
	ErrNotFound = errors.New("entity not found")

	// ErrServer возвращается при ошибках 5xx.
	ErrServer = errors.New("server error")

	// ErrMalformedFrame возвращается для сообщений транспорта, которые нельзя разобрать.
	ErrMalformedFrame = errors.New("malformed frame")
)

// Action — пользовательское действие над записью ленты.
type Action string

const (
	ActionFetch   Action = "fetch"
	ActionLike    Action = "like"
	ActionComment Action = "comment"
	ActionStatus  Action = "status"
	ActionDelete  Action = "delete"
	ActionCreate  Action = "create"
)

// ActionError оборачивает ошибку пользовательского действия.
type ActionError struct {
	Action Action
	ItemID int64
	Err    error
}

func (e *ActionError) Error() string {
	if e.ItemID != 0 {
		return fmt.Sprintf("%s item %d: %v", e.Action, e.ItemID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// Message возвращает текст для баннера во view.
func (e *ActionError) Message() string {
	return UserMessage(e)
}

// UserMessage переводит ошибку в сообщение для пользователя.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var prefix string
	var actionErr *ActionError
	if errors.As(err, &actionErr) {
		prefix = actionPrefix(actionErr.Action)
	}
	var reason string
	switch {
	case errors.Is(err, ErrNetwork):
		reason = "Tidak dapat terhubung ke server. Periksa koneksi internet Anda."
	case errors.Is(err, ErrUnauthorized):
		reason = "Sesi Anda telah berakhir. Silakan masuk kembali."
	case errors.Is(err, ErrValidation):
		reason = "Data yang dikirim tidak valid."
	case errors.Is(err, ErrNotFound):
		reason = "Data tidak ditemukan atau sudah dihapus."
	case errors.Is(err, ErrServer):
		reason = "Terjadi kesalahan pada server. Coba lagi nanti."
	default:
		reason = "Terjadi kesalahan. Coba lagi nanti."
	}
	if prefix == "" {
		return reason
	}
	return prefix + " " + reason
}

func actionPrefix(action Action) string {
	switch action {
	case ActionFetch:
		return "Gagal memuat data."
	case ActionLike:
		return "Gagal menyukai postingan."
	case ActionComment:
		return "Gagal mengirim komentar."
	case ActionStatus:
		return "Gagal memperbarui status."
	case ActionDelete:
		return "Gagal menghapus postingan."
	case ActionCreate:
		return "Gagal membuat postingan."
	}
	return ""
}

// ErrorKind возвращает короткую метку категории ошибки для метрик и логов.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrServer):
		return "server"
	case errors.Is(err, ErrMalformedFrame):
		return "malformed_frame"
	}
	return "unknown"
}
