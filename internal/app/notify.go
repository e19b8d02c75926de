package app

import (
	"log/slog"

	apperrors "github.com/akarpov/botconsole/internal/errors"
)

// NoticeKind classifies a user-visible notification.
type NoticeKind uint8

const (
	NoticeInfo NoticeKind = iota
	NoticeSuccess
	NoticeError
)

// Notice is a user-visible notification. How it is rendered (toast, print,
// anything else) is up to the Notifier implementation.
type Notice struct {
	Kind   NoticeKind
	Title  string
	Detail string
}

// Notifier receives user-visible notifications from the controller. All
// remote-call failures surface here and nowhere else.
type Notifier interface {
	Notify(n Notice)
}

// LogNotifier is a Notifier that writes notices to the structured log.
// Useful as a fallback when no interactive surface is attached.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(n Notice) {
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}
	switch n.Kind {
	case NoticeError:
		log.Error(n.Title, "detail", n.Detail)
	default:
		log.Info(n.Title, "detail", n.Detail)
	}
}

// describe maps an application error onto the short explanation shown to
// the owner.
func describe(err error) string {
	switch apperrors.Code(err) {
	case apperrors.CodeValidation:
		return "Enter a valid bot token"
	case apperrors.CodeRegistrationRejected:
		return "The platform rejected this token. Check it and try again."
	case apperrors.CodeNotFound:
		return "This bot is no longer registered"
	case apperrors.CodeUnauthorized:
		return "This bot belongs to a different device"
	case apperrors.CodeStorage:
		return "Local storage is unavailable, so this session is not linked to an account"
	default:
		return "A network error occurred. Please try again later."
	}
}
