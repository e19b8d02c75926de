package app

import "fmt"

// Screen identifies one of the four application screens. The application
// starts on Home and runs indefinitely; there is no terminal screen.
type Screen uint8

const (
	ScreenHome Screen = iota
	ScreenCreate
	ScreenSettings
	ScreenMessages
)

func (s Screen) String() string {
	switch s {
	case ScreenHome:
		return "home"
	case ScreenCreate:
		return "create"
	case ScreenSettings:
		return "settings"
	case ScreenMessages:
		return "messages"
	default:
		return fmt.Sprintf("screen(%d)", uint8(s))
	}
}

// allowedTransitions is the closed transition table. Every screen returns
// to Home; Home fans out to the other three. Settings and Messages carry an
// additional precondition (a connected bot) enforced by the Controller.
var allowedTransitions = map[Screen][]Screen{
	ScreenHome:     {ScreenCreate, ScreenSettings, ScreenMessages},
	ScreenCreate:   {ScreenHome},
	ScreenSettings: {ScreenHome},
	ScreenMessages: {ScreenHome},
}

func canTransition(from, to Screen) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
