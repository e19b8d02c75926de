package registry

import (
	"github.com/akarpov/botconsole/internal/httpapi"
)

// Bot represents one registered credential-backed bot owned by a device
// identity. ID is assigned by the registry and Username by the messaging
// platform; both are read-only. Only WelcomeText is owner-editable.
type Bot struct {
	ID          int64             `json:"id"`
	OwnerID     string            `json:"owner_id,omitempty"`
	Username    string            `json:"bot_username"`
	WelcomeText string            `json:"welcome_text"`
	Active      bool              `json:"is_active"`
	CreatedAt   httpapi.Timestamp `json:"created_at"`
}
