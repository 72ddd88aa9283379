// Package sender defines the outbound platform client contract consumed by
// the worker pool. The concrete HTTP client for the remote messaging
// platform is an external collaborator and is not implemented here; only
// the interface the dispatch core depends on is.
package sender

import (
	"context"

	"github.com/graydnsapconet/tgbot/internal/types"
)

// Sender delivers replies and typing acknowledgments to the remote
// messaging platform. Implementations must honor ctx cancellation promptly,
// including mid-transfer, so shutdown is not held up by a slow peer.
type Sender interface {
	SendMessage(ctx context.Context, chat types.ChatID, text string) error
	SendTyping(ctx context.Context, chat types.ChatID) error
}
