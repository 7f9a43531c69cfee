package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sender is the outbound delivery surface. Client implements it.
type Sender interface {
	SendMessage(ctx context.Context, room, message string) error
	SendDirect(ctx context.Context, userID, message string) error
}

// Notifier delivers best-effort notifications. Failures are logged and
// swallowed: a dropped expiry notice must never stall the sweeper or
// roll back a registry operation.
type Notifier struct {
	sender Sender
	logger *zap.Logger
}

func NewNotifier(sender Sender, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{sender: sender, logger: logger}
}

// Direct sends a private message to one user.
func (n *Notifier) Direct(userID, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := n.sender.SendDirect(ctx, userID, message); err != nil {
		n.logger.Warn("delivery_failed",
			zap.String("kind", "direct"),
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

// Room posts into a room.
func (n *Notifier) Room(room, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := n.sender.SendMessage(ctx, room, message); err != nil {
		n.logger.Warn("delivery_failed",
			zap.String("kind", "room"),
			zap.String("room", room),
			zap.Error(err))
	}
}
