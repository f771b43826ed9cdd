// Package notify defines the gateway to the chat transport: user
// notifications and the private per-task channels. The transport itself is
// out of scope; everything behind Gateway must be idempotent-safe to retry.
package notify

import "context"

// Gateway delivers messages and manages per-task channels on the chat
// provider. RecipientIDs are provider-side user identifiers (Telegram IDs).
type Gateway interface {
	SendMessage(ctx context.Context, recipientID int64, text string) error
	// CreateChannel provisions a private channel for the given participants
	// and returns its provider-side identifier.
	CreateChannel(ctx context.Context, title string, participantIDs []int64) (int64, error)
	DeleteChannel(ctx context.Context, channelID int64) error
	PromoteMember(ctx context.Context, channelID, memberID int64) error
}
