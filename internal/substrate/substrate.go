// Package substrate defines the contract with the underlying group-messaging
// system: chat and member operations, message sending, and the event stream
// the bot reacts to. The substrate owns transport correctness; the bot only
// consumes this interface.
package substrate

import "context"

// Contact identifies a member of the messaging network.
type Contact struct {
	Addr string
	Name string
}

// DisplayName returns the contact's chosen name, or empty when the contact
// has none (the substrate reports the address as the name in that case).
func (c Contact) DisplayName() string {
	if c.Name == "" || c.Name == c.Addr {
		return ""
	}
	return c.Name
}

// Contains reports whether the member list includes the given address.
func Contains(members []Contact, addr string) bool {
	for _, member := range members {
		if member.Addr == addr {
			return true
		}
	}
	return false
}

// Message is an inbound message reported by the substrate.
type Message struct {
	ID       int64
	ChatID   int64
	Sender   Contact
	Text     string
	HTML     string
	Filename string
	FileSize int64
	ViewType string
	QuoteID  int64
}

// Outgoing describes a message to send. SenderName, when set, overrides the
// displayed sender label on the receiving side.
type Outgoing struct {
	ChatID     int64
	Text       string
	HTML       string
	Filename   string
	ViewType   string
	QuoteID    int64
	SenderName string
}

// EventKind enumerates substrate callback types.
type EventKind string

const (
	EventMessage       EventKind = "message"
	EventMemberAdded   EventKind = "member-added"
	EventMemberRemoved EventKind = "member-removed"
	EventImageChanged  EventKind = "image-changed"
	EventMemberBanned  EventKind = "member-banned"
)

// Event is a single substrate callback. Fields are populated per kind:
// Member/Actor for membership events, ImageDeleted for image changes,
// Message for inbound messages. Banned events carry only Member.
type Event struct {
	Kind         EventKind
	ChatID       int64
	Member       Contact
	Actor        Contact
	ImageDeleted bool
	Message      *Message
}

// Substrate is the set of chat operations the bot consumes. Implementations
// must report a missing or inaccessible chat as an error; callers treat any
// error from a read as "chat gone" and self-heal.
type Substrate interface {
	// SelfAddr returns the bot's own address on the messaging network.
	SelfAddr() string

	// ChatName returns the display name of a chat.
	ChatName(ctx context.Context, chatID int64) (string, error)

	// ChatIsGroup reports whether a chat is a multi-member group chat.
	ChatIsGroup(ctx context.Context, chatID int64) (bool, error)

	// DirectChat returns the id of the bot's 1:1 chat with the given
	// address, creating it when necessary.
	DirectChat(ctx context.Context, addr string) (int64, error)

	// ChatMembers enumerates the live members of a chat.
	ChatMembers(ctx context.Context, chatID int64) ([]Contact, error)

	// CreateGroup creates a new group chat containing the bot and the given
	// members, returning the new chat id.
	CreateGroup(ctx context.Context, name string, members []string) (int64, error)

	// AddMember adds a member to a chat.
	AddMember(ctx context.Context, chatID int64, addr string) error

	// RemoveMember removes a member from a chat.
	RemoveMember(ctx context.Context, chatID int64, addr string) error

	// ChatImage returns a reference to the chat's profile image, empty when
	// the chat has none.
	ChatImage(ctx context.Context, chatID int64) (string, error)

	// SetChatImage sets the chat's profile image from a reference previously
	// obtained via ChatImage.
	SetChatImage(ctx context.Context, chatID int64, image string) error

	// DeleteChatImage clears the chat's profile image.
	DeleteChatImage(ctx context.Context, chatID int64) error

	// JoinQR returns the chat's join-invite payload.
	JoinQR(ctx context.Context, chatID int64) (string, error)

	// SendMessage delivers a message to a chat.
	SendMessage(ctx context.Context, msg Outgoing) error
}
