package substrate

import (
	"context"
	"errors"
	"fmt"
	"net/rpc"
	"net/rpc/jsonrpc"
)

// rpcCaller captures the subset of rpc.Client behavior we rely on to allow
// lightweight stubbing in tests without a live substrate process.
type rpcCaller interface {
	Go(serviceMethod string, args interface{}, reply interface{}, done chan *rpc.Call) *rpc.Call
	Close() error
}

// dialRPC is overridable for tests.
var dialRPC = func(addr string) (rpcCaller, error) {
	return jsonrpc.Dial("tcp", addr)
}

// Service method names exposed by the messaging core.
const (
	rpcSelfAddr        = "Messenger.SelfAddr"
	rpcChatName        = "Messenger.ChatName"
	rpcChatIsGroup     = "Messenger.ChatIsGroup"
	rpcDirectChat      = "Messenger.DirectChat"
	rpcChatMembers     = "Messenger.ChatMembers"
	rpcCreateGroup     = "Messenger.CreateGroup"
	rpcAddMember       = "Messenger.AddMember"
	rpcRemoveMember    = "Messenger.RemoveMember"
	rpcChatImage       = "Messenger.ChatImage"
	rpcSetChatImage    = "Messenger.SetChatImage"
	rpcDeleteChatImage = "Messenger.DeleteChatImage"
	rpcJoinQR          = "Messenger.JoinQR"
	rpcSendMessage     = "Messenger.SendMessage"
	rpcNextEvent       = "Messenger.NextEvent"
)

// ChatArgs addresses a single chat.
type ChatArgs struct {
	ChatID int64
}

// MemberArgs addresses a member within a chat.
type MemberArgs struct {
	ChatID int64
	Addr   string
}

// AddrArgs addresses a contact.
type AddrArgs struct {
	Addr string
}

// CreateGroupArgs names a new group chat and its initial member list.
type CreateGroupArgs struct {
	Name    string
	Members []string
}

// ImageArgs carries a profile image reference for a chat.
type ImageArgs struct {
	ChatID int64
	Image  string
}

// Client talks to the out-of-process messaging core over JSON-RPC. It
// implements Substrate; transport correctness is the substrate's concern.
type Client struct {
	rpc      rpcCaller
	selfAddr string
}

// Dial connects to the messaging core at addr and resolves the bot's own
// address.
func Dial(ctx context.Context, addr string) (*Client, error) {
	if addr == "" {
		return nil, errors.New("substrate address is required")
	}

	conn, err := dialRPC(addr)
	if err != nil {
		return nil, fmt.Errorf("dial substrate: %w", err)
	}

	client := &Client{rpc: conn}

	var self string
	if err := client.call(ctx, rpcSelfAddr, struct{}{}, &self); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("resolve self address: %w", err)
	}
	if self == "" {
		_ = conn.Close()
		return nil, errors.New("substrate reported an empty self address")
	}
	client.selfAddr = self

	return client, nil
}

// SelfAddr returns the bot's own address, resolved at dial time.
func (c *Client) SelfAddr() string {
	return c.selfAddr
}

// ChatName returns the display name of a chat.
func (c *Client) ChatName(ctx context.Context, chatID int64) (string, error) {
	var name string
	if err := c.call(ctx, rpcChatName, ChatArgs{ChatID: chatID}, &name); err != nil {
		return "", fmt.Errorf("chat name %d: %w", chatID, err)
	}
	return name, nil
}

// ChatIsGroup reports whether a chat is a multi-member group chat.
func (c *Client) ChatIsGroup(ctx context.Context, chatID int64) (bool, error) {
	var isGroup bool
	if err := c.call(ctx, rpcChatIsGroup, ChatArgs{ChatID: chatID}, &isGroup); err != nil {
		return false, fmt.Errorf("chat is group %d: %w", chatID, err)
	}
	return isGroup, nil
}

// DirectChat returns the id of the bot's 1:1 chat with addr, creating it when
// necessary.
func (c *Client) DirectChat(ctx context.Context, addr string) (int64, error) {
	var chatID int64
	if err := c.call(ctx, rpcDirectChat, AddrArgs{Addr: addr}, &chatID); err != nil {
		return 0, fmt.Errorf("direct chat with %s: %w", addr, err)
	}
	return chatID, nil
}

// ChatMembers enumerates the live members of a chat.
func (c *Client) ChatMembers(ctx context.Context, chatID int64) ([]Contact, error) {
	var members []Contact
	if err := c.call(ctx, rpcChatMembers, ChatArgs{ChatID: chatID}, &members); err != nil {
		return nil, fmt.Errorf("chat members %d: %w", chatID, err)
	}
	return members, nil
}

// CreateGroup creates a new group chat with the given initial members.
func (c *Client) CreateGroup(ctx context.Context, name string, members []string) (int64, error) {
	var chatID int64
	if err := c.call(ctx, rpcCreateGroup, CreateGroupArgs{Name: name, Members: members}, &chatID); err != nil {
		return 0, fmt.Errorf("create group %q: %w", name, err)
	}
	return chatID, nil
}

// AddMember adds a member to a chat.
func (c *Client) AddMember(ctx context.Context, chatID int64, addr string) error {
	var ok bool
	if err := c.call(ctx, rpcAddMember, MemberArgs{ChatID: chatID, Addr: addr}, &ok); err != nil {
		return fmt.Errorf("add member %s to %d: %w", addr, chatID, err)
	}
	return nil
}

// RemoveMember removes a member from a chat.
func (c *Client) RemoveMember(ctx context.Context, chatID int64, addr string) error {
	var ok bool
	if err := c.call(ctx, rpcRemoveMember, MemberArgs{ChatID: chatID, Addr: addr}, &ok); err != nil {
		return fmt.Errorf("remove member %s from %d: %w", addr, chatID, err)
	}
	return nil
}

// ChatImage returns a reference to the chat's profile image.
func (c *Client) ChatImage(ctx context.Context, chatID int64) (string, error) {
	var image string
	if err := c.call(ctx, rpcChatImage, ChatArgs{ChatID: chatID}, &image); err != nil {
		return "", fmt.Errorf("chat image %d: %w", chatID, err)
	}
	return image, nil
}

// SetChatImage sets the chat's profile image.
func (c *Client) SetChatImage(ctx context.Context, chatID int64, image string) error {
	var ok bool
	if err := c.call(ctx, rpcSetChatImage, ImageArgs{ChatID: chatID, Image: image}, &ok); err != nil {
		return fmt.Errorf("set chat image %d: %w", chatID, err)
	}
	return nil
}

// DeleteChatImage clears the chat's profile image.
func (c *Client) DeleteChatImage(ctx context.Context, chatID int64) error {
	var ok bool
	if err := c.call(ctx, rpcDeleteChatImage, ChatArgs{ChatID: chatID}, &ok); err != nil {
		return fmt.Errorf("delete chat image %d: %w", chatID, err)
	}
	return nil
}

// JoinQR returns the chat's join-invite payload.
func (c *Client) JoinQR(ctx context.Context, chatID int64) (string, error) {
	var payload string
	if err := c.call(ctx, rpcJoinQR, ChatArgs{ChatID: chatID}, &payload); err != nil {
		return "", fmt.Errorf("join qr %d: %w", chatID, err)
	}
	return payload, nil
}

// SendMessage delivers a message to a chat.
func (c *Client) SendMessage(ctx context.Context, msg Outgoing) error {
	var ok bool
	if err := c.call(ctx, rpcSendMessage, msg, &ok); err != nil {
		return fmt.Errorf("send message to %d: %w", msg.ChatID, err)
	}
	return nil
}

// NextEvent blocks until the substrate reports the next callback. The call is
// aborted when ctx is canceled.
func (c *Client) NextEvent(ctx context.Context) (Event, error) {
	var event Event
	if err := c.call(ctx, rpcNextEvent, struct{}{}, &event); err != nil {
		return Event{}, fmt.Errorf("next event: %w", err)
	}
	return event, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.rpc == nil {
		return nil
	}
	return c.rpc.Close()
}

func (c *Client) call(ctx context.Context, method string, args, reply interface{}) error {
	if c == nil || c.rpc == nil {
		return errors.New("substrate client is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	call := c.rpc.Go(method, args, reply, make(chan *rpc.Call, 1))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case done := <-call.Done:
		return done.Error
	}
}
