// Package membership keeps the directory store consistent with
// substrate-reported membership and presentation changes.
package membership

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"group_directory_bot/internal/domain"
	"group_directory_bot/internal/logging"
	"group_directory_bot/internal/substrate"
)

type directoryStore interface {
	GetGroup(ctx context.Context, chatID int64) (*domain.Group, error)
	RemoveGroup(ctx context.Context, chatID int64) error
	ListGroups(ctx context.Context) ([]domain.Group, error)
	GetChannelByChat(ctx context.Context, chatID int64) (*domain.Channel, error)
	RemoveChannel(ctx context.Context, channelID int64) error
	ListChannels(ctx context.Context) ([]domain.Channel, error)
	RemoveSubscriberChat(ctx context.Context, chatID int64) error
	UpdateLastSeen(ctx context.Context, groupID int64, addr string, ts time.Time) error
	RemoveLastSeen(ctx context.Context, groupID int64, addr string) error
}

type subscriberResolver interface {
	LiveSubscriberChats(ctx context.Context, channelID int64, includeAdmin bool) ([]int64, error)
}

type chatOps interface {
	SelfAddr() string
	ChatMembers(ctx context.Context, chatID int64) ([]substrate.Contact, error)
	RemoveMember(ctx context.Context, chatID int64, addr string) error
	ChatImage(ctx context.Context, chatID int64) (string, error)
	SetChatImage(ctx context.Context, chatID int64, image string) error
	DeleteChatImage(ctx context.Context, chatID int64) error
}

// Engine reacts to membership events. Each chat is in exactly one of four
// states: untracked, public group, channel admin chat, or subscriber chat;
// the handlers move chats between these states and keep the store's rows
// matching what the substrate reports.
type Engine struct {
	store    directoryStore
	resolver subscriberResolver
	chats    chatOps
	logger   *logrus.Entry
	clock    func() time.Time
}

// NewEngine constructs a membership Engine.
func NewEngine(store directoryStore, resolver subscriberResolver, chats chatOps, logger *logrus.Entry) *Engine {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Engine{
		store:    store,
		resolver: resolver,
		chats:    chats,
		logger:   logger,
		clock:    time.Now,
	}
}

func (e *Engine) ready(ctx context.Context) error {
	if e == nil || e.store == nil || e.resolver == nil || e.chats == nil {
		return errors.New("membership engine is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}

// HandleMemberAdded reacts to a member joining a chat. The bot itself joining
// never publishes the chat (publication is opt-in via the command surface);
// a regular member joining a tracked public group gets a fresh activity
// marker.
func (e *Engine) HandleMemberAdded(ctx context.Context, chatID int64, member, actor substrate.Contact) error {
	if err := e.ready(ctx); err != nil {
		return err
	}

	if member.Addr == e.chats.SelfAddr() {
		return nil
	}

	group, err := e.store.GetGroup(ctx, chatID)
	if err != nil {
		return err
	}
	if group == nil {
		return nil
	}

	return e.store.UpdateLastSeen(ctx, chatID, member.Addr, e.clock())
}

// HandleMemberRemoved reacts to a member leaving a chat. Removal of the bot
// itself, or the chat collapsing to a single member, tears the chat down:
// groups are unpublished, channels are dismantled (the bot leaves every live
// subscriber chat best-effort, then the channel row and its links go),
// subscriber chats are unlinked. A regular member leaving a still-live public
// group only loses their activity marker.
func (e *Engine) HandleMemberRemoved(ctx context.Context, chatID int64, member substrate.Contact) error {
	if err := e.ready(ctx); err != nil {
		return err
	}

	self := e.chats.SelfAddr()
	teardown := member.Addr == self
	if !teardown {
		members, err := e.chats.ChatMembers(ctx, chatID)
		if err != nil || len(members) <= 1 {
			teardown = true
		}
	}

	if !teardown {
		group, err := e.store.GetGroup(ctx, chatID)
		if err != nil {
			return err
		}
		if group == nil {
			return nil
		}
		return e.store.RemoveLastSeen(ctx, chatID, member.Addr)
	}

	group, err := e.store.GetGroup(ctx, chatID)
	if err != nil {
		return err
	}
	if group != nil {
		e.logger.WithFields(logging.Fields{
			"event":   "group_torn_down",
			"chat_id": chatID,
		}).Info("unpublishing dead group")
		return e.store.RemoveGroup(ctx, chatID)
	}

	channel, err := e.store.GetChannelByChat(ctx, chatID)
	if err != nil {
		return err
	}
	if channel == nil {
		return nil
	}

	if channel.AdminChatID == chatID {
		return e.dismantleChannel(ctx, channel)
	}

	return e.store.RemoveSubscriberChat(ctx, chatID)
}

// HandleImageChanged propagates an admin chat's image change to every live
// subscriber chat. Per-chat failures are logged, never fatal. Image changes
// on chats that are not a channel admin chat are ignored.
func (e *Engine) HandleImageChanged(ctx context.Context, chatID int64, deleted bool) error {
	if err := e.ready(ctx); err != nil {
		return err
	}

	channel, err := e.store.GetChannelByChat(ctx, chatID)
	if err != nil {
		return err
	}
	if channel == nil || channel.AdminChatID != chatID {
		return nil
	}

	var image string
	if !deleted {
		image, err = e.chats.ChatImage(ctx, chatID)
		if err != nil {
			return err
		}
	}

	chatIDs, err := e.resolver.LiveSubscriberChats(ctx, channel.ID, false)
	if err != nil {
		return err
	}

	for _, subChatID := range chatIDs {
		var opErr error
		if deleted {
			opErr = e.chats.DeleteChatImage(ctx, subChatID)
		} else {
			opErr = e.chats.SetChatImage(ctx, subChatID, image)
		}
		if opErr != nil {
			e.logger.WithFields(logging.Fields{
				"event":      "image_propagation_failed",
				"chat_id":    subChatID,
				"channel_id": channel.ID,
			}).WithError(opErr).Warn("failed to propagate channel image")
		}
	}

	return nil
}

// HandleBanned sweeps the banned member out of every public group and every
// channel subscriber chat where both the bot and the member are present.
// Chats that no longer exist are tolerated.
func (e *Engine) HandleBanned(ctx context.Context, member substrate.Contact) error {
	if err := e.ready(ctx); err != nil {
		return err
	}

	self := e.chats.SelfAddr()

	groups, err := e.store.ListGroups(ctx)
	if err != nil {
		return err
	}
	for _, group := range groups {
		members, err := e.chats.ChatMembers(ctx, group.ChatID)
		if err != nil {
			continue
		}
		if substrate.Contains(members, member.Addr) && substrate.Contains(members, self) {
			e.removeBanned(ctx, group.ChatID, member.Addr)
		}
	}

	channels, err := e.store.ListChannels(ctx)
	if err != nil {
		return err
	}
	for _, channel := range channels {
		chatIDs, err := e.resolver.LiveSubscriberChats(ctx, channel.ID, false)
		if err != nil {
			return err
		}
		for _, chatID := range chatIDs {
			members, err := e.chats.ChatMembers(ctx, chatID)
			if err != nil {
				continue
			}
			if substrate.Contains(members, member.Addr) {
				e.removeBanned(ctx, chatID, member.Addr)
			}
		}
	}

	return nil
}

// TrackActivity refreshes the activity marker for a member of a tracked
// public group. Messages in untracked chats, and the bot's own traffic, are
// ignored.
func (e *Engine) TrackActivity(ctx context.Context, chatID int64, addr string) error {
	if err := e.ready(ctx); err != nil {
		return err
	}

	if addr == "" || addr == e.chats.SelfAddr() {
		return nil
	}

	group, err := e.store.GetGroup(ctx, chatID)
	if err != nil {
		return err
	}
	if group == nil {
		return nil
	}

	return e.store.UpdateLastSeen(ctx, chatID, addr, e.clock())
}

func (e *Engine) dismantleChannel(ctx context.Context, channel *domain.Channel) error {
	self := e.chats.SelfAddr()

	chatIDs, err := e.resolver.LiveSubscriberChats(ctx, channel.ID, false)
	if err != nil {
		return err
	}

	for _, chatID := range chatIDs {
		if err := e.chats.RemoveMember(ctx, chatID, self); err != nil {
			e.logger.WithFields(logging.Fields{
				"event":      "channel_leave_failed",
				"chat_id":    chatID,
				"channel_id": channel.ID,
			}).WithError(err).Warn("failed to leave subscriber chat")
		}
	}

	e.logger.WithFields(logging.Fields{
		"event":      "channel_torn_down",
		"channel_id": channel.ID,
		"name":       channel.Name,
	}).Info("removing channel with dead admin chat")

	return e.store.RemoveChannel(ctx, channel.ID)
}

func (e *Engine) removeBanned(ctx context.Context, chatID int64, addr string) {
	if err := e.chats.RemoveMember(ctx, chatID, addr); err != nil {
		e.logger.WithFields(logging.Fields{
			"event":   "ban_removal_failed",
			"chat_id": chatID,
			"addr":    addr,
		}).WithError(err).Warn("failed to remove banned member")
	}
}
