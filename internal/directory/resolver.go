package directory

import (
	"context"

	"github.com/sirupsen/logrus"

	"group_directory_bot/internal/logging"
	"group_directory_bot/internal/observability"
	"group_directory_bot/internal/substrate"
)

// memberLister is the slice of the substrate the resolver needs to check
// whether a chat is still live and still contains the bot.
type memberLister interface {
	SelfAddr() string
	ChatMembers(ctx context.Context, chatID int64) ([]substrate.Contact, error)
}

// Resolver reconciles stored chat links against substrate-reported live
// membership. Its reads are self-healing: a link whose backing chat no longer
// exists, or no longer contains the bot, is deleted from the store as a side
// effect of listing and never surfaced as an error.
type Resolver struct {
	store  *Store
	chats  memberLister
	logger *logrus.Entry
}

// NewResolver constructs a Resolver over the store and the substrate.
func NewResolver(store *Store, chats memberLister, logger *logrus.Entry) *Resolver {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Resolver{
		store:  store,
		chats:  chats,
		logger: logger,
	}
}

// LiveSubscriberChats returns the chat ids of the channel's live subscriber
// chats, pruning stale links as it walks. With includeAdmin the admin chat is
// listed first; an admin chat that no longer exists removes the whole channel.
func (r *Resolver) LiveSubscriberChats(ctx context.Context, channelID int64, includeAdmin bool) ([]int64, error) {
	chatIDs := make([]int64, 0)

	if includeAdmin {
		channel, err := r.store.GetChannelByID(ctx, channelID)
		if err != nil {
			return nil, err
		}
		if channel != nil {
			if _, live := r.liveMembers(ctx, channel.AdminChatID); live {
				chatIDs = append(chatIDs, channel.AdminChatID)
			} else {
				r.pruneChannel(ctx, channelID)
			}
		}
	}

	links, err := r.store.ListSubscriberChats(ctx, channelID)
	if err != nil {
		return nil, err
	}

	for _, link := range links {
		if _, live := r.liveMembers(ctx, link.ChatID); live {
			chatIDs = append(chatIDs, link.ChatID)
		} else {
			r.pruneSubscriberChat(ctx, link.ChatID)
		}
	}

	return chatIDs, nil
}

// SubscriberCount sums the member counts of the channel's live subscriber
// chats, not counting the bot itself in each.
func (r *Resolver) SubscriberCount(ctx context.Context, channelID int64) (int, error) {
	links, err := r.store.ListSubscriberChats(ctx, channelID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, link := range links {
		members, live := r.liveMembers(ctx, link.ChatID)
		if !live {
			r.pruneSubscriberChat(ctx, link.ChatID)
			continue
		}
		count += len(members) - 1
	}

	return count, nil
}

// LiveGroupMembers returns the live members of a published group. When the
// backing chat no longer exists or no longer contains the bot, the group row
// is pruned and ok is false.
func (r *Resolver) LiveGroupMembers(ctx context.Context, chatID int64) ([]substrate.Contact, bool) {
	members, live := r.liveMembers(ctx, chatID)
	if !live {
		r.pruneGroup(ctx, chatID)
		return nil, false
	}

	return members, true
}

func (r *Resolver) liveMembers(ctx context.Context, chatID int64) ([]substrate.Contact, bool) {
	members, err := r.chats.ChatMembers(ctx, chatID)
	if err != nil {
		return nil, false
	}

	self := r.chats.SelfAddr()
	for _, member := range members {
		if member.Addr == self {
			return members, true
		}
	}

	return nil, false
}

func (r *Resolver) pruneGroup(ctx context.Context, chatID int64) {
	if err := r.store.RemoveGroup(ctx, chatID); err != nil {
		r.logger.WithFields(logging.Fields{
			"event":   "prune_group_failed",
			"chat_id": chatID,
		}).WithError(err).Warn("failed to prune stale group")
		return
	}

	observability.IncStaleLinkPruned("group")
	r.logger.WithFields(logging.Fields{
		"event":   "group_pruned",
		"chat_id": chatID,
	}).Info("pruned stale group")
}

func (r *Resolver) pruneChannel(ctx context.Context, channelID int64) {
	if err := r.store.RemoveChannel(ctx, channelID); err != nil {
		r.logger.WithFields(logging.Fields{
			"event":      "prune_channel_failed",
			"channel_id": channelID,
		}).WithError(err).Warn("failed to prune stale channel")
		return
	}

	observability.IncStaleLinkPruned("channel")
	r.logger.WithFields(logging.Fields{
		"event":      "channel_pruned",
		"channel_id": channelID,
	}).Info("pruned channel with dead admin chat")
}

func (r *Resolver) pruneSubscriberChat(ctx context.Context, chatID int64) {
	if err := r.store.RemoveSubscriberChat(ctx, chatID); err != nil {
		r.logger.WithFields(logging.Fields{
			"event":   "prune_cchat_failed",
			"chat_id": chatID,
		}).WithError(err).Warn("failed to prune stale subscriber chat")
		return
	}

	observability.IncStaleLinkPruned("cchat")
	r.logger.WithFields(logging.Fields{
		"event":   "cchat_pruned",
		"chat_id": chatID,
	}).Info("pruned stale subscriber chat")
}
