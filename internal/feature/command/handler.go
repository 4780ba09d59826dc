// Package command implements the user-facing directory surface: the
// /group_* commands plus the plain-message path that feeds channel posts to
// the diffusion engine and activity markers to the membership engine.
package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"group_directory_bot/internal/config"
	"group_directory_bot/internal/domain"
	"group_directory_bot/internal/feature/diffusion"
	"group_directory_bot/internal/logging"
	"group_directory_bot/internal/substrate"
)

// User-facing reply texts.
const (
	replyInvalidID        = "❌ Invalid ID"
	replyNotAGroup        = "❌ This is not a group"
	replyEmptyList        = "❌ Empty List"
	replyEmptyMemberList  = "Empty list"
	replyGroupFull        = "❌ Group is full"
	replyPublished        = "✔️Published"
	replyChannelCreated   = "✔️Channel created"
	replyOperatorsOnly    = "❌ Only channel operators can do that."
	replyNeedChannelName  = "❌ You must provide a channel name"
	replyDuplicateChannel = "❌ There is already a channel with that name"
	replyNotChannelMember = "❌ You are not a member of that channel"
	replyNotGroupMember   = "❌ You are not a member of that group"
	replyCannotRemoveBot  = "❌ You can not remove me from the group"
)

type directoryStore interface {
	UpsertGroup(ctx context.Context, chatID int64, topic string) error
	GetGroup(ctx context.Context, chatID int64) (*domain.Group, error)
	ListGroups(ctx context.Context) ([]domain.Group, error)
	AddChannel(ctx context.Context, name, topic string, adminChatID int64) (*domain.Channel, error)
	GetChannelByID(ctx context.Context, channelID int64) (*domain.Channel, error)
	GetChannelByName(ctx context.Context, name string) (*domain.Channel, error)
	GetChannelByChat(ctx context.Context, chatID int64) (*domain.Channel, error)
	ListChannels(ctx context.Context) ([]domain.Channel, error)
	SetChannelTopic(ctx context.Context, channelID int64, topic string) error
	AddSubscriberChat(ctx context.Context, chatID, channelID int64) error
}

type subscriberResolver interface {
	LiveSubscriberChats(ctx context.Context, channelID int64, includeAdmin bool) ([]int64, error)
	SubscriberCount(ctx context.Context, channelID int64) (int, error)
	LiveGroupMembers(ctx context.Context, chatID int64) ([]substrate.Contact, bool)
}

type publisher interface {
	Publish(ctx context.Context, msg substrate.Message) (diffusion.Result, error)
	MaxFileSize() int64
}

type activityTracker interface {
	TrackActivity(ctx context.Context, chatID int64, addr string) error
}

// Handler routes inbound messages: /group_* commands are executed, anything
// else is offered to the diffusion engine and, failing that, counted as
// group activity.
type Handler struct {
	store     directoryStore
	resolver  subscriberResolver
	chats     substrate.Substrate
	publisher publisher
	activity  activityTracker
	cfg       config.Config
	logger    *logrus.Entry
}

// NewHandler constructs a command Handler.
func NewHandler(store directoryStore, resolver subscriberResolver, chats substrate.Substrate, publisher publisher, activity activityTracker, cfg config.Config, logger *logrus.Entry) *Handler {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Handler{
		store:     store,
		resolver:  resolver,
		chats:     chats,
		publisher: publisher,
		activity:  activity,
		cfg:       cfg,
		logger:    logger,
	}
}

func (h *Handler) ready(ctx context.Context) error {
	if h == nil || h.store == nil || h.resolver == nil || h.chats == nil || h.publisher == nil || h.activity == nil {
		return errors.New("command handler is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}

// HandleMessage processes one inbound message. The bot's own traffic is
// ignored.
func (h *Handler) HandleMessage(ctx context.Context, msg substrate.Message) error {
	if err := h.ready(ctx); err != nil {
		return err
	}

	if msg.Sender.Addr == "" || msg.Sender.Addr == h.chats.SelfAddr() {
		return nil
	}

	if name, args, ok := parseCommand(msg.Text); ok {
		h.logger.WithFields(logging.Fields{
			"event":   "command_received",
			"command": name,
			"addr":    msg.Sender.Addr,
			"chat_id": msg.ChatID,
		}).Info("dispatching command")
		return h.runCommand(ctx, name, args, msg)
	}

	return h.handlePlainMessage(ctx, msg)
}

// handlePlainMessage offers the message for diffusion; messages outside any
// channel are counted as group activity instead.
func (h *Handler) handlePlainMessage(ctx context.Context, msg substrate.Message) error {
	result, err := h.publisher.Publish(ctx, msg)
	if err != nil {
		return err
	}

	switch result {
	case diffusion.Accepted:
		return h.chats.SendMessage(ctx, substrate.Outgoing{
			ChatID:  msg.ChatID,
			Text:    replyPublished,
			QuoteID: msg.ID,
		})
	case diffusion.FileTooBig:
		text := fmt.Sprintf("❌ File too big, up to %d Bytes are allowed", h.publisher.MaxFileSize())
		return h.reply(ctx, msg.ChatID, text)
	case diffusion.NotAdminChat:
		return h.reply(ctx, msg.ChatID, replyOperatorsOnly)
	case diffusion.NotMember:
		return nil
	default:
		return h.activity.TrackActivity(ctx, msg.ChatID, msg.Sender.Addr)
	}
}

func (h *Handler) runCommand(ctx context.Context, name string, args []string, msg substrate.Message) error {
	switch name {
	case "group_info":
		return h.cmdInfo(ctx, msg)
	case "group_list":
		return h.cmdList(ctx, msg)
	case "group_me":
		return h.cmdMe(ctx, msg)
	case "group_join":
		return h.cmdJoin(ctx, args, msg)
	case "group_adminchan":
		return h.cmdAdminChan(ctx, args, msg)
	case "group_topic":
		return h.cmdTopic(ctx, args, msg)
	case "group_remove":
		return h.cmdRemove(ctx, args, msg)
	case "group_chan":
		return h.cmdChan(ctx, strings.Join(args, " "), msg)
	default:
		return nil
	}
}

// cmdInfo shows the group/channel card of the chat the command was sent in.
// An untracked group is published on the spot when groups are allowed.
func (h *Handler) cmdInfo(ctx context.Context, msg substrate.Message) error {
	isGroup, err := h.chats.ChatIsGroup(ctx, msg.ChatID)
	if err != nil {
		return err
	}
	if !isGroup {
		return h.reply(ctx, msg.ChatID, replyNotAGroup)
	}

	channel, err := h.store.GetChannelByChat(ctx, msg.ChatID)
	if err != nil {
		return err
	}
	if channel != nil {
		count, err := h.resolver.SubscriberCount(ctx, channel.ID)
		if err != nil {
			return err
		}
		return h.reply(ctx, msg.ChatID, infoText(channel.Name, count, channel.Topic, "c", channel.ID))
	}

	group, err := h.store.GetGroup(ctx, msg.ChatID)
	if err != nil {
		return err
	}
	if group == nil {
		registered, err := h.registerGroup(ctx, msg.ChatID, msg.Sender.Addr)
		if err != nil || !registered {
			return err
		}
		group = &domain.Group{ChatID: msg.ChatID}
	}

	name, err := h.chats.ChatName(ctx, group.ChatID)
	if err != nil {
		return err
	}
	members, err := h.chats.ChatMembers(ctx, group.ChatID)
	if err != nil {
		return err
	}

	out := substrate.Outgoing{
		ChatID:   msg.ChatID,
		Text:     infoText(name, len(members), group.Topic, "g", group.ChatID),
		ViewType: "image",
	}

	payload, err := h.chats.JoinQR(ctx, group.ChatID)
	if err != nil {
		return err
	}
	if out.Filename, err = writeJoinQR(payload); err != nil {
		return err
	}

	return h.chats.SendMessage(ctx, out)
}

// cmdList renders the public directory: one HTML card list for groups, one
// for channels, both sorted by member count.
func (h *Handler) cmdList(ctx context.Context, msg substrate.Message) error {
	self := h.chats.SelfAddr()

	groups, err := h.store.ListGroups(ctx)
	if err != nil {
		return err
	}

	groupCards := make([]card, 0, len(groups))
	for _, group := range groups {
		members, live := h.resolver.LiveGroupMembers(ctx, group.ChatID)
		if !live {
			continue
		}
		name, err := h.chats.ChatName(ctx, group.ChatID)
		if err != nil {
			continue
		}
		groupCards = append(groupCards, card{
			Name:    name,
			Topic:   topicOrDash(group.Topic),
			ID:      fmt.Sprintf("g%d", group.ChatID),
			BotAddr: self,
			Count:   len(members),
		})
	}

	channels, err := h.store.ListChannels(ctx)
	if err != nil {
		return err
	}

	channelCards := make([]card, 0, len(channels))
	for _, channel := range channels {
		count, err := h.resolver.SubscriberCount(ctx, channel.ID)
		if err != nil {
			return err
		}
		lastPub := "-"
		if !channel.LastPub.IsZero() {
			lastPub = channel.LastPub.UTC().Format("02-01-2006")
		}
		channelCards = append(channelCards, card{
			Name:    channel.Name,
			Topic:   topicOrDash(channel.Topic),
			ID:      fmt.Sprintf("c%d", channel.ID),
			LastPub: lastPub,
			BotAddr: self,
			Count:   count,
		})
	}

	if len(groupCards) == 0 && len(channelCards) == 0 {
		return h.reply(ctx, msg.ChatID, replyEmptyList)
	}

	if len(groupCards) > 0 {
		sortCards(groupCards)
		html, err := renderCardList(groupCards)
		if err != nil {
			return err
		}
		out := substrate.Outgoing{
			ChatID: msg.ChatID,
			Text:   fmt.Sprintf("⬇️ Groups (%d) ⬇️", len(groupCards)),
			HTML:   html,
		}
		if err := h.chats.SendMessage(ctx, out); err != nil {
			return err
		}
	}

	if len(channelCards) > 0 {
		sortCards(channelCards)
		html, err := renderCardList(channelCards)
		if err != nil {
			return err
		}
		out := substrate.Outgoing{
			ChatID: msg.ChatID,
			Text:   fmt.Sprintf("⬇️ Channels (%d) ⬇️", len(channelCards)),
			HTML:   html,
		}
		if err := h.chats.SendMessage(ctx, out); err != nil {
			return err
		}
	}

	return nil
}

// cmdMe lists the groups and channels the sender is a member of, each with a
// ready-made leave command.
func (h *Handler) cmdMe(ctx context.Context, msg substrate.Message) error {
	var entries []string

	groups, err := h.store.ListGroups(ctx)
	if err != nil {
		return err
	}
	for _, group := range groups {
		members, live := h.resolver.LiveGroupMembers(ctx, group.ChatID)
		if !live || !substrate.Contains(members, msg.Sender.Addr) {
			continue
		}
		name, err := h.chats.ChatName(ctx, group.ChatID)
		if err != nil {
			continue
		}
		entries = append(entries, fmt.Sprintf("%s:\n⬅️ /group_remove_g%d\n\n", name, group.ChatID))
	}

	channels, err := h.store.ListChannels(ctx)
	if err != nil {
		return err
	}
	for _, channel := range channels {
		chatIDs, err := h.resolver.LiveSubscriberChats(ctx, channel.ID, false)
		if err != nil {
			return err
		}
		for _, chatID := range chatIDs {
			members, err := h.chats.ChatMembers(ctx, chatID)
			if err != nil {
				continue
			}
			if substrate.Contains(members, msg.Sender.Addr) {
				entries = append(entries, fmt.Sprintf("%s:\n⬅️ /group_remove_c%d\n\n", channel.Name, channel.ID))
				break
			}
		}
	}

	if len(entries) == 0 {
		return h.reply(ctx, msg.ChatID, replyEmptyMemberList)
	}

	return h.reply(ctx, msg.ChatID, strings.Join(entries, ""))
}

// cmdJoin adds the sender to the group or channel named by a g<id>/c<id>
// argument. Group joins add the sender directly; channel joins create a
// fresh subscriber chat.
func (h *Handler) cmdJoin(ctx context.Context, args []string, msg substrate.Message) error {
	kind, id, ok := parseDirectoryID(args)
	if !ok {
		return h.reply(ctx, msg.ChatID, replyInvalidID)
	}

	switch kind {
	case "g":
		return h.joinGroup(ctx, id, msg)
	case "c":
		return h.joinChannel(ctx, id, msg)
	default:
		return h.reply(ctx, msg.ChatID, replyInvalidID)
	}
}

func (h *Handler) joinGroup(ctx context.Context, chatID int64, msg substrate.Message) error {
	group, err := h.store.GetGroup(ctx, chatID)
	if err != nil {
		return err
	}
	if group == nil {
		return h.reply(ctx, msg.ChatID, replyInvalidID)
	}

	members, err := h.chats.ChatMembers(ctx, group.ChatID)
	if err != nil {
		return err
	}

	if substrate.Contains(members, msg.Sender.Addr) {
		text := fmt.Sprintf("❌ %s, you are already a member of this group", msg.Sender.Addr)
		return h.reply(ctx, group.ChatID, text)
	}

	if len(members) >= h.cfg.MaxGroupSize && !h.cfg.IsOperator(msg.Sender.Addr) {
		return h.reply(ctx, msg.ChatID, replyGroupFull)
	}

	if err := h.chats.AddMember(ctx, group.ChatID, msg.Sender.Addr); err != nil {
		return err
	}

	name, err := h.chats.ChatName(ctx, group.ChatID)
	if err != nil {
		return err
	}

	return h.replyDirect(ctx, msg.Sender.Addr, joinedText(name, group.Topic, "g", group.ChatID))
}

func (h *Handler) joinChannel(ctx context.Context, channelID int64, msg substrate.Message) error {
	channel, err := h.store.GetChannelByID(ctx, channelID)
	if err != nil {
		return err
	}
	if channel == nil {
		return h.reply(ctx, msg.ChatID, replyInvalidID)
	}

	chatIDs, err := h.resolver.LiveSubscriberChats(ctx, channel.ID, true)
	if err != nil {
		return err
	}
	for _, chatID := range chatIDs {
		members, err := h.chats.ChatMembers(ctx, chatID)
		if err != nil {
			continue
		}
		if substrate.Contains(members, msg.Sender.Addr) {
			text := fmt.Sprintf("❌ %s, you are already a member of this channel", msg.Sender.Addr)
			return h.reply(ctx, chatID, text)
		}
	}

	subChatID, err := h.chats.CreateGroup(ctx, channel.Name, []string{msg.Sender.Addr})
	if err != nil {
		return err
	}
	if err := h.store.AddSubscriberChat(ctx, subChatID, channel.ID); err != nil {
		return err
	}

	if image, err := h.chats.ChatImage(ctx, channel.AdminChatID); err == nil && image != "" {
		if err := h.chats.SetChatImage(ctx, subChatID, image); err != nil {
			h.logger.WithFields(logging.Fields{
				"event":      "join_image_failed",
				"chat_id":    subChatID,
				"channel_id": channel.ID,
			}).WithError(err).Warn("failed to copy channel image to subscriber chat")
		}
	}

	return h.reply(ctx, subChatID, joinedText(channel.Name, channel.Topic, "c", channel.ID))
}

// cmdAdminChan adds a bot operator to a channel's admin chat. Non-operators
// are ignored, matching the behavior of an unknown command.
func (h *Handler) cmdAdminChan(ctx context.Context, args []string, msg substrate.Message) error {
	if !h.cfg.IsOperator(msg.Sender.Addr) {
		return nil
	}

	if len(args) == 0 {
		return h.reply(ctx, msg.ChatID, replyInvalidID)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return h.reply(ctx, msg.ChatID, replyInvalidID)
	}

	channel, err := h.store.GetChannelByID(ctx, id)
	if err != nil {
		return err
	}
	if channel == nil {
		return h.reply(ctx, msg.ChatID, replyInvalidID)
	}

	if err := h.chats.AddMember(ctx, channel.AdminChatID, msg.Sender.Addr); err != nil {
		return err
	}

	text := fmt.Sprintf("%s\n\n%s", channel.Name, topicOrDash(channel.Topic))
	return h.replyDirect(ctx, msg.Sender.Addr, text)
}

// cmdTopic shows the chat's topic, or sets it when arguments are given.
// Channel topics change only from the admin chat and are announced to every
// live subscriber chat.
func (h *Handler) cmdTopic(ctx context.Context, args []string, msg substrate.Message) error {
	isGroup, err := h.chats.ChatIsGroup(ctx, msg.ChatID)
	if err != nil {
		return err
	}
	if !isGroup {
		return h.reply(ctx, msg.ChatID, replyNotAGroup)
	}

	if len(args) == 0 {
		return h.showTopic(ctx, msg)
	}

	topic := truncateTopic(strings.Join(args, " "), h.cfg.MaxTopicSize)

	channel, err := h.store.GetChannelByChat(ctx, msg.ChatID)
	if err != nil {
		return err
	}
	if channel != nil {
		if channel.AdminChatID != msg.ChatID {
			return h.reply(ctx, msg.ChatID, replyOperatorsOnly)
		}
		return h.setChannelTopic(ctx, channel, topic, msg)
	}

	group, err := h.store.GetGroup(ctx, msg.ChatID)
	if err != nil {
		return err
	}
	if group == nil {
		registered, err := h.registerGroup(ctx, msg.ChatID, msg.Sender.Addr)
		if err != nil || !registered {
			return err
		}
	}

	if err := h.store.UpsertGroup(ctx, msg.ChatID, topic); err != nil {
		return err
	}

	return h.reply(ctx, msg.ChatID, topicChangedText(msg.Sender.Addr, topic))
}

func (h *Handler) showTopic(ctx context.Context, msg substrate.Message) error {
	var topic string

	channel, err := h.store.GetChannelByChat(ctx, msg.ChatID)
	if err != nil {
		return err
	}
	if channel != nil {
		topic = channel.Topic
	} else {
		group, err := h.store.GetGroup(ctx, msg.ChatID)
		if err != nil {
			return err
		}
		if group == nil {
			registered, err := h.registerGroup(ctx, msg.ChatID, msg.Sender.Addr)
			if err != nil || !registered {
				return err
			}
			group = &domain.Group{ChatID: msg.ChatID}
		}
		topic = group.Topic
	}

	return h.chats.SendMessage(ctx, substrate.Outgoing{
		ChatID:  msg.ChatID,
		Text:    topicOrDash(topic),
		QuoteID: msg.ID,
	})
}

func (h *Handler) setChannelTopic(ctx context.Context, channel *domain.Channel, topic string, msg substrate.Message) error {
	if err := h.store.SetChannelTopic(ctx, channel.ID, topic); err != nil {
		return err
	}

	label := msg.Sender.DisplayName()
	if label == "" {
		label = msg.Sender.Addr
	}
	text := topicChangedText(label, topic)

	chatIDs, err := h.resolver.LiveSubscriberChats(ctx, channel.ID, false)
	if err != nil {
		return err
	}
	for _, chatID := range chatIDs {
		if err := h.reply(ctx, chatID, text); err != nil {
			h.logger.WithFields(logging.Fields{
				"event":      "topic_announce_failed",
				"chat_id":    chatID,
				"channel_id": channel.ID,
			}).WithError(err).Warn("failed to announce topic change")
		}
	}

	return h.reply(ctx, msg.ChatID, text)
}

// cmdRemove leaves a group/channel, or, for groups, removes another member
// when their address is given.
func (h *Handler) cmdRemove(ctx context.Context, args []string, msg substrate.Message) error {
	kind, id, ok := parseDirectoryID(args)
	if !ok {
		return h.reply(ctx, msg.ChatID, replyInvalidID)
	}

	switch kind {
	case "c":
		return h.leaveChannel(ctx, id, msg)
	case "g":
		return h.removeFromGroup(ctx, id, args, msg)
	default:
		return h.reply(ctx, msg.ChatID, replyInvalidID)
	}
}

func (h *Handler) leaveChannel(ctx context.Context, channelID int64, msg substrate.Message) error {
	channel, err := h.store.GetChannelByID(ctx, channelID)
	if err != nil {
		return err
	}
	if channel == nil {
		return h.reply(ctx, msg.ChatID, replyInvalidID)
	}

	chatIDs, err := h.resolver.LiveSubscriberChats(ctx, channel.ID, true)
	if err != nil {
		return err
	}
	for _, chatID := range chatIDs {
		members, err := h.chats.ChatMembers(ctx, chatID)
		if err != nil {
			continue
		}
		if substrate.Contains(members, msg.Sender.Addr) {
			return h.chats.RemoveMember(ctx, chatID, msg.Sender.Addr)
		}
	}

	return h.reply(ctx, msg.ChatID, replyNotChannelMember)
}

func (h *Handler) removeFromGroup(ctx context.Context, chatID int64, args []string, msg substrate.Message) error {
	group, err := h.store.GetGroup(ctx, chatID)
	if err != nil {
		return err
	}
	if group == nil {
		return h.reply(ctx, msg.ChatID, replyInvalidID)
	}

	members, err := h.chats.ChatMembers(ctx, group.ChatID)
	if err != nil {
		return err
	}
	if !substrate.Contains(members, msg.Sender.Addr) {
		return h.reply(ctx, msg.ChatID, replyNotGroupMember)
	}

	target := ""
	if last := args[len(args)-1]; strings.Contains(last, "@") {
		target = last
	}

	if target == "" {
		return h.chats.RemoveMember(ctx, group.ChatID, msg.Sender.Addr)
	}

	if target == h.chats.SelfAddr() {
		return h.reply(ctx, msg.ChatID, replyCannotRemoveBot)
	}

	if err := h.chats.RemoveMember(ctx, group.ChatID, target); err != nil {
		return err
	}

	name, err := h.chats.ChatName(ctx, group.ChatID)
	if err == nil {
		notice := fmt.Sprintf("❌ Removed from %s by %s", name, msg.Sender.Addr)
		if err := h.replyDirect(ctx, target, notice); err != nil {
			h.logger.WithFields(logging.Fields{
				"event":   "removal_notice_failed",
				"addr":    target,
				"chat_id": group.ChatID,
			}).WithError(err).Warn("failed to notify removed member")
		}
	}

	return h.reply(ctx, msg.ChatID, fmt.Sprintf("✔️%s removed", target))
}

// cmdChan creates a channel with the given name. The sender becomes the
// first member of its admin chat.
func (h *Handler) cmdChan(ctx context.Context, name string, msg substrate.Message) error {
	if !h.cfg.AllowChannels && !h.cfg.IsOperator(msg.Sender.Addr) {
		return nil
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return h.reply(ctx, msg.ChatID, replyNeedChannelName)
	}

	existing, err := h.store.GetChannelByName(ctx, name)
	if err != nil {
		return err
	}
	if existing != nil {
		return h.reply(ctx, msg.ChatID, replyDuplicateChannel)
	}

	adminChatID, err := h.chats.CreateGroup(ctx, name, []string{msg.Sender.Addr})
	if err != nil {
		return err
	}

	channel, err := h.store.AddChannel(ctx, name, "", adminChatID)
	if err != nil {
		return err
	}

	h.logger.WithFields(logging.Fields{
		"event":      "channel_created",
		"channel_id": channel.ID,
		"name":       channel.Name,
		"addr":       msg.Sender.Addr,
	}).Info("channel created")

	return h.reply(ctx, adminChatID, replyChannelCreated)
}

// registerGroup publishes an untracked group when groups are allowed or the
// sender is an operator. When neither holds the bot leaves the chat instead
// and the group stays untracked.
func (h *Handler) registerGroup(ctx context.Context, chatID int64, senderAddr string) (bool, error) {
	if h.cfg.AllowGroups || h.cfg.IsOperator(senderAddr) {
		if err := h.store.UpsertGroup(ctx, chatID, ""); err != nil {
			return false, err
		}
		h.logger.WithFields(logging.Fields{
			"event":   "group_published",
			"chat_id": chatID,
			"addr":    senderAddr,
		}).Info("group published to directory")
		return true, nil
	}

	return false, h.chats.RemoveMember(ctx, chatID, h.chats.SelfAddr())
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) error {
	return h.chats.SendMessage(ctx, substrate.Outgoing{ChatID: chatID, Text: text})
}

func (h *Handler) replyDirect(ctx context.Context, addr, text string) error {
	chatID, err := h.chats.DirectChat(ctx, addr)
	if err != nil {
		return err
	}
	return h.reply(ctx, chatID, text)
}

// commandNames is ordered longest-first so prefix matching never picks
// group_chan for a group_adminchan message.
var commandNames = []string{
	"group_adminchan",
	"group_remove",
	"group_topic",
	"group_join",
	"group_list",
	"group_info",
	"group_chan",
	"group_me",
}

// parseCommand recognizes /group_* commands. Arguments may be joined to the
// command with underscores (/group_join_g5) or separated by spaces
// (/group_join g5); both forms yield the same args.
func parseCommand(text string) (string, []string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/group_") {
		return "", nil, false
	}

	token := strings.TrimPrefix(fields[0], "/")
	for _, name := range commandNames {
		if token != name && !strings.HasPrefix(token, name+"_") {
			continue
		}

		var args []string
		if rest := strings.TrimPrefix(token, name); strings.HasPrefix(rest, "_") {
			args = append(args, rest[1:])
		}
		args = append(args, fields[1:]...)

		return name, args, true
	}

	return "", nil, false
}

// parseDirectoryID extracts the kind ("g" or "c") and numeric id from the
// first argument.
func parseDirectoryID(args []string) (string, int64, bool) {
	if len(args) == 0 || len(args[0]) < 2 {
		return "", 0, false
	}

	kind := args[0][:1]
	if kind != "g" && kind != "c" {
		return "", 0, false
	}

	id, err := strconv.ParseInt(args[0][1:], 10, 64)
	if err != nil {
		return "", 0, false
	}

	return kind, id, true
}

func infoText(name string, count int, topic, kind string, id int64) string {
	return fmt.Sprintf("%s\n👤 %d\n%s\n\n⬅️ /group_remove_%s%d\n➡️ /group_join_%s%d",
		name, count, topicOrDash(topic), kind, id, kind, id)
}

func joinedText(name, topic, kind string, id int64) string {
	return fmt.Sprintf("%s\n\n%s\n\n⬅️ /group_remove_%s%d", name, topicOrDash(topic), kind, id)
}

func topicChangedText(who, topic string) string {
	return fmt.Sprintf("** %s changed topic to:\n%s", who, topic)
}

func topicOrDash(topic string) string {
	if topic == "" {
		return "-"
	}
	return topic
}

// truncateTopic caps a topic at max runes, marking the cut with an ellipsis.
func truncateTopic(topic string, max int) string {
	if max <= 0 {
		return topic
	}
	runes := []rune(topic)
	if len(runes) <= max {
		return topic
	}
	return string(runes[:max]) + "..."
}

func sortCards(cards []card) {
	sort.SliceStable(cards, func(i, j int) bool {
		return cards[i].Count > cards[j].Count
	})
}
