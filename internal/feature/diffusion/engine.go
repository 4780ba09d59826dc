// Package diffusion fans out posts made in a channel's admin chat to every
// live subscriber chat. Posts are validated and enqueued on the event path;
// one dedicated worker drains the queue in FIFO order, one post at a time.
package diffusion

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"group_directory_bot/internal/domain"
	"group_directory_bot/internal/logging"
	"group_directory_bot/internal/observability"
	"group_directory_bot/internal/substrate"
)

// Result classifies the outcome of offering a post for diffusion.
type Result int

const (
	// Accepted means the post was enqueued and last_publish updated.
	Accepted Result = iota
	// NotChannel means the chat belongs to no channel; the post is ordinary
	// group traffic.
	NotChannel
	// NotAdminChat means the chat is a subscriber chat; only the admin chat
	// accepts posts.
	NotAdminChat
	// NotMember means the poster is not currently a member of the admin chat.
	NotMember
	// FileTooBig means the attachment exceeds the configured ceiling.
	FileTooBig
)

type directoryStore interface {
	GetChannelByChat(ctx context.Context, chatID int64) (*domain.Channel, error)
	SetChannelLastPub(ctx context.Context, channelID int64, ts time.Time) error
}

type subscriberResolver interface {
	LiveSubscriberChats(ctx context.Context, channelID int64, includeAdmin bool) ([]int64, error)
}

type chatOps interface {
	ChatMembers(ctx context.Context, chatID int64) ([]substrate.Contact, error)
	SendMessage(ctx context.Context, msg substrate.Outgoing) error
}

// post is one queued fan-out unit. The channel is snapshotted at enqueue
// time; the subscriber set is resolved at dequeue time.
type post struct {
	channel domain.Channel
	msg     substrate.Message
}

// Engine validates, queues, and delivers channel posts.
type Engine struct {
	store       directoryStore
	resolver    subscriberResolver
	chats       chatOps
	logger      *logrus.Entry
	queue       *postQueue
	maxFileSize int64
	clock       func() time.Time
}

// NewEngine constructs a diffusion Engine with the given attachment ceiling.
func NewEngine(store directoryStore, resolver subscriberResolver, chats chatOps, maxFileSize int64, logger *logrus.Entry) *Engine {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Engine{
		store:       store,
		resolver:    resolver,
		chats:       chats,
		logger:      logger,
		queue:       newPostQueue(),
		maxFileSize: maxFileSize,
		clock:       time.Now,
	}
}

func (e *Engine) ready(ctx context.Context) error {
	if e == nil || e.store == nil || e.resolver == nil || e.chats == nil {
		return errors.New("diffusion engine is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}

// Publish offers an inbound message for diffusion. On acceptance the
// channel's last_publish is updated and the post queued before the caller is
// acknowledged; delivery happens later on the worker. Rejections report the
// reason without queueing anything.
func (e *Engine) Publish(ctx context.Context, msg substrate.Message) (Result, error) {
	if err := e.ready(ctx); err != nil {
		return NotChannel, err
	}

	channel, err := e.store.GetChannelByChat(ctx, msg.ChatID)
	if err != nil {
		return NotChannel, err
	}
	if channel == nil {
		return NotChannel, nil
	}
	if channel.AdminChatID != msg.ChatID {
		observability.IncPostRejected("not_admin_chat")
		return NotAdminChat, nil
	}

	members, err := e.chats.ChatMembers(ctx, msg.ChatID)
	if err != nil {
		return NotChannel, err
	}
	if !substrate.Contains(members, msg.Sender.Addr) {
		observability.IncPostRejected("not_member")
		return NotMember, nil
	}

	if msg.Filename != "" && msg.FileSize > e.maxFileSize {
		observability.IncPostRejected("file_too_big")
		return FileTooBig, nil
	}

	if err := e.store.SetChannelLastPub(ctx, channel.ID, e.clock()); err != nil {
		return NotChannel, err
	}

	e.queue.push(post{channel: *channel, msg: msg})
	observability.IncPostEnqueued()
	observability.SetQueueDepth(e.queue.len())

	e.logger.WithFields(logging.Fields{
		"event":      "post_enqueued",
		"channel_id": channel.ID,
		"addr":       msg.Sender.Addr,
	}).Info("channel post accepted")

	return Accepted, nil
}

// MaxFileSize returns the configured attachment ceiling, for user-facing
// rejection messages.
func (e *Engine) MaxFileSize() int64 {
	return e.maxFileSize
}

// Run drains the queue until ctx is canceled. It is the process-lifetime
// worker: an error while handling one post is logged and the next post is
// taken up.
func (e *Engine) Run(ctx context.Context) {
	if e == nil || e.queue == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	go func() {
		<-ctx.Done()
		e.queue.close()
	}()

	e.logger.WithField("event", "diffusion_worker_started").Info("diffusion worker running")

	for {
		item, ok := e.queue.pop()
		if !ok {
			e.logger.WithField("event", "diffusion_worker_stopped").Info("diffusion worker stopped")
			return
		}

		observability.SetQueueDepth(e.queue.len())
		e.deliver(ctx, item)
	}
}

// deliver fans one post out to the subscriber chats live right now. A
// failure on one chat never affects the others.
func (e *Engine) deliver(ctx context.Context, item post) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithFields(logging.Fields{
				"event":      "diffusion_panic",
				"channel_id": item.channel.ID,
				"panic":      r,
			}).Error("recovered from diffusion failure")
		}
	}()

	chatIDs, err := e.resolver.LiveSubscriberChats(ctx, item.channel.ID, false)
	if err != nil {
		e.logger.WithFields(logging.Fields{
			"event":      "diffusion_resolve_failed",
			"channel_id": item.channel.ID,
		}).WithError(err).Error("failed to resolve subscriber chats")
		return
	}

	sender := item.msg.Sender.DisplayName()
	if sender == "" {
		sender = item.channel.Name
	}

	for _, chatID := range chatIDs {
		out := substrate.Outgoing{
			ChatID:     chatID,
			Text:       item.msg.Text,
			HTML:       item.msg.HTML,
			Filename:   item.msg.Filename,
			ViewType:   item.msg.ViewType,
			QuoteID:    item.msg.QuoteID,
			SenderName: sender,
		}

		if err := e.chats.SendMessage(ctx, out); err != nil {
			observability.IncDelivery("error")
			e.logger.WithFields(logging.Fields{
				"event":      "delivery_failed",
				"chat_id":    chatID,
				"channel_id": item.channel.ID,
			}).WithError(err).Warn("failed to deliver post to subscriber chat")
			continue
		}

		observability.IncDelivery("ok")
	}
}
