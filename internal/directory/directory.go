// Package directory persists the public-group and broadcast-channel state:
// groups, per-member activity markers, channels, and subscriber chat links.
// The store is the single source of truth; absence of a row is reported as a
// nil result, never as an error, so callers self-heal instead of handling
// missing-row failures.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"group_directory_bot/internal/domain"
)

// channelCounterID is the counters document that allocates channel ids.
const channelCounterID = "channel_id"

// collection captures the subset of mongo.Collection behavior the store
// relies on, allowing fakes in tests built from mongo.NewSingleResultFromDocument
// and mongo.NewCursorFromDocuments.
type collection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// Store owns durability for the four directory entities. Deletes cascade:
// removing a group removes its activity markers, removing a channel removes
// its subscriber chat links.
type Store struct {
	groups    collection
	lastSeens collection
	channels  collection
	cchats    collection
	counters  collection
}

// NewStore constructs a Store over the directory collections.
func NewStore(groups, lastSeens, channels, cchats, counters collection) *Store {
	return &Store{
		groups:    groups,
		lastSeens: lastSeens,
		channels:  channels,
		cchats:    cchats,
		counters:  counters,
	}
}

func (s *Store) ready(ctx context.Context) error {
	if s == nil || s.groups == nil || s.lastSeens == nil || s.channels == nil || s.cchats == nil || s.counters == nil {
		return errors.New("directory store is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}

// ==== groups ====

// UpsertGroup publishes a group or updates its topic. The upsert is
// idempotent; a duplicate publish is harmless.
func (s *Store) UpsertGroup(ctx context.Context, chatID int64, topic string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	update := bson.M{
		"$set":         bson.M{"topic": topic},
		"$setOnInsert": bson.M{"chat_id": chatID},
	}

	if _, err := s.groups.UpdateOne(ctx, bson.M{"chat_id": chatID}, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("upsert group %d: %w", chatID, err)
	}

	return nil
}

// RemoveGroup unpublishes a group, cascading to its activity markers.
// Removing an already-removed group is a no-op.
func (s *Store) RemoveGroup(ctx context.Context, chatID int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	if _, err := s.lastSeens.DeleteMany(ctx, bson.M{"group_id": chatID}); err != nil {
		return fmt.Errorf("cascade lastseens for group %d: %w", chatID, err)
	}

	if _, err := s.groups.DeleteOne(ctx, bson.M{"chat_id": chatID}); err != nil {
		return fmt.Errorf("remove group %d: %w", chatID, err)
	}

	return nil
}

// GetGroup returns the published group for chatID, or nil when the chat is
// not published.
func (s *Store) GetGroup(ctx context.Context, chatID int64) (*domain.Group, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	var group domain.Group
	err := s.groups.FindOne(ctx, bson.M{"chat_id": chatID}).Decode(&group)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find group %d: %w", chatID, err)
	}

	return &group, nil
}

// ListGroups returns a point-in-time snapshot of all published groups.
func (s *Store) ListGroups(ctx context.Context) ([]domain.Group, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	cursor, err := s.groups.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}

	var groups []domain.Group
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("decode groups: %w", err)
	}

	return groups, nil
}

// ==== activity markers ====

// UpdateLastSeen upserts the activity marker for (groupID, addr).
func (s *Store) UpdateLastSeen(ctx context.Context, groupID int64, addr string, ts time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if addr == "" {
		return errors.New("member address is required")
	}

	update := bson.M{
		"$set":         bson.M{"ts": ts.UTC().Truncate(time.Millisecond)},
		"$setOnInsert": bson.M{"group_id": groupID, "addr": addr},
	}

	filter := bson.M{"group_id": groupID, "addr": addr}
	if _, err := s.lastSeens.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("update lastseen %d/%s: %w", groupID, addr, err)
	}

	return nil
}

// RemoveLastSeen deletes the activity marker for (groupID, addr); deleting a
// missing marker is a no-op.
func (s *Store) RemoveLastSeen(ctx context.Context, groupID int64, addr string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	if _, err := s.lastSeens.DeleteOne(ctx, bson.M{"group_id": groupID, "addr": addr}); err != nil {
		return fmt.Errorf("remove lastseen %d/%s: %w", groupID, addr, err)
	}

	return nil
}

// ListLastSeens returns a snapshot of every activity marker across all groups.
func (s *Store) ListLastSeens(ctx context.Context) ([]domain.LastSeen, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	cursor, err := s.lastSeens.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list lastseens: %w", err)
	}

	var markers []domain.LastSeen
	if err := cursor.All(ctx, &markers); err != nil {
		return nil, fmt.Errorf("decode lastseens: %w", err)
	}

	return markers, nil
}

// ==== channels ====

// AddChannel creates a channel with a freshly allocated id. The name and
// admin chat uniqueness is enforced by the collection indexes.
func (s *Store) AddChannel(ctx context.Context, name, topic string, adminChatID int64) (*domain.Channel, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errors.New("channel name is required")
	}

	id, err := s.nextChannelID(ctx)
	if err != nil {
		return nil, err
	}

	channel := domain.Channel{
		ID:          id,
		Name:        name,
		Topic:       topic,
		AdminChatID: adminChatID,
	}

	if _, err := s.channels.InsertOne(ctx, channel); err != nil {
		return nil, fmt.Errorf("insert channel %q: %w", name, err)
	}

	return &channel, nil
}

// RemoveChannel deletes a channel, cascading to its subscriber chat links.
func (s *Store) RemoveChannel(ctx context.Context, channelID int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	if _, err := s.cchats.DeleteMany(ctx, bson.M{"channel_id": channelID}); err != nil {
		return fmt.Errorf("cascade cchats for channel %d: %w", channelID, err)
	}

	if _, err := s.channels.DeleteOne(ctx, bson.M{"channel_id": channelID}); err != nil {
		return fmt.Errorf("remove channel %d: %w", channelID, err)
	}

	return nil
}

// GetChannelByID returns the channel with the given id, or nil.
func (s *Store) GetChannelByID(ctx context.Context, channelID int64) (*domain.Channel, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	return s.findChannel(ctx, bson.M{"channel_id": channelID})
}

// GetChannelByName returns the channel with the given name, or nil.
func (s *Store) GetChannelByName(ctx context.Context, name string) (*domain.Channel, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	return s.findChannel(ctx, bson.M{"name": name})
}

// GetChannelByChat resolves a chat id to its channel from either direction:
// a subscriber chat resolves to its parent channel, an admin chat resolves
// to the channel it administers. Returns nil when the chat belongs to no
// channel.
func (s *Store) GetChannelByChat(ctx context.Context, chatID int64) (*domain.Channel, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	var link domain.SubscriberChat
	err := s.cchats.FindOne(ctx, bson.M{"chat_id": chatID}).Decode(&link)
	switch {
	case err == nil:
		return s.findChannel(ctx, bson.M{"channel_id": link.ChannelID})
	case errors.Is(err, mongo.ErrNoDocuments):
		return s.findChannel(ctx, bson.M{"admin_chat_id": chatID})
	default:
		return nil, fmt.Errorf("find cchat %d: %w", chatID, err)
	}
}

// ListChannels returns a snapshot of all channels.
func (s *Store) ListChannels(ctx context.Context) ([]domain.Channel, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	cursor, err := s.channels.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}

	var channels []domain.Channel
	if err := cursor.All(ctx, &channels); err != nil {
		return nil, fmt.Errorf("decode channels: %w", err)
	}

	return channels, nil
}

// SetChannelTopic updates a channel's topic.
func (s *Store) SetChannelTopic(ctx context.Context, channelID int64, topic string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	update := bson.M{"$set": bson.M{"topic": topic}}
	if _, err := s.channels.UpdateOne(ctx, bson.M{"channel_id": channelID}, update); err != nil {
		return fmt.Errorf("set channel %d topic: %w", channelID, err)
	}

	return nil
}

// SetChannelLastPub records the instant of the most recent accepted post.
func (s *Store) SetChannelLastPub(ctx context.Context, channelID int64, ts time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	update := bson.M{"$set": bson.M{"last_pub": ts.UTC().Truncate(time.Millisecond)}}
	if _, err := s.channels.UpdateOne(ctx, bson.M{"channel_id": channelID}, update); err != nil {
		return fmt.Errorf("set channel %d last_pub: %w", channelID, err)
	}

	return nil
}

// ==== subscriber chats ====

// AddSubscriberChat links a subscriber chat to a channel. The upsert keeps a
// duplicate join harmless.
func (s *Store) AddSubscriberChat(ctx context.Context, chatID, channelID int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	update := bson.M{
		"$setOnInsert": bson.M{"chat_id": chatID, "channel_id": channelID},
	}

	if _, err := s.cchats.UpdateOne(ctx, bson.M{"chat_id": chatID}, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("add cchat %d: %w", chatID, err)
	}

	return nil
}

// RemoveSubscriberChat unlinks a subscriber chat; removing a missing link is
// a no-op.
func (s *Store) RemoveSubscriberChat(ctx context.Context, chatID int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	if _, err := s.cchats.DeleteOne(ctx, bson.M{"chat_id": chatID}); err != nil {
		return fmt.Errorf("remove cchat %d: %w", chatID, err)
	}

	return nil
}

// GetSubscriberChat returns the link for chatID, or nil.
func (s *Store) GetSubscriberChat(ctx context.Context, chatID int64) (*domain.SubscriberChat, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	var link domain.SubscriberChat
	err := s.cchats.FindOne(ctx, bson.M{"chat_id": chatID}).Decode(&link)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find cchat %d: %w", chatID, err)
	}

	return &link, nil
}

// ListSubscriberChats returns a snapshot of the channel's subscriber links.
func (s *Store) ListSubscriberChats(ctx context.Context, channelID int64) ([]domain.SubscriberChat, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	cursor, err := s.cchats.Find(ctx, bson.M{"channel_id": channelID})
	if err != nil {
		return nil, fmt.Errorf("list cchats for channel %d: %w", channelID, err)
	}

	var links []domain.SubscriberChat
	if err := cursor.All(ctx, &links); err != nil {
		return nil, fmt.Errorf("decode cchats: %w", err)
	}

	return links, nil
}

// ==== diagnostics ====

// Counts returns the number of published groups and channels.
func (s *Store) Counts(ctx context.Context) (groups, channels int64, err error) {
	if err := s.ready(ctx); err != nil {
		return 0, 0, err
	}

	groups, err = s.groups.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, 0, fmt.Errorf("count groups: %w", err)
	}

	channels, err = s.channels.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, 0, fmt.Errorf("count channels: %w", err)
	}

	return groups, channels, nil
}

func (s *Store) findChannel(ctx context.Context, filter bson.M) (*domain.Channel, error) {
	var channel domain.Channel
	err := s.channels.FindOne(ctx, filter).Decode(&channel)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find channel: %w", err)
	}

	return &channel, nil
}

func (s *Store) nextChannelID(ctx context.Context) (int64, error) {
	filter := bson.M{"_id": channelCounterID}
	update := bson.M{"$inc": bson.M{"seq": int64(1)}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	if err := s.counters.FindOneAndUpdate(ctx, filter, update, opts).Decode(&counter); err != nil {
		return 0, fmt.Errorf("allocate channel id: %w", err)
	}

	return counter.Seq, nil
}
