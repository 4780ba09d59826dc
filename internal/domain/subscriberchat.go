package domain

// SubscriberChat links one subscriber group chat to the channel it receives
// fan-out from. Each subscriber chat belongs to exactly one channel.
type SubscriberChat struct {
	ChatID    int64 `bson:"chat_id" json:"chat_id"`
	ChannelID int64 `bson:"channel_id" json:"channel_id"`
}
