package domain

import "time"

// Channel represents a broadcast channel: one administration chat where
// operators post, fanned out to any number of subscriber chats.
type Channel struct {
	ID          int64     `bson:"channel_id" json:"channel_id"`
	Name        string    `bson:"name" json:"name"`
	Topic       string    `bson:"topic,omitempty" json:"topic,omitempty"`
	AdminChatID int64     `bson:"admin_chat_id" json:"admin_chat_id"`
	LastPub     time.Time `bson:"last_pub,omitempty" json:"last_pub,omitempty"`
}
