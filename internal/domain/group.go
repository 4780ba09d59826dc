// Package domain defines the directory entities persisted by the bot.
package domain

// Group represents a public group chat listed in the directory. A row exists
// iff the corresponding chat is currently published.
type Group struct {
	ChatID int64  `bson:"chat_id" json:"chat_id"`
	Topic  string `bson:"topic,omitempty" json:"topic,omitempty"`
}
