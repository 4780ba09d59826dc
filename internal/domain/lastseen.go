package domain

import "time"

// LastSeen is a per-member activity marker scoped to a public group. Absence
// means the member is not tracked (the bot itself never is).
type LastSeen struct {
	GroupID   int64     `bson:"group_id" json:"group_id"`
	Addr      string    `bson:"addr" json:"addr"`
	Timestamp time.Time `bson:"ts" json:"ts"`
}
