package model

import (
	"time"
)

// Follow 关注关系（A 关注 B）
// ID = CompositeID(FollowerID, FolloweeID)，主键即复合唯一键，避免重复关注
type Follow struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(73)" bson:"_id"`
	FollowerID string    `json:"follower_id" gorm:"type:varchar(36);index:idx_follow_follower;not null" bson:"follower_id"`
	FolloweeID string    `json:"followee_id" gorm:"type:varchar(36);not null;index" bson:"followee_id"`
	Timestamp  int64     `json:"-" gorm:"index:idx_follow_follower;not null" bson:"timestamp"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" bson:"updated_at"`
}

func (Follow) TableName() string { return "follows" }

func (f Follow) DocumentID() string { return f.ID }
func (f Follow) SortKey() int64     { return f.Timestamp }
