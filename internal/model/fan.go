package model

import "time"

// Fan 粉丝关系（B 的粉丝是 A）冗余自 Follow，由 FanReplicator 异步维护
// ID = CompositeID(UserID, FanID)
type Fan struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(73)" bson:"_id"`
	UserID    string    `json:"user_id" gorm:"type:varchar(36);index:idx_fan_user;not null" bson:"user_id"`
	FanID     string    `json:"fan_id" gorm:"type:varchar(36);not null" bson:"fan_id"`
	Timestamp int64     `json:"-" gorm:"index:idx_fan_user;not null" bson:"timestamp"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

func (Fan) TableName() string { return "fans" }

func (f Fan) DocumentID() string { return f.ID }
func (f Fan) SortKey() int64     { return f.Timestamp }
