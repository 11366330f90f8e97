package model

import "time"

// OutboxAction 外发事件对活动日志的操作
type OutboxAction string

const (
	OutboxPublish  OutboxAction = "publish"
	OutboxRetract  OutboxAction = "retract"
	OutboxFollow   OutboxAction = "follow"
	OutboxUnfollow OutboxAction = "unfollow"
)

// Outbox 状态
const (
	OutboxPending    = "pending"
	OutboxProcessing = "processing"
	OutboxDone       = "done"
	OutboxFailed     = "failed"
)

// Outbox 事件外发盒：与实体写入同一事务落地，由 OutboxRelay 投递到活动日志
type Outbox struct {
	ID          string       `gorm:"primaryKey;type:varchar(36)" bson:"_id"`
	Action      OutboxAction `gorm:"type:varchar(16);not null" bson:"action"`
	FeedGroup   string       `gorm:"type:varchar(16);not null" bson:"feed_group"`
	FeedOwner   string       `gorm:"type:varchar(36);not null" bson:"feed_owner"`
	Verb        string       `gorm:"type:varchar(16)" bson:"verb"`
	ActorID     string       `gorm:"type:varchar(36)" bson:"actor_id"`
	ObjectID    string       `gorm:"type:varchar(73)" bson:"object_id"`
	ForeignID   string       `gorm:"type:varchar(96);not null" bson:"foreign_id"`
	Status      string       `gorm:"type:varchar(16);index:idx_outbox_status" bson:"status"` // pending, processing, done, failed
	Attempts    int          `gorm:"not null;default:0" bson:"attempts"`
	Timestamp   int64        `gorm:"index:idx_outbox_status;not null" bson:"timestamp"`
	CreatedAt   time.Time    `bson:"created_at"`
	ProcessedAt *time.Time   `bson:"processed_at,omitempty"`
}

func (Outbox) TableName() string { return "outbox" }

func (o Outbox) DocumentID() string { return o.ID }
func (o Outbox) SortKey() int64     { return o.Timestamp }

// All 返回需要迁移的全部模型
func All() []any {
	return []any{&User{}, &Tweet{}, &Comment{}, &Like{}, &Bookmark{}, &Follow{}, &Fan{}, &Outbox{}}
}
