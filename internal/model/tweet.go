package model

import "time"

// Tweet 推文（原 Post，补充交互计数）
type Tweet struct {
	ID            string    `json:"id" gorm:"primaryKey;type:varchar(36)" bson:"_id"`
	AuthorID      string    `json:"author_id" gorm:"type:varchar(36);index:idx_tweet_author" bson:"author_id"`
	Text          string    `json:"text" gorm:"type:text" bson:"text"`
	LikesCount    int64     `json:"likes_count" gorm:"not null;default:0" bson:"likes_count"`
	CommentsCount int64     `json:"comments_count" gorm:"not null;default:0" bson:"comments_count"`
	Timestamp     int64     `json:"-" gorm:"index:idx_tweet_author;not null" bson:"timestamp"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" bson:"updated_at"`
}

func (Tweet) TableName() string { return "tweets" }

func (t Tweet) DocumentID() string { return t.ID }
func (t Tweet) SortKey() int64     { return t.Timestamp }

// MaxTweetLength 推文/评论正文的最大字符数
const MaxTweetLength = 280
