package model

import "time"

// Reaction 指向某条推文的用户行为：评论、点赞、收藏
type Reaction interface {
	Document
	ReactedTweetID() string
	ReactorID() string
}

// Comment 评论
type Comment struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)" bson:"_id"`
	TweetID   string    `json:"tweet_id" gorm:"type:varchar(36);index:idx_comment_tweet;not null" bson:"tweet_id"`
	AuthorID  string    `json:"author_id" gorm:"type:varchar(36);index;not null" bson:"author_id"`
	Text      string    `json:"text" gorm:"type:text" bson:"text"`
	Timestamp int64     `json:"-" gorm:"index:idx_comment_tweet;not null" bson:"timestamp"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

func (Comment) TableName() string { return "comments" }

func (c Comment) DocumentID() string     { return c.ID }
func (c Comment) SortKey() int64         { return c.Timestamp }
func (c Comment) ReactedTweetID() string { return c.TweetID }
func (c Comment) ReactorID() string      { return c.AuthorID }

// Like 点赞，ID = CompositeID(AuthorID, TweetID)
type Like struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(73)" bson:"_id"`
	TweetID   string    `json:"tweet_id" gorm:"type:varchar(36);index:idx_like_tweet;not null" bson:"tweet_id"`
	AuthorID  string    `json:"author_id" gorm:"type:varchar(36);index;not null" bson:"author_id"`
	Timestamp int64     `json:"-" gorm:"index:idx_like_tweet;not null" bson:"timestamp"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

func (Like) TableName() string { return "likes" }

func (l Like) DocumentID() string     { return l.ID }
func (l Like) SortKey() int64         { return l.Timestamp }
func (l Like) ReactedTweetID() string { return l.TweetID }
func (l Like) ReactorID() string      { return l.AuthorID }

// Bookmark 收藏，ID = CompositeID(AuthorID, TweetID)
type Bookmark struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(73)" bson:"_id"`
	TweetID   string    `json:"tweet_id" gorm:"type:varchar(36);index;not null" bson:"tweet_id"`
	AuthorID  string    `json:"author_id" gorm:"type:varchar(36);index:idx_bookmark_author;not null" bson:"author_id"`
	Timestamp int64     `json:"-" gorm:"index:idx_bookmark_author;not null" bson:"timestamp"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

func (Bookmark) TableName() string { return "bookmarks" }

func (b Bookmark) DocumentID() string     { return b.ID }
func (b Bookmark) SortKey() int64         { return b.Timestamp }
func (b Bookmark) ReactedTweetID() string { return b.TweetID }
func (b Bookmark) ReactorID() string      { return b.AuthorID }
