package model

import "time"

// User 用户（计数器由关系链/推文管理器在事务内更新）
type User struct {
	ID              string    `json:"id" gorm:"primaryKey;type:varchar(36)" bson:"_id"`
	Name            string    `json:"name" gorm:"type:varchar(128)" bson:"name"`
	Email           string    `json:"email" gorm:"type:varchar(255);uniqueIndex" bson:"email"`
	Username        string    `json:"username" gorm:"type:varchar(64);uniqueIndex" bson:"username"`
	Description     string    `json:"description" gorm:"type:text" bson:"description"`
	Image           string    `json:"image" gorm:"type:text" bson:"image"`
	FollowersCount  int64     `json:"followers_count" gorm:"not null;default:0" bson:"followers_count"`
	FollowingsCount int64     `json:"followings_count" gorm:"not null;default:0" bson:"followings_count"`
	TweetsCount     int64     `json:"tweets_count" gorm:"not null;default:0" bson:"tweets_count"`
	Timestamp       int64     `json:"-" gorm:"index;not null" bson:"timestamp"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" bson:"updated_at"`
}

func (User) TableName() string { return "users" }

func (u User) DocumentID() string { return u.ID }
func (u User) SortKey() int64     { return u.Timestamp }
