// Package viewable 为实体附加与 viewer 相关的关系数据。
//
// 每类实体有固定的组合：
//
//	User      following
//	Tweet     author (User), liked, bookmarked
//	Comment   tweet (Tweet), author (User)
//	Like      tweet (Tweet), author (User)
//	Bookmark  tweet (Tweet), author (User)
//	Follower  follower (User)
//	Followee  followee (User)
//
// 嵌套最多三层（Bookmark -> Tweet -> User）。viewable 每次请求按当前关系边计算，不落库。
package viewable

import "github.com/d60-Lab/tweetfeed/internal/model"

// Options 单次组合调用的选项
type Options struct {
	// EnableViewerCheck 查关系边之前先确认 viewer 存在，不存在返回 failure.ErrViewerDoesNotExist
	EnableViewerCheck bool
}

type User struct {
	model.User
	Viewables UserViewables `json:"viewables"`
}

type UserViewables struct {
	Following bool `json:"following"`
}

type Tweet struct {
	model.Tweet
	Viewables TweetViewables `json:"viewables"`
}

type TweetViewables struct {
	Author     User `json:"author"`
	Liked      bool `json:"liked"`
	Bookmarked bool `json:"bookmarked"`
}

// ReactionViewables 评论、点赞、收藏共用
type ReactionViewables struct {
	Tweet  Tweet `json:"tweet"`
	Author User  `json:"author"`
}

type Comment struct {
	model.Comment
	Viewables ReactionViewables `json:"viewables"`
}

type Like struct {
	model.Like
	Viewables ReactionViewables `json:"viewables"`
}

type Bookmark struct {
	model.Bookmark
	Viewables ReactionViewables `json:"viewables"`
}

type Follower struct {
	model.Fan
	Viewables FollowerViewables `json:"viewables"`
}

type FollowerViewables struct {
	Follower User `json:"follower"`
}

type Followee struct {
	model.Follow
	Viewables FolloweeViewables `json:"viewables"`
}

type FolloweeViewables struct {
	Followee User `json:"followee"`
}
