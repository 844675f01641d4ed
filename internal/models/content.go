package models

import (
	"fmt"
	"time"
)

type ContentType string

const (
	ContentPost    ContentType = "post"
	ContentComment ContentType = "comment"
)

func IsValidContentType(t ContentType) bool {
	return t == ContentPost || t == ContentComment
}

// ContentRef addresses one likeable item.
type ContentRef struct {
	Type ContentType `json:"content_type"`
	ID   int64       `json:"content_id"`
}

func (r ContentRef) String() string {
	return fmt.Sprintf("%s/%d", r.Type, r.ID)
}

type Post struct {
	ID            int64     `json:"id"`
	AuthorAddress string    `json:"author_address"`
	Body          string    `json:"body"`
	ContentHash   string    `json:"content_hash"`
	LikeCount     int64     `json:"like_count"`
	CreatedAt     time.Time `json:"created_at"`
}

type Comment struct {
	ID            int64     `json:"id"`
	PostID        int64     `json:"post_id"`
	AuthorAddress string    `json:"author_address"`
	Body          string    `json:"body"`
	ContentHash   string    `json:"content_hash"`
	LikeCount     int64     `json:"like_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Content is the shape shared by posts and comments as seen by the
// settlement engine.
type Content struct {
	Ref           ContentRef `json:"ref"`
	AuthorAddress string     `json:"author_address"`
	LikeCount     int64      `json:"like_count"`
}

// ContentListing is the diagnostic dump returned by list_content.
type ContentListing struct {
	Posts    []Post    `json:"posts"`
	Comments []Comment `json:"comments"`
}
