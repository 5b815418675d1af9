// blog/models.go
package blog

import (
	"time"
)

// Category groups posts. Unpublished categories hide every post filed under them.
type Category struct {
	ID          int64     `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Slug        string    `json:"slug" db:"slug"`
	IsPublished bool      `json:"is_published" db:"is_published"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type Location struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	IsPublished bool      `json:"is_published" db:"is_published"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Post is loaded together with its author, optional category and location,
// and the number of comments attached to it.
type Post struct {
	ID           int64     `json:"id" db:"id"`
	Title        string    `json:"title" db:"title"`
	Text         string    `json:"text" db:"text"`
	Image        string    `json:"image,omitempty" db:"image"`
	PubDate      time.Time `json:"pub_date" db:"pub_date"`
	IsPublished  bool      `json:"is_published" db:"is_published"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	AuthorID     string    `json:"author_id" db:"author_id"`
	Author       string    `json:"author" db:"author"`
	Category     *Category `json:"category,omitempty"`
	Location     *Location `json:"location,omitempty"`
	CommentCount int       `json:"comment_count" db:"comment_count"`
}

// Comment always belongs to exactly one post and goes away with it.
type Comment struct {
	ID        int64     `json:"id" db:"id"`
	PostID    int64     `json:"post_id" db:"post_id"`
	AuthorID  string    `json:"author_id" db:"author_id"`
	Author    string    `json:"author" db:"author"`
	Text      string    `json:"text" db:"text"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PaginationData holds all the necessary info for rendering pagination controls.
type PaginationData struct {
	CurrentPage int
	TotalPages  int
	NextPage    int
	PrevPage    int
	HasNext     bool
	HasPrev     bool
}

func newPagination(page, total, pageSize int) PaginationData {
	totalPages := (total + pageSize - 1) / pageSize
	return PaginationData{
		CurrentPage: page,
		TotalPages:  totalPages,
		NextPage:    page + 1,
		PrevPage:    page - 1,
		HasNext:     page < totalPages,
		HasPrev:     page > 1,
	}
}
