package blog

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"
)

type scanner interface {
	Scan(dest ...any) error
}

// --- User Functions ---

const userColumns = `id, username, email, first_name, last_name, hash, created_at, updated_at`

func scanUser(row scanner) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.Hash, &u.Created, &u.Updated)
	if err != nil {
		return nil, translateError(err)
	}
	return &u, nil
}

func (d *Database) CreateUser(ctx context.Context, u *User) error {
	u.Created = dbTime(u.Created)
	u.Updated = dbTime(u.Updated)
	return d.Tx(ctx, func(tx *sql.Tx) error {
		query := d.rebind(`INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		_, err := tx.ExecContext(ctx, query, u.ID, u.Username, u.Email, u.FirstName, u.LastName, u.Hash, u.Created, u.Updated)
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", translateError(err))
		}
		return nil
	})
}

func (d *Database) GetUserByID(ctx context.Context, id string) (*User, error) {
	query := d.rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	return scanUser(d.db.QueryRowContext(ctx, query, id))
}

func (d *Database) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	query := d.rebind(`SELECT ` + userColumns + ` FROM users WHERE username = ?`)
	return scanUser(d.db.QueryRowContext(ctx, query, username))
}

// UpdateUser saves the profile fields of u. The password hash is left alone.
func (d *Database) UpdateUser(ctx context.Context, u *User) error {
	u.Updated = dbTime(time.Now())
	return d.Tx(ctx, func(tx *sql.Tx) error {
		query := d.rebind(`UPDATE users SET username = ?, email = ?, first_name = ?, last_name = ?, updated_at = ? WHERE id = ?`)
		res, err := tx.ExecContext(ctx, query, u.Username, u.Email, u.FirstName, u.LastName, u.Updated, u.ID)
		if err != nil {
			return fmt.Errorf("failed to update user %q: %w", u.ID, translateError(err))
		}
		return expectRows(res)
	})
}

// --- Category and Location Functions ---

func (d *Database) CreateCategory(ctx context.Context, c *Category) error {
	c.CreatedAt = dbTime(time.Now())
	return d.Tx(ctx, func(tx *sql.Tx) error {
		query := d.rebind(`INSERT INTO categories (title, description, slug, is_published, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id`)
		err := tx.QueryRowContext(ctx, query, c.Title, c.Description, c.Slug, c.IsPublished, c.CreatedAt).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("failed to insert category %q: %w", c.Slug, translateError(err))
		}
		return nil
	})
}

// GetCategoryBySlug returns the category whether or not it is published.
func (d *Database) GetCategoryBySlug(ctx context.Context, slug string) (*Category, error) {
	var c Category
	query := d.rebind(`SELECT id, title, description, slug, is_published, created_at FROM categories WHERE slug = ?`)
	err := d.db.QueryRowContext(ctx, query, slug).Scan(&c.ID, &c.Title, &c.Description, &c.Slug, &c.IsPublished, &c.CreatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	return &c, nil
}

func (d *Database) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, title, description, slug, is_published, created_at FROM categories ORDER BY title, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.Slug, &c.IsPublished, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (d *Database) CreateLocation(ctx context.Context, l *Location) error {
	l.CreatedAt = dbTime(time.Now())
	return d.Tx(ctx, func(tx *sql.Tx) error {
		query := d.rebind(`INSERT INTO locations (name, is_published, created_at) VALUES (?, ?, ?) RETURNING id`)
		err := tx.QueryRowContext(ctx, query, l.Name, l.IsPublished, l.CreatedAt).Scan(&l.ID)
		if err != nil {
			return fmt.Errorf("failed to insert location %q: %w", l.Name, translateError(err))
		}
		return nil
	})
}

func (d *Database) ListLocations(ctx context.Context) ([]Location, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, name, is_published, created_at FROM locations ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var locations []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.ID, &l.Name, &l.IsPublished, &l.CreatedAt); err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

// --- Post Functions ---

const postSelect = `SELECT p.id, p.title, p.text, p.image, p.pub_date, p.is_published, p.created_at,
       p.author_id, u.username,
       c.id, c.title, c.description, c.slug, c.is_published, c.created_at,
       l.id, l.name, l.is_published, l.created_at,
       (SELECT COUNT(*) FROM comments cm WHERE cm.post_id = p.id) AS comment_count
FROM posts p
JOIN users u ON u.id = p.author_id
LEFT JOIN categories c ON c.id = p.category_id
LEFT JOIN locations l ON l.id = p.location_id`

const postCount = `SELECT COUNT(*)
FROM posts p
LEFT JOIN categories c ON c.id = p.category_id`

// Newest first; the id keeps posts sharing a pub_date in insertion order.
const postOrder = ` ORDER BY p.pub_date DESC, p.id ASC`

func scanPost(row scanner) (*Post, error) {
	var (
		p         Post
		catID     sql.NullInt64
		catTitle  sql.NullString
		catDesc   sql.NullString
		catSlug   sql.NullString
		catPub    sql.NullBool
		catAt     sql.NullTime
		locID     sql.NullInt64
		locName   sql.NullString
		locPub    sql.NullBool
		locAt     sql.NullTime
		commentCt int64
	)
	err := row.Scan(&p.ID, &p.Title, &p.Text, &p.Image, &p.PubDate, &p.IsPublished, &p.CreatedAt,
		&p.AuthorID, &p.Author,
		&catID, &catTitle, &catDesc, &catSlug, &catPub, &catAt,
		&locID, &locName, &locPub, &locAt,
		&commentCt)
	if err != nil {
		return nil, translateError(err)
	}
	if catID.Valid {
		p.Category = &Category{
			ID:          catID.Int64,
			Title:       catTitle.String,
			Description: catDesc.String,
			Slug:        catSlug.String,
			IsPublished: catPub.Bool,
			CreatedAt:   catAt.Time,
		}
	}
	if locID.Valid {
		p.Location = &Location{
			ID:          locID.Int64,
			Name:        locName.String,
			IsPublished: locPub.Bool,
			CreatedAt:   locAt.Time,
		}
	}
	p.CommentCount = int(commentCt)
	return &p, nil
}

// PostFilter narrows post listings. Public applies the visibility predicate
// at Now; the other fields are exact matches when set.
type PostFilter struct {
	Public     bool
	Now        time.Time
	CategoryID int64
	AuthorID   string
}

func (f PostFilter) where() (string, []any) {
	var conds []string
	var args []any
	if f.Public {
		conds = append(conds, "p.is_published = ?", "p.pub_date <= ?", "(p.category_id IS NULL OR c.is_published = ?)")
		args = append(args, true, dbTime(f.Now), true)
	}
	if f.CategoryID != 0 {
		conds = append(conds, "p.category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.AuthorID != "" {
		conds = append(conds, "p.author_id = ?")
		args = append(args, f.AuthorID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (d *Database) ListPosts(ctx context.Context, f PostFilter, page, pageSize int) ([]Post, error) {
	if page < 1 {
		page = 1
	}
	// Offsets this large are past any table and would overflow.
	if pageSize < 1 || page-1 > math.MaxInt32/pageSize {
		return nil, nil
	}
	where, args := f.where()
	query := d.rebind(postSelect + where + postOrder + ` LIMIT ? OFFSET ?`)
	args = append(args, pageSize, (page-1)*pageSize)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()
	var posts []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

func (d *Database) CountPosts(ctx context.Context, f PostFilter) (int, error) {
	where, args := f.where()
	var count int
	err := d.db.QueryRowContext(ctx, d.rebind(postCount+where), args...).Scan(&count)
	return count, err
}

// GetPost loads a post with no visibility filtering; callers authorize.
func (d *Database) GetPost(ctx context.Context, id int64) (*Post, error) {
	query := d.rebind(postSelect + ` WHERE p.id = ?`)
	return scanPost(d.db.QueryRowContext(ctx, query, id))
}

func (d *Database) CreatePost(ctx context.Context, authorID string, f *PostForm) (int64, error) {
	var id int64
	err := d.Tx(ctx, func(tx *sql.Tx) error {
		query := d.rebind(`INSERT INTO posts (title, text, image, pub_date, author_id, location_id, category_id, is_published, created_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
		err := tx.QueryRowContext(ctx, query, f.Title, f.Text, f.Image, dbTime(f.PubDate), authorID,
			nullID(f.LocationID), nullID(f.CategoryID), f.IsPublished, dbTime(time.Now())).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to insert post %q: %w", f.Title, translateError(err))
		}
		return nil
	})
	return id, err
}

func (d *Database) UpdatePost(ctx context.Context, id int64, f *PostForm) error {
	return d.Tx(ctx, func(tx *sql.Tx) error {
		query := d.rebind(`UPDATE posts SET title = ?, text = ?, image = ?, pub_date = ?, location_id = ?, category_id = ?, is_published = ? WHERE id = ?`)
		res, err := tx.ExecContext(ctx, query, f.Title, f.Text, f.Image, dbTime(f.PubDate),
			nullID(f.LocationID), nullID(f.CategoryID), f.IsPublished, id)
		if err != nil {
			return fmt.Errorf("failed to update post %d: %w", id, translateError(err))
		}
		return expectRows(res)
	})
}

// DeletePost removes the post and its comments in one transaction.
func (d *Database) DeletePost(ctx context.Context, id int64) error {
	return d.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM comments WHERE post_id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete comments of post %d: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM posts WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("failed to delete post %d: %w", id, err)
		}
		return expectRows(res)
	})
}

// --- Comment Functions ---

const commentSelect = `SELECT cm.id, cm.post_id, cm.author_id, u.username, cm.text, cm.created_at
FROM comments cm
JOIN users u ON u.id = cm.author_id`

func scanComment(row scanner) (*Comment, error) {
	var c Comment
	if err := row.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Author, &c.Text, &c.CreatedAt); err != nil {
		return nil, translateError(err)
	}
	return &c, nil
}

func (d *Database) CreateComment(ctx context.Context, c *Comment) error {
	c.CreatedAt = dbTime(time.Now())
	return d.Tx(ctx, func(tx *sql.Tx) error {
		query := d.rebind(`INSERT INTO comments (text, post_id, author_id, created_at) VALUES (?, ?, ?, ?) RETURNING id`)
		err := tx.QueryRowContext(ctx, query, c.Text, c.PostID, c.AuthorID, c.CreatedAt).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("failed to insert comment on post %d: %w", c.PostID, translateError(err))
		}
		return nil
	})
}

// GetComment finds a comment only if it belongs to postID.
func (d *Database) GetComment(ctx context.Context, postID, commentID int64) (*Comment, error) {
	query := d.rebind(commentSelect + ` WHERE cm.id = ? AND cm.post_id = ?`)
	return scanComment(d.db.QueryRowContext(ctx, query, commentID, postID))
}

func (d *Database) ListComments(ctx context.Context, postID int64) ([]Comment, error) {
	query := d.rebind(commentSelect + ` WHERE cm.post_id = ? ORDER BY cm.created_at ASC, cm.id ASC`)
	rows, err := d.db.QueryContext(ctx, query, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments of post %d: %w", postID, err)
	}
	defer rows.Close()
	var comments []Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, *c)
	}
	return comments, rows.Err()
}

func (d *Database) UpdateComment(ctx context.Context, postID, commentID int64, text string) error {
	return d.Tx(ctx, func(tx *sql.Tx) error {
		query := d.rebind(`UPDATE comments SET text = ? WHERE id = ? AND post_id = ?`)
		res, err := tx.ExecContext(ctx, query, text, commentID, postID)
		if err != nil {
			return fmt.Errorf("failed to update comment %d: %w", commentID, err)
		}
		return expectRows(res)
	})
}

func (d *Database) DeleteComment(ctx context.Context, postID, commentID int64) error {
	return d.Tx(ctx, func(tx *sql.Tx) error {
		query := d.rebind(`DELETE FROM comments WHERE id = ? AND post_id = ?`)
		res, err := tx.ExecContext(ctx, query, commentID, postID)
		if err != nil {
			return fmt.Errorf("failed to delete comment %d: %w", commentID, err)
		}
		return expectRows(res)
	})
}

func expectRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
