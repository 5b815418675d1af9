package blog

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func postIDs(posts []Post) []int64 {
	ids := make([]int64, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}

func TestListPostsOrdering(t *testing.T) {
	db := newTestDB(t)
	u := createUser(t, db, "writer")
	base := testNow.Add(-10 * time.Hour)

	p3 := createPost(t, db, u, PostForm{Title: "three", PubDate: base.Add(3 * time.Hour), IsPublished: true})
	p1a := createPost(t, db, u, PostForm{Title: "one-a", PubDate: base.Add(1 * time.Hour), IsPublished: true})
	p1b := createPost(t, db, u, PostForm{Title: "one-b", PubDate: base.Add(1 * time.Hour), IsPublished: true})
	p2 := createPost(t, db, u, PostForm{Title: "two", PubDate: base.Add(2 * time.Hour), IsPublished: true})

	posts, err := db.ListPosts(context.Background(), PostFilter{Public: true, Now: testNow}, 1, 10)
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	want := []int64{p3, p2, p1a, p1b}
	if got := postIDs(posts); !slices.Equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}

	page2, err := db.ListPosts(context.Background(), PostFilter{Public: true, Now: testNow}, 2, 3)
	if err != nil {
		t.Fatalf("ListPosts page 2: %v", err)
	}
	if got := postIDs(page2); !slices.Equal(got, []int64{p1b}) {
		t.Errorf("page 2 = %v, want [%d]", got, p1b)
	}
}

func TestListPostsPageBeyondRange(t *testing.T) {
	db := newTestDB(t)
	u := createUser(t, db, "writer")
	createPost(t, db, u, PostForm{Title: "only", PubDate: testNow.Add(-time.Hour), IsPublished: true})

	f := PostFilter{Public: true, Now: testNow}
	for _, page := range []int{2, 922337203685477590} {
		posts, err := db.ListPosts(context.Background(), f, page, 10)
		if err != nil {
			t.Fatalf("ListPosts(page %d): %v", page, err)
		}
		if len(posts) != 0 {
			t.Errorf("page %d returned %d posts, want none", page, len(posts))
		}
	}
}

func TestListPostsPublicFilter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createUser(t, db, "writer")
	shown := createCategory(t, db, "shown", true)
	hidden := createCategory(t, db, "hidden", false)
	past := testNow.Add(-time.Hour)

	visible := createPost(t, db, u, PostForm{Title: "visible", PubDate: past, IsPublished: true})
	inShown := createPost(t, db, u, PostForm{Title: "in shown", PubDate: past, IsPublished: true, CategoryID: shown.ID})
	atNow := createPost(t, db, u, PostForm{Title: "at now", PubDate: testNow, IsPublished: true})
	createPost(t, db, u, PostForm{Title: "draft", PubDate: past, IsPublished: false})
	createPost(t, db, u, PostForm{Title: "scheduled", PubDate: testNow.Add(time.Hour), IsPublished: true})
	createPost(t, db, u, PostForm{Title: "in hidden", PubDate: past, IsPublished: true, CategoryID: hidden.ID})

	f := PostFilter{Public: true, Now: testNow}
	posts, err := db.ListPosts(ctx, f, 1, 100)
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	got := postIDs(posts)
	slices.Sort(got)
	want := []int64{visible, inShown, atNow}
	slices.Sort(want)
	if !slices.Equal(got, want) {
		t.Errorf("public posts = %v, want %v", got, want)
	}

	count, err := db.CountPosts(ctx, f)
	if err != nil {
		t.Fatalf("CountPosts: %v", err)
	}
	if count != len(want) {
		t.Errorf("CountPosts = %d, want %d", count, len(want))
	}

	// The SQL filter and the in-memory predicate must agree on every post.
	all, err := db.ListPosts(ctx, PostFilter{}, 1, 100)
	if err != nil {
		t.Fatalf("ListPosts unfiltered: %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("unfiltered listing has %d posts, want 6", len(all))
	}
	for _, p := range all {
		if listed := slices.Contains(want, p.ID); listed != p.PubliclyVisible(testNow) {
			t.Errorf("post %q: listed=%v, PubliclyVisible=%v", p.Title, listed, !listed)
		}
	}

	inCategory, err := db.ListPosts(ctx, PostFilter{Public: true, Now: testNow, CategoryID: shown.ID}, 1, 100)
	if err != nil {
		t.Fatalf("ListPosts by category: %v", err)
	}
	if got := postIDs(inCategory); !slices.Equal(got, []int64{inShown}) {
		t.Errorf("category posts = %v, want [%d]", got, inShown)
	}
	if inCategory[0].Category == nil || inCategory[0].Category.Slug != "shown" {
		t.Errorf("category not loaded: %+v", inCategory[0].Category)
	}
}

func TestListPostsByAuthor(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	past := testNow.Add(-time.Hour)

	aPub := createPost(t, db, alice, PostForm{Title: "a public", PubDate: past, IsPublished: true})
	aDraft := createPost(t, db, alice, PostForm{Title: "a draft", PubDate: past.Add(-time.Hour), IsPublished: false})
	createPost(t, db, bob, PostForm{Title: "b public", PubDate: past, IsPublished: true})

	own, err := db.ListPosts(ctx, PostFilter{AuthorID: alice.ID}, 1, 10)
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if got := postIDs(own); !slices.Equal(got, []int64{aPub, aDraft}) {
		t.Errorf("author listing = %v, want [%d %d]", got, aPub, aDraft)
	}

	public, err := db.ListPosts(ctx, PostFilter{AuthorID: alice.ID, Public: true, Now: testNow}, 1, 10)
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if got := postIDs(public); !slices.Equal(got, []int64{aPub}) {
		t.Errorf("public author listing = %v, want [%d]", got, aPub)
	}
	if public[0].Author != "alice" {
		t.Errorf("Author = %q, want alice", public[0].Author)
	}
}

func TestCommentCount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	past := testNow.Add(-time.Hour)

	busy := createPost(t, db, alice, PostForm{Title: "busy", PubDate: past, IsPublished: true})
	quiet := createPost(t, db, alice, PostForm{Title: "quiet", PubDate: past, IsPublished: true})
	createComment(t, db, bob, busy, "first")
	createComment(t, db, alice, busy, "second")
	createComment(t, db, bob, busy, "third")

	posts, err := db.ListPosts(ctx, PostFilter{Public: true, Now: testNow}, 1, 10)
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	counts := map[int64]int{}
	for _, p := range posts {
		counts[p.ID] = p.CommentCount
	}
	if counts[busy] != 3 || counts[quiet] != 0 {
		t.Errorf("counts = %v, want busy=3 quiet=0", counts)
	}

	p, err := db.GetPost(ctx, busy)
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if p.CommentCount != 3 {
		t.Errorf("GetPost CommentCount = %d, want 3", p.CommentCount)
	}

	comments, err := db.ListComments(ctx, busy)
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	var texts []string
	for _, c := range comments {
		texts = append(texts, c.Text)
	}
	if !slices.Equal(texts, []string{"first", "second", "third"}) {
		t.Errorf("comments = %v, want oldest first", texts)
	}
}

func TestDeletePostRemovesComments(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createUser(t, db, "writer")
	past := testNow.Add(-time.Hour)

	doomed := createPost(t, db, u, PostForm{Title: "doomed", PubDate: past, IsPublished: true})
	kept := createPost(t, db, u, PostForm{Title: "kept", PubDate: past, IsPublished: true})
	createComment(t, db, u, doomed, "a")
	createComment(t, db, u, doomed, "b")
	keptComment := createComment(t, db, u, kept, "c")

	if err := db.DeletePost(ctx, doomed); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}
	if _, err := db.GetPost(ctx, doomed); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPost after delete: err = %v, want ErrNotFound", err)
	}

	var orphans int
	if err := db.db.QueryRow(`SELECT COUNT(*) FROM comments WHERE post_id = ?`, doomed).Scan(&orphans); err != nil {
		t.Fatalf("count comments: %v", err)
	}
	if orphans != 0 {
		t.Errorf("%d comments survived their post", orphans)
	}
	if _, err := db.GetComment(ctx, kept, keptComment.ID); err != nil {
		t.Errorf("comment on another post was removed: %v", err)
	}

	if err := db.DeletePost(ctx, doomed); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeletePost: err = %v, want ErrNotFound", err)
	}
}

func TestCommentScopedToPost(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createUser(t, db, "writer")
	past := testNow.Add(-time.Hour)

	p1 := createPost(t, db, u, PostForm{Title: "p1", PubDate: past, IsPublished: true})
	p2 := createPost(t, db, u, PostForm{Title: "p2", PubDate: past, IsPublished: true})
	c := createComment(t, db, u, p1, "on p1")

	if _, err := db.GetComment(ctx, p2, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetComment with wrong post: err = %v, want ErrNotFound", err)
	}
	if err := db.UpdateComment(ctx, p2, c.ID, "moved"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateComment with wrong post: err = %v, want ErrNotFound", err)
	}
	if err := db.DeleteComment(ctx, p2, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteComment with wrong post: err = %v, want ErrNotFound", err)
	}

	got, err := db.GetComment(ctx, p1, c.ID)
	if err != nil {
		t.Fatalf("GetComment: %v", err)
	}
	if got.Text != "on p1" || got.Author != "writer" {
		t.Errorf("comment = %+v", got)
	}

	if err := db.UpdateComment(ctx, p1, c.ID, "edited"); err != nil {
		t.Fatalf("UpdateComment: %v", err)
	}
	got, err = db.GetComment(ctx, p1, c.ID)
	if err != nil {
		t.Fatalf("GetComment after update: %v", err)
	}
	if got.Text != "edited" {
		t.Errorf("Text = %q, want edited", got.Text)
	}
	if err := db.DeleteComment(ctx, p1, c.ID); err != nil {
		t.Fatalf("DeleteComment: %v", err)
	}
}

func TestUpdatePost(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createUser(t, db, "writer")
	cat := createCategory(t, db, "travel", true)
	loc := &Location{Name: "Moscow", IsPublished: true}
	if err := db.CreateLocation(ctx, loc); err != nil {
		t.Fatalf("CreateLocation: %v", err)
	}

	id := createPost(t, db, u, PostForm{Title: "before", PubDate: testNow, IsPublished: true, CategoryID: cat.ID})
	err := db.UpdatePost(ctx, id, &PostForm{Title: "after", Text: "new text", PubDate: testNow.Add(time.Hour), LocationID: loc.ID})
	if err != nil {
		t.Fatalf("UpdatePost: %v", err)
	}
	p, err := db.GetPost(ctx, id)
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if p.Title != "after" || p.Text != "new text" || p.IsPublished {
		t.Errorf("post = %+v", p)
	}
	if p.Category != nil {
		t.Errorf("category should be cleared, got %+v", p.Category)
	}
	if p.Location == nil || p.Location.Name != "Moscow" {
		t.Errorf("location = %+v, want Moscow", p.Location)
	}
	if !p.PubDate.Equal(testNow.Add(time.Hour)) {
		t.Errorf("PubDate = %v, want %v", p.PubDate, testNow.Add(time.Hour))
	}

	if err := db.UpdatePost(ctx, id+100, &PostForm{Title: "x", Text: "x", PubDate: testNow}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdatePost missing: err = %v, want ErrNotFound", err)
	}
}

func TestCreateUserDuplicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createUser(t, db, "alice")

	sameName := NewUser("alice", "other@example.com")
	sameName.Hash = []byte("x")
	err := db.CreateUser(ctx, sameName)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate username: err = %v, want ErrDuplicate", err)
	}
	if f := duplicateField(err); f != "username" {
		t.Errorf("duplicateField = %q, want username", f)
	}

	sameEmail := NewUser("alice2", "alice@example.com")
	sameEmail.Hash = []byte("x")
	err = db.CreateUser(ctx, sameEmail)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate email: err = %v, want ErrDuplicate", err)
	}
	if f := duplicateField(err); f != "email" {
		t.Errorf("duplicateField = %q, want email", f)
	}
}

func TestUserLookups(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createUser(t, db, "alice")

	byID, err := db.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if byID.Username != "alice" {
		t.Errorf("Username = %q", byID.Username)
	}
	if ok, err := byID.PasswordMatches(testPassword); err != nil || !ok {
		t.Errorf("PasswordMatches = %v, %v", ok, err)
	}
	if _, err := db.GetUserByUsername(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUserByUsername missing: err = %v, want ErrNotFound", err)
	}

	byID.FirstName = "Alice"
	byID.LastName = "Liddell"
	if err := db.UpdateUser(ctx, byID); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	got, err := db.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if got.FullName() != "Alice Liddell" {
		t.Errorf("FullName = %q", got.FullName())
	}
}

func TestCategoryBySlug(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createCategory(t, db, "drafts", false)

	c, err := db.GetCategoryBySlug(ctx, "drafts")
	if err != nil {
		t.Fatalf("GetCategoryBySlug: %v", err)
	}
	if c.IsPublished {
		t.Error("category should be unpublished")
	}
	if _, err := db.GetCategoryBySlug(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing slug: err = %v, want ErrNotFound", err)
	}
	if err := db.CreateCategory(ctx, &Category{Title: "again", Slug: "drafts"}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate slug: err = %v, want ErrDuplicate", err)
	}
}

func TestRebind(t *testing.T) {
	pg := &Database{dialect: postgres}
	if got := pg.rebind("a = ? AND b = ? LIMIT ?"); got != "a = $1 AND b = $2 LIMIT $3" {
		t.Errorf("postgres rebind = %q", got)
	}
	lite := &Database{dialect: sqlite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind = %q", got)
	}
}

func TestSQLitePath(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		sqlite bool
	}{
		{"sqlite:/tmp/blog.db", "/tmp/blog.db", true},
		{"file:blog.db?cache=shared", "file:blog.db?cache=shared", true},
		{"postgres://user@localhost/blog", "", false},
	}
	for _, tt := range tests {
		got, ok := sqlitePath(tt.in)
		if got != tt.want || ok != tt.sqlite {
			t.Errorf("sqlitePath(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.sqlite)
		}
	}
}
