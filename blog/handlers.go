// blog/handlers.go
package blog

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alexedwards/scs/v2"
)

//go:embed templates/*.html
var templateFS embed.FS

// pageData is handed to every template. Pages use the fields they need.
type pageData struct {
	CurrentUser *User
	Loc         *time.Location

	Posts      []Post
	Pagination PaginationData
	Category   *Category
	Profile    *User

	Post        *Post
	Comments    []Comment
	Comment     *Comment
	CanEdit     bool
	PostForm    *PostForm
	CommentForm *CommentForm
	Categories  []Category
	Locations   []Location
	Delete      bool

	Errors    map[string]string
	Next      string
	CSRFToken string
}

type Handlers struct {
	db        *Database
	templates *template.Template
	Session   *scs.SessionManager
	PageSize  int
	Location  *time.Location
	MediaDir  string
	// Now is the clock used for every visibility decision.
	Now func() time.Time
}

func NewHandlers(db *Database, cfg *Config) (*Handlers, error) {
	h := &Handlers{
		db:       db,
		Session:  scs.New(),
		PageSize: cfg.PageSize,
		Location: cfg.Location,
		MediaDir: cfg.MediaDir,
		Now:      time.Now,
	}
	if h.Location == nil {
		h.Location = time.UTC
	}
	if h.MediaDir == "" {
		h.MediaDir = "media"
	}
	if h.PageSize < 1 {
		h.PageSize = 10
	}
	if cfg.SessionLifetime > 0 {
		h.Session.Lifetime = cfg.SessionLifetime
	}
	h.Session.Cookie.HttpOnly = true
	h.Session.Cookie.SameSite = http.SameSiteLaxMode

	funcs := template.FuncMap{
		"date": func(t time.Time) string {
			return t.In(h.Location).Format("2 Jan 2006, 15:04")
		},
	}
	tpl, err := template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	h.templates = tpl
	return h, nil
}

func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.index)
	mux.HandleFunc("GET /category/{slug}/{$}", h.categoryPosts)
	mux.HandleFunc("GET /profile/{username}/{$}", h.profile)
	mux.HandleFunc("GET /profile/edit_profile/{username}/{$}", h.editProfile)
	mux.HandleFunc("POST /profile/edit_profile/{username}/{$}", h.editProfile)

	mux.HandleFunc("GET /posts/{id}/{$}", h.postDetail)
	mux.HandleFunc("GET /posts/create/{$}", h.createPost)
	mux.HandleFunc("POST /posts/create/{$}", h.createPost)
	mux.HandleFunc("GET /posts/{id}/edit/{$}", h.editPost)
	mux.HandleFunc("POST /posts/{id}/edit/{$}", h.editPost)
	mux.HandleFunc("GET /posts/{id}/delete/{$}", h.deletePost)
	mux.HandleFunc("POST /posts/{id}/delete/{$}", h.deletePost)

	mux.HandleFunc("POST /posts/{id}/comment/{$}", h.addComment)
	mux.HandleFunc("GET /posts/{post_id}/edit_comment/{comment_id}/{$}", h.editComment)
	mux.HandleFunc("POST /posts/{post_id}/edit_comment/{comment_id}/{$}", h.editComment)
	mux.HandleFunc("GET /posts/{post_id}/delete_comment/{comment_id}/{$}", h.deleteComment)
	mux.HandleFunc("POST /posts/{post_id}/delete_comment/{comment_id}/{$}", h.deleteComment)

	mux.HandleFunc("GET /auth/registration/{$}", h.register)
	mux.HandleFunc("POST /auth/registration/{$}", h.register)
	mux.HandleFunc("GET /auth/login/{$}", h.login)
	mux.HandleFunc("POST /auth/login/{$}", h.login)
	mux.HandleFunc("POST /auth/logout/{$}", h.logout)

	mux.HandleFunc("GET /pages/about/{$}", h.staticPage("about.html"))
	mux.HandleFunc("GET /pages/rules/{$}", h.staticPage("rules.html"))
	mux.Handle("GET /media/", h.mediaFiles(h.MediaDir))

	mux.HandleFunc("/", h.pageNotFound)
}

// --- Listings ---

func (h *Handlers) index(w http.ResponseWriter, r *http.Request) {
	v, data, ok := h.begin(w, r)
	if !ok {
		return
	}
	if !h.loadPosts(w, r, data, PostFilter{Public: true, Now: v.Now}) {
		return
	}
	h.render(w, http.StatusOK, "index.html", data)
}

func (h *Handlers) categoryPosts(w http.ResponseWriter, r *http.Request) {
	v, data, ok := h.begin(w, r)
	if !ok {
		return
	}
	category, err := h.db.GetCategoryBySlug(r.Context(), r.PathValue("slug"))
	if errors.Is(err, ErrNotFound) || (err == nil && !category.IsPublished) {
		h.notFound(w, data)
		return
	}
	if err != nil {
		h.serverError(w, data, "getting category", err)
		return
	}
	data.Category = category
	if !h.loadPosts(w, r, data, PostFilter{Public: true, Now: v.Now, CategoryID: category.ID}) {
		return
	}
	h.render(w, http.StatusOK, "category.html", data)
}

// profile shows all of a user's posts to that user and only the publicly
// visible ones to everybody else.
func (h *Handlers) profile(w http.ResponseWriter, r *http.Request) {
	v, data, ok := h.begin(w, r)
	if !ok {
		return
	}
	profile, err := h.db.GetUserByUsername(r.Context(), r.PathValue("username"))
	if errors.Is(err, ErrNotFound) {
		h.notFound(w, data)
		return
	}
	if err != nil {
		h.serverError(w, data, "getting profile", err)
		return
	}
	data.Profile = profile
	f := PostFilter{AuthorID: profile.ID, Public: !v.Is(profile.ID), Now: v.Now}
	if !h.loadPosts(w, r, data, f) {
		return
	}
	h.render(w, http.StatusOK, "profile.html", data)
}

func (h *Handlers) loadPosts(w http.ResponseWriter, r *http.Request, data *pageData, f PostFilter) bool {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	total, err := h.db.CountPosts(r.Context(), f)
	if err != nil {
		h.serverError(w, data, "counting posts", err)
		return false
	}
	data.Pagination = newPagination(page, total, h.PageSize)
	if page > max(data.Pagination.TotalPages, 1) {
		h.notFound(w, data)
		return false
	}
	posts, err := h.db.ListPosts(r.Context(), f, page, h.PageSize)
	if err != nil {
		h.serverError(w, data, "listing posts", err)
		return false
	}
	data.Posts = posts
	return true
}

// --- Posts ---

func (h *Handlers) postDetail(w http.ResponseWriter, r *http.Request) {
	v, data, ok := h.begin(w, r)
	if !ok {
		return
	}
	post, ok := h.findPost(w, r, data, "id")
	if !ok {
		return
	}
	if AuthorizePost(v, ActionView, post) != Allow {
		h.notFound(w, data)
		return
	}
	h.renderDetail(w, r, http.StatusOK, data, v, post, &CommentForm{})
}

func (h *Handlers) renderDetail(w http.ResponseWriter, r *http.Request, status int, data *pageData, v Viewer, post *Post, form *CommentForm) {
	comments, err := h.db.ListComments(r.Context(), post.ID)
	if err != nil {
		h.serverError(w, data, "listing comments", err)
		return
	}
	data.Post = post
	data.Comments = comments
	data.CommentForm = form
	data.CanEdit = v.Is(post.AuthorID)
	h.render(w, status, "detail.html", data)
}

func (h *Handlers) createPost(w http.ResponseWriter, r *http.Request) {
	v, data, ok := h.begin(w, r)
	if !ok {
		return
	}
	if v.Anonymous() {
		h.redirectToLogin(w, r, r.URL.Path)
		return
	}

	if r.Method == http.MethodGet {
		h.renderPostForm(w, r, http.StatusOK, data, &PostForm{PubDate: v.Now, IsPublished: true})
		return
	}

	form, ok := h.readPostForm(w, r, data, v, "")
	if !ok {
		return
	}
	if _, err := h.db.CreatePost(r.Context(), v.UserID, form); err != nil {
		h.serverError(w, data, "creating post", err)
		return
	}
	http.Redirect(w, r, profileURL(data.CurrentUser.Username), http.StatusSeeOther)
}

func (h *Handlers) editPost(w http.ResponseWriter, r *http.Request) {
	v, data, ok := h.begin(w, r)
	if !ok {
		return
	}
	if v.Anonymous() {
		h.redirectToLogin(w, r, r.URL.Path)
		return
	}
	post, ok := h.findPost(w, r, data, "id")
	if !ok {
		return
	}
	if d := AuthorizePost(v, ActionEdit, post); d != Allow {
		h.deny(w, r, data, d, postURL(post.ID))
		return
	}
	data.Post = post

	if r.Method == http.MethodGet {
		h.renderPostForm(w, r, http.StatusOK, data, postFormFrom(post))
		return
	}

	form, ok := h.readPostForm(w, r, data, v, post.Image)
	if !ok {
		return
	}
	if err := h.db.UpdatePost(r.Context(), post.ID, form); err != nil {
		h.serverError(w, data, "updating post", err)
		return
	}
	http.Redirect(w, r, postURL(post.ID), http.StatusSeeOther)
}

func (h *Handlers) deletePost(w http.ResponseWriter, r *http.Request) {
	v, data, ok := h.begin(w, r)
	if !ok {
		return
	}
	if v.Anonymous() {
		h.redirectToLogin(w, r, r.URL.Path)
		return
	}
	post, ok := h.findPost(w, r, data, "id")
	if !ok {
		return
	}
	if d := AuthorizePost(v, ActionDelete, post); d != Allow {
		h.deny(w, r, data, d, postURL(post.ID))
		return
	}

	if r.Method == http.MethodGet {
		data.Post = post
		data.Delete = true
		h.renderPostForm(w, r, http.StatusOK, data, postFormFrom(post))
		return
	}

	if err := h.db.DeletePost(r.Context(), post.ID); err != nil && !errors.Is(err, ErrNotFound) {
		h.serverError(w, data, "deleting post", err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// readPostForm parses and validates a submitted post, re-rendering the form
// on failure. The image stays currentImage unless a new one is uploaded or
// the clear box is ticked; uploads are stored only once the rest is valid.
func (h *Handlers) readPostForm(w http.ResponseWriter, r *http.Request, data *pageData, v Viewer, currentImage string) (*PostForm, bool) {
	if err := r.ParseMultipartForm(maxImageSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return nil, false
	}
	form := parsePostForm(r, h.Location, v.Now)
	if !form.ClearImage {
		form.Image = currentImage
	}
	if !h.loadChoices(w, r, data) {
		return nil, false
	}
	form.validChoices(data.Categories, data.Locations)
	if len(form.Errors) == 0 {
		image, err := saveImage(r, h.MediaDir)
		switch {
		case errors.Is(err, ErrInvalidImage):
			form.Errors["image"] = "Upload a valid JPEG, PNG, GIF or WebP image up to 5 MB"
		case err != nil:
			h.serverError(w, data, "saving image", err)
			return nil, false
		case image != "":
			form.Image = image
		}
	}
	if len(form.Errors) > 0 {
		h.renderPostForm(w, r, http.StatusBadRequest, data, form)
		return nil, false
	}
	return form, true
}

func (h *Handlers) renderPostForm(w http.ResponseWriter, r *http.Request, status int, data *pageData, form *PostForm) {
	if data.Categories == nil && data.Locations == nil && !h.loadChoices(w, r, data) {
		return
	}
	data.PostForm = form
	h.render(w, status, "post_form.html", data)
}

func (h *Handlers) loadChoices(w http.ResponseWriter, r *http.Request, data *pageData) bool {
	categories, err := h.db.ListCategories(r.Context())
	if err != nil {
		h.serverError(w, data, "listing categories", err)
		return false
	}
	locations, err := h.db.ListLocations(r.Context())
	if err != nil {
		h.serverError(w, data, "listing locations", err)
		return false
	}
	data.Categories = categories
	data.Locations = locations
	return true
}

// --- Comments ---

func (h *Handlers) addComment(w http.ResponseWriter, r *http.Request) {
	v, data, ok := h.begin(w, r)
	if !ok {
		return
	}
	if v.Anonymous() {
		h.redirectToLogin(w, r, "/posts/"+r.PathValue("id")+"/")
		return
	}
	post, ok := h.findPost(w, r, data, "id")
	if !ok {
		return
	}
	if AuthorizePost(v, ActionView, post) != Allow {
		h.notFound(w, data)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	form := parseCommentForm(r)
	if len(form.Errors) > 0 {
		h.renderDetail(w, r, http.StatusBadRequest, data, v, post, form)
		return
	}
	comment := &Comment{PostID: post.ID, AuthorID: v.UserID, Text: form.Text}
	if err := h.db.CreateComment(r.Context(), comment); err != nil {
		h.serverError(w, data, "creating comment", err)
		return
	}
	http.Redirect(w, r, postURL(post.ID), http.StatusSeeOther)
}

func (h *Handlers) editComment(w http.ResponseWriter, r *http.Request) {
	_, data, comment, ok := h.beginCommentMutation(w, r, ActionEdit)
	if !ok {
		return
	}
	data.Comment = comment

	if r.Method == http.MethodGet {
		data.CommentForm = &CommentForm{Text: comment.Text}
		h.render(w, http.StatusOK, "comment_form.html", data)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	form := parseCommentForm(r)
	if len(form.Errors) > 0 {
		data.CommentForm = form
		h.render(w, http.StatusBadRequest, "comment_form.html", data)
		return
	}
	err := h.db.UpdateComment(r.Context(), comment.PostID, comment.ID, form.Text)
	if errors.Is(err, ErrNotFound) {
		h.notFound(w, data)
		return
	}
	if err != nil {
		h.serverError(w, data, "updating comment", err)
		return
	}
	http.Redirect(w, r, postURL(comment.PostID), http.StatusSeeOther)
}

func (h *Handlers) deleteComment(w http.ResponseWriter, r *http.Request) {
	_, data, comment, ok := h.beginCommentMutation(w, r, ActionDelete)
	if !ok {
		return
	}
	data.Comment = comment

	if r.Method == http.MethodGet {
		data.Delete = true
		data.CommentForm = &CommentForm{Text: comment.Text}
		h.render(w, http.StatusOK, "comment_form.html", data)
		return
	}

	if err := h.db.DeleteComment(r.Context(), comment.PostID, comment.ID); err != nil && !errors.Is(err, ErrNotFound) {
		h.serverError(w, data, "deleting comment", err)
		return
	}
	http.Redirect(w, r, postURL(comment.PostID), http.StatusSeeOther)
}

// beginCommentMutation resolves the comment by (post_id, comment_id) and
// authorizes act on it. It writes the response itself when ok is false.
func (h *Handlers) beginCommentMutation(w http.ResponseWriter, r *http.Request, act Action) (Viewer, *pageData, *Comment, bool) {
	v, data, ok := h.begin(w, r)
	if !ok {
		return v, nil, nil, false
	}
	if v.Anonymous() {
		h.redirectToLogin(w, r, r.URL.Path)
		return v, nil, nil, false
	}
	postID, ok1 := pathID(r, "post_id")
	commentID, ok2 := pathID(r, "comment_id")
	if !ok1 || !ok2 {
		h.notFound(w, data)
		return v, nil, nil, false
	}
	comment, err := h.db.GetComment(r.Context(), postID, commentID)
	if errors.Is(err, ErrNotFound) {
		h.notFound(w, data)
		return v, nil, nil, false
	}
	if err != nil {
		h.serverError(w, data, "getting comment", err)
		return v, nil, nil, false
	}
	if d := AuthorizeComment(v, act, comment); d != Allow {
		h.deny(w, r, data, d, postURL(comment.PostID))
		return v, nil, nil, false
	}
	return v, data, comment, true
}

// --- Pages ---

func (h *Handlers) staticPage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, data, ok := h.begin(w, r)
		if !ok {
			return
		}
		h.render(w, http.StatusOK, name, data)
	}
}

func (h *Handlers) pageNotFound(w http.ResponseWriter, r *http.Request) {
	_, data, ok := h.begin(w, r)
	if !ok {
		return
	}
	h.notFound(w, data)
}

// --- Helpers ---

// begin resolves the requester. On failure the response is already written.
func (h *Handlers) begin(w http.ResponseWriter, r *http.Request) (Viewer, *pageData, bool) {
	v, user, err := h.viewer(r)
	data := &pageData{
		CurrentUser: user,
		Loc:         h.Location,
		CSRFToken:   h.Session.GetString(r.Context(), csrfSessionKey),
	}
	if err != nil {
		h.serverError(w, data, "loading session user", err)
		return v, nil, false
	}
	return v, data, true
}

func (h *Handlers) findPost(w http.ResponseWriter, r *http.Request, data *pageData, param string) (*Post, bool) {
	id, ok := pathID(r, param)
	if !ok {
		h.notFound(w, data)
		return nil, false
	}
	post, err := h.db.GetPost(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		h.notFound(w, data)
		return nil, false
	}
	if err != nil {
		h.serverError(w, data, "getting post", err)
		return nil, false
	}
	return post, true
}

// deny renders a negative decision. Redirects go to detailURL.
func (h *Handlers) deny(w http.ResponseWriter, r *http.Request, data *pageData, d Decision, detailURL string) {
	switch d {
	case RequireLogin:
		h.redirectToLogin(w, r, r.URL.Path)
	case DenyRedirect:
		http.Redirect(w, r, detailURL, http.StatusFound)
	default:
		h.notFound(w, data)
	}
}

func (h *Handlers) redirectToLogin(w http.ResponseWriter, r *http.Request, next string) {
	http.Redirect(w, r, "/auth/login/?next="+url.QueryEscape(next), http.StatusSeeOther)
}

func (h *Handlers) render(w http.ResponseWriter, status int, name string, data *pageData) {
	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.Printf("Error executing template %s: %v", name, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (h *Handlers) notFound(w http.ResponseWriter, data *pageData) {
	h.render(w, http.StatusNotFound, "404.html", data)
}

func (h *Handlers) serverError(w http.ResponseWriter, data *pageData, what string, err error) {
	log.Printf("Error %s: %v", what, err)
	h.render(w, http.StatusInternalServerError, "500.html", data)
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}

func postURL(id int64) string {
	return "/posts/" + strconv.FormatInt(id, 10) + "/"
}

func profileURL(username string) string {
	return "/profile/" + url.PathEscape(username) + "/"
}
