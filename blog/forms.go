package blog

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	maxTitle        = 256
	dateInputLayout = "2006-01-02T15:04"
)

// PostForm carries the editable fields of a post. Errors is keyed by field name.
type PostForm struct {
	Title       string
	Text        string
	Image       string
	ClearImage  bool
	PubDate     time.Time
	LocationID  int64
	CategoryID  int64
	IsPublished bool
	Errors      map[string]string
}

// PubDateInput formats the publish date for a datetime-local input.
func (f *PostForm) PubDateInput(loc *time.Location) string {
	if f.PubDate.IsZero() {
		return ""
	}
	return f.PubDate.In(loc).Format(dateInputLayout)
}

func postFormFrom(p *Post) *PostForm {
	f := &PostForm{
		Title:       p.Title,
		Text:        p.Text,
		Image:       p.Image,
		PubDate:     p.PubDate,
		IsPublished: p.IsPublished,
	}
	if p.Category != nil {
		f.CategoryID = p.Category.ID
	}
	if p.Location != nil {
		f.LocationID = p.Location.ID
	}
	return f
}

// parsePostForm reads a submitted post form. An empty publish date means now.
func parsePostForm(r *http.Request, loc *time.Location, now time.Time) *PostForm {
	f := &PostForm{
		Title:       strings.TrimSpace(r.PostFormValue("title")),
		Text:        strings.TrimSpace(r.PostFormValue("text")),
		IsPublished: r.PostFormValue("is_published") != "",
		ClearImage:  r.PostFormValue("image-clear") != "",
		Errors:      make(map[string]string),
	}

	switch {
	case f.Title == "":
		f.Errors["title"] = "Title is required"
	case len(f.Title) > maxTitle:
		f.Errors["title"] = "Title cannot be longer than 256 characters"
	}
	if f.Text == "" {
		f.Errors["text"] = "Text is required"
	}

	if raw := strings.TrimSpace(r.PostFormValue("pub_date")); raw != "" {
		t, err := time.ParseInLocation(dateInputLayout, raw, loc)
		if err != nil {
			f.Errors["pub_date"] = "Enter a valid date and time"
		}
		f.PubDate = t
	} else {
		f.PubDate = now
	}

	f.CategoryID = parseOptionalID(r.PostFormValue("category"), "category", f.Errors)
	f.LocationID = parseOptionalID(r.PostFormValue("location"), "location", f.Errors)
	return f
}

func parseOptionalID(raw, field string, errs map[string]string) int64 {
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		errs[field] = "Select a valid choice"
		return 0
	}
	return id
}

// validChoices rejects category or location ids that do not exist.
func (f *PostForm) validChoices(categories []Category, locations []Location) {
	if f.CategoryID != 0 && !slices.ContainsFunc(categories, func(c Category) bool { return c.ID == f.CategoryID }) {
		f.Errors["category"] = "Select a valid choice"
	}
	if f.LocationID != 0 && !slices.ContainsFunc(locations, func(l Location) bool { return l.ID == f.LocationID }) {
		f.Errors["location"] = "Select a valid choice"
	}
}

type CommentForm struct {
	Text   string
	Errors map[string]string
}

func parseCommentForm(r *http.Request) *CommentForm {
	f := &CommentForm{
		Text:   strings.TrimSpace(r.PostFormValue("text")),
		Errors: make(map[string]string),
	}
	if f.Text == "" {
		f.Errors["text"] = "Comment cannot be empty"
	}
	return f
}

// RegistrationForm is the sign up form; the user fields are validated by User.Validate.
type RegistrationForm struct {
	User   *User
	Errors map[string]string
}

func parseRegistrationForm(r *http.Request) (*RegistrationForm, string) {
	u := NewUser(r.PostFormValue("username"), r.PostFormValue("email"))
	u.FirstName = strings.TrimSpace(r.PostFormValue("first_name"))
	u.LastName = strings.TrimSpace(r.PostFormValue("last_name"))
	f := &RegistrationForm{User: u, Errors: u.Validate()}

	password := r.PostFormValue("password1")
	switch {
	case len(password) < minPassword:
		f.Errors["password1"] = "Password must be at least 8 characters long"
	case password != r.PostFormValue("password2"):
		f.Errors["password2"] = "The two password fields didn't match"
	}
	return f, password
}

// applyProfileForm copies submitted profile fields onto u and validates them.
func applyProfileForm(r *http.Request, u *User) map[string]string {
	u.Username = strings.TrimSpace(r.PostFormValue("username"))
	u.Email = strings.ToLower(strings.TrimSpace(r.PostFormValue("email")))
	u.FirstName = strings.TrimSpace(r.PostFormValue("first_name"))
	u.LastName = strings.TrimSpace(r.PostFormValue("last_name"))
	return u.Validate()
}
