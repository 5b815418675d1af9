package blog

import "time"

// Viewer is the requester of a single request together with the clock
// reading used for every visibility check made on its behalf.
// An empty UserID is an anonymous visitor.
type Viewer struct {
	UserID string
	Now    time.Time
}

func (v Viewer) Anonymous() bool {
	return v.UserID == ""
}

func (v Viewer) Is(userID string) bool {
	return !v.Anonymous() && v.UserID == userID
}

type Action int

const (
	ActionView Action = iota
	ActionEdit
	ActionDelete
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	Allow Decision = iota
	// DenyNotFound is rendered exactly like a missing entity.
	DenyNotFound
	// DenyRedirect sends the requester back to the entity's detail page.
	DenyRedirect
	// RequireLogin sends an anonymous requester to the login form.
	RequireLogin
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyNotFound:
		return "not found"
	case DenyRedirect:
		return "redirect"
	case RequireLogin:
		return "login required"
	}
	return "unknown"
}

// PubliclyVisible reports whether anyone may see the post at now.
func (p *Post) PubliclyVisible(now time.Time) bool {
	if !p.IsPublished || p.PubDate.After(now) {
		return false
	}
	return p.Category == nil || p.Category.IsPublished
}

// AuthorizePost decides whether v may perform act on p. A nil post is treated
// as missing.
func AuthorizePost(v Viewer, act Action, p *Post) Decision {
	if p == nil {
		return DenyNotFound
	}
	if act == ActionView {
		if v.Is(p.AuthorID) || p.PubliclyVisible(v.Now) {
			return Allow
		}
		return DenyNotFound
	}
	return authorizeMutation(v, p.AuthorID)
}

// AuthorizeComment decides whether v may edit or delete c. Comments have no
// page of their own, so viewing is governed by the parent post.
func AuthorizeComment(v Viewer, act Action, c *Comment) Decision {
	if c == nil {
		return DenyNotFound
	}
	if act == ActionView {
		return Allow
	}
	return authorizeMutation(v, c.AuthorID)
}

// AuthorizeProfileEdit lets users change their own account only.
func AuthorizeProfileEdit(v Viewer, u *User) Decision {
	if u == nil {
		return DenyNotFound
	}
	return authorizeMutation(v, u.ID)
}

func authorizeMutation(v Viewer, authorID string) Decision {
	if v.Anonymous() {
		return RequireLogin
	}
	if v.UserID != authorID {
		return DenyRedirect
	}
	return Allow
}
