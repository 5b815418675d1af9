package blog

import (
	"errors"
	"net/http"
	"strings"
)

const sessionUserKey = "userID"

var ErrInvalidCredentials = errors.New("invalid username or password")

// viewer builds the requester for r from the session. A session pointing at a
// deleted user is treated as anonymous.
func (h *Handlers) viewer(r *http.Request) (Viewer, *User, error) {
	v := Viewer{Now: h.Now()}
	id := h.Session.GetString(r.Context(), sessionUserKey)
	if id == "" {
		return v, nil, nil
	}
	user, err := h.db.GetUserByID(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		h.Session.Remove(r.Context(), sessionUserKey)
		return v, nil, nil
	}
	if err != nil {
		return v, nil, err
	}
	v.UserID = user.ID
	return v, user, nil
}

func (h *Handlers) authenticate(r *http.Request, username, password string) (*User, error) {
	user, err := h.db.GetUserByUsername(r.Context(), strings.TrimSpace(username))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	ok, err := user.PasswordMatches(password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (h *Handlers) startSession(r *http.Request, user *User) error {
	if err := h.Session.RenewToken(r.Context()); err != nil {
		return err
	}
	h.Session.Put(r.Context(), sessionUserKey, user.ID)
	return nil
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	_, data, ok := h.begin(w, r)
	if !ok {
		return
	}
	data.Next = safeNext(r.URL.Query().Get("next"))

	if r.Method == http.MethodGet {
		h.render(w, http.StatusOK, "login.html", data)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	if next := r.PostFormValue("next"); next != "" {
		data.Next = safeNext(next)
	}
	user, err := h.authenticate(r, r.PostFormValue("username"), r.PostFormValue("password"))
	if errors.Is(err, ErrInvalidCredentials) {
		data.Errors = map[string]string{"login": "Please enter a correct username and password"}
		h.render(w, http.StatusBadRequest, "login.html", data)
		return
	}
	if err != nil {
		h.serverError(w, data, "authenticating", err)
		return
	}
	if err := h.startSession(r, user); err != nil {
		h.serverError(w, data, "starting session", err)
		return
	}

	target := data.Next
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Session.Destroy(r.Context()); err != nil {
		_, data, ok := h.begin(w, r)
		if !ok {
			return
		}
		h.serverError(w, data, "destroying session", err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	_, data, ok := h.begin(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet {
		data.Profile = &User{}
		h.render(w, http.StatusOK, "registration.html", data)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	form, password := parseRegistrationForm(r)
	data.Profile = form.User
	data.Errors = form.Errors
	if len(form.Errors) > 0 {
		h.render(w, http.StatusBadRequest, "registration.html", data)
		return
	}
	if err := form.User.SetPassword(password); err != nil {
		h.serverError(w, data, "hashing password", err)
		return
	}
	err := h.db.CreateUser(r.Context(), form.User)
	if errors.Is(err, ErrDuplicate) {
		data.Errors[duplicateField(err)] = "A user with that value already exists"
		h.render(w, http.StatusBadRequest, "registration.html", data)
		return
	}
	if err != nil {
		h.serverError(w, data, "creating user", err)
		return
	}
	if err := h.startSession(r, form.User); err != nil {
		h.serverError(w, data, "starting session", err)
		return
	}
	http.Redirect(w, r, profileURL(form.User.Username), http.StatusSeeOther)
}

func (h *Handlers) editProfile(w http.ResponseWriter, r *http.Request) {
	v, data, ok := h.begin(w, r)
	if !ok {
		return
	}
	if v.Anonymous() {
		h.redirectToLogin(w, r, r.URL.Path)
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
	if d := AuthorizeProfileEdit(v, profile); d != Allow {
		h.deny(w, r, data, d, profileURL(profile.Username))
		return
	}
	data.Profile = profile

	if r.Method == http.MethodGet {
		h.render(w, http.StatusOK, "profile_form.html", data)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	data.Errors = applyProfileForm(r, profile)
	if len(data.Errors) > 0 {
		h.render(w, http.StatusBadRequest, "profile_form.html", data)
		return
	}
	err = h.db.UpdateUser(r.Context(), profile)
	if errors.Is(err, ErrDuplicate) {
		data.Errors[duplicateField(err)] = "A user with that value already exists"
		h.render(w, http.StatusBadRequest, "profile_form.html", data)
		return
	}
	if err != nil {
		h.serverError(w, data, "updating profile", err)
		return
	}
	http.Redirect(w, r, profileURL(profile.Username), http.StatusSeeOther)
}

// duplicateField names the form field behind a unique violation.
func duplicateField(err error) string {
	if strings.Contains(err.Error(), "email") {
		return "email"
	}
	return "username"
}

// safeNext only allows local absolute paths as redirect targets.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	return next
}
