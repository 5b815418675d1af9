package blog

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"net/http"
)

const (
	csrfSessionKey = "csrfToken"
	csrfField      = "csrf_token"
	csrfHeader     = "X-CSRF-Token"
	maxRequestBody = maxImageSize + 1<<20
)

// CSRF gives every session a token and rejects unsafe requests that do not
// echo it back in the csrf_token form field or the X-CSRF-Token header.
// It needs the session loaded, so it goes inside Session.LoadAndSave.
func (h *Handlers) CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.csrfToken(r)
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
			next.ServeHTTP(w, r)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		sent := r.Header.Get(csrfHeader)
		if sent == "" {
			if err := r.ParseMultipartForm(maxImageSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
				http.Error(w, "Failed to parse form", http.StatusBadRequest)
				return
			}
			sent = r.PostFormValue(csrfField)
		}
		if subtle.ConstantTimeCompare([]byte(sent), []byte(token)) != 1 {
			h.csrfFailure(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) csrfToken(r *http.Request) string {
	token := h.Session.GetString(r.Context(), csrfSessionKey)
	if token == "" {
		token = rand.Text()
		h.Session.Put(r.Context(), csrfSessionKey, token)
	}
	return token
}

func (h *Handlers) csrfFailure(w http.ResponseWriter, r *http.Request) {
	_, data, ok := h.begin(w, r)
	if !ok {
		return
	}
	h.render(w, http.StatusForbidden, "403csrf.html", data)
}
