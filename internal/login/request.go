package login

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/ecoagris/portal/internal/auth"
)

const maxBodyBytes = 64 << 10

// Credentials is the body of a login request. Exactly one of IDToken or
// the Email and Password pair is set.
type Credentials struct {
	IDToken  string `json:"idToken,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

func (c Credentials) validate() error {
	hasToken := c.IDToken != ""
	hasPassword := c.Email != "" || c.Password != ""

	switch {
	case hasToken && hasPassword:
		return errors.New("both idToken and email/password supplied")
	case hasToken:
		return nil
	case c.Email == "" || c.Password == "":
		return errors.New("idToken or email and password required")
	default:
		return nil
	}
}

// isFormPost reports whether r came from the no-JS login form.
func isFormPost(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}

// decodeCredentials parses a JSON or form login body. Any failure is a
// malformed request.
func decodeCredentials(w http.ResponseWriter, r *http.Request) (Credentials, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var creds Credentials

	if isFormPost(r) {
		if err := r.ParseForm(); err != nil {
			return creds, auth.NewError(auth.KindMalformedRequest, err)
		}
		creds = Credentials{
			IDToken:  r.PostForm.Get("idToken"),
			Email:    r.PostForm.Get("email"),
			Password: r.PostForm.Get("password"),
		}
	} else {
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "application/json" {
			return creds, auth.NewError(auth.KindMalformedRequest, fmt.Errorf("unsupported content type %q", r.Header.Get("Content-Type")))
		}

		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&creds); err != nil {
			return creds, auth.NewError(auth.KindMalformedRequest, err)
		}
		if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
			return creds, auth.NewError(auth.KindMalformedRequest, errors.New("trailing data after JSON body"))
		}
	}

	if err := creds.validate(); err != nil {
		return creds, auth.NewError(auth.KindMalformedRequest, err)
	}

	return creds, nil
}
