package application

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/logging"
)

//Names of the cookies set on a successful login
const (
	AccessTokenCookie  = "dsm-access-token"
	RefreshTokenCookie = "dsm-refresh-token"
)

const sessionMarker = "access-token"

//HasSession returns true when the request carries a cookie that looks like an access token.
//Only the presence of the marker is checked.
func HasSession(r *http.Request) bool {
	for _, cookie := range r.Cookies() {
		if strings.Contains(cookie.Name, sessionMarker) {
			return true
		}
	}
	return false
}

//requireSession rejects requests without a session. API requests get a 401, pages are sent to the login form.
func requireSession(api bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if HasSession(r) {
				next.ServeHTTP(w, r)
				return
			}

			if api {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not signed in"})
				return
			}

			http.Redirect(w, r, "/login", http.StatusFound)
		})
	}
}

func redirectAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if HasSession(r) {
			http.Redirect(w, r, "/dashboard", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

//Authenticator checks operator credentials
type Authenticator interface {
	Authenticate(email, password string) bool
}

type bcryptAuthenticator struct {
	email string
	hash  []byte
	log   logging.Logger
}

//NewBcryptAuthenticator accepts a single operator whose password matches the bcrypt hash
func NewBcryptAuthenticator(email, passwordHash string, log logging.Logger) Authenticator {
	if passwordHash == "" {
		log.Warnf("No operator password hash configured, every login attempt will be rejected")
	}

	return &bcryptAuthenticator{
		email: strings.ToLower(strings.TrimSpace(email)),
		hash:  []byte(passwordHash),
		log:   log,
	}
}

func (a *bcryptAuthenticator) Authenticate(email, password string) bool {
	if len(a.hash) == 0 || strings.ToLower(strings.TrimSpace(email)) != a.email {
		return false
	}

	return bcrypt.CompareHashAndPassword(a.hash, []byte(password)) == nil
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type sessionHandlers struct {
	svc Services
}

func (h *sessionHandlers) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.rejectLogin(w, "", "Malformed login request")
		return
	}

	form := loginForm{Email: r.PostForm.Get("email"), Password: r.PostForm.Get("password")}
	if err := validate.Struct(form); err != nil {
		if _, ok := err.(validator.ValidationErrors); ok {
			h.rejectLogin(w, form.Email, "Enter an email address and a password")
			return
		}
		h.rejectLogin(w, form.Email, "Malformed login request")
		return
	}

	if !h.svc.Auth.Authenticate(form.Email, form.Password) {
		h.svc.Log.Warnf("Failed login attempt for %s", form.Email)
		h.rejectLogin(w, form.Email, "Invalid email or password")
		return
	}

	h.setCookie(w, AccessTokenCookie, uuid.NewString(), h.svc.SessionMaxAge)
	h.setCookie(w, RefreshTokenCookie, uuid.NewString(), h.svc.SessionMaxAge)

	h.svc.Log.Infof("Operator %s signed in", form.Email)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *sessionHandlers) logout(w http.ResponseWriter, r *http.Request) {
	for _, cookie := range r.Cookies() {
		if strings.Contains(cookie.Name, sessionMarker) || cookie.Name == RefreshTokenCookie {
			h.setCookie(w, cookie.Name, "", -1)
		}
	}

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *sessionHandlers) rejectLogin(w http.ResponseWriter, email, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)

	if err := h.svc.Pages.Login(w, email, message); err != nil {
		h.svc.Log.Errorf("Failed to render login page: %s", err.Error())
	}
}

func (h *sessionHandlers) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
