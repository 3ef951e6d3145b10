package dashboard

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// SessionCookie is the cookie carrying the signed session token.
const SessionCookie = "webfleet_session"

// sessionTTL is how long a login stays valid.
const sessionTTL = 24 * time.Hour

// ErrBadCredentials is returned for unknown users and wrong passwords
// alike, so login responses cannot be used to enumerate accounts.
var ErrBadCredentials = errors.New("invalid username or password")

// Claims identifies a logged-in session.
type Claims struct {
	Username string
}

type jwtClaims struct {
	Username string `json:"sub"`
	jwt.RegisteredClaims
}

// Auth verifies passwords against the store and issues session tokens.
type Auth struct {
	store  *Store
	secret []byte
}

// NewAuth creates the auth service. secret signs session tokens and must
// stay stable across restarts for sessions to survive them.
func NewAuth(store *Store, secret string) *Auth {
	return &Auth{store: store, secret: []byte(secret)}
}

// EnsureDefaultUser creates the initial admin account when the user table
// is empty. Returns true when an account was created.
func (a *Auth) EnsureDefaultUser(username, password string) (bool, error) {
	n, err := a.store.UserCount()
	if err != nil || n > 0 {
		return false, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}
	return true, a.store.CreateUser(username, string(hash))
}

// Login checks the password and returns a signed session token.
func (a *Auth) Login(username, password string) (string, error) {
	user, err := a.store.GetUser(username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrBadCredentials
		}
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", ErrBadCredentials
	}

	now := time.Now()
	claims := jwtClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ChangePassword verifies the current password and stores a new hash.
func (a *Auth) ChangePassword(username, current, next string) error {
	user, err := a.store.GetUser(username)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return ErrBadCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return a.store.UpdatePassword(username, string(hash))
}

// ParseToken validates a session token and returns its claims.
func (a *Auth) ParseToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &jwtClaims{}, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	c, ok := token.Claims.(*jwtClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid session token")
	}
	return &Claims{Username: c.Username}, nil
}

type ctxKey string

const claimsKey ctxKey = "claims"

// ClaimsFromContext returns the session claims, nil when not logged in.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

// RequireAuth rejects requests without a valid session cookie.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err != nil {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		claims, err := a.ParseToken(cookie.Value)
		if err != nil {
			http.Error(w, "session expired", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetSessionCookie writes the session cookie on a successful login.
func SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
}

// ClearSessionCookie expires the session cookie on logout.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}
