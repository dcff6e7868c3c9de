package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/converse-im/converse/internal/database"
	"github.com/converse-im/converse/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCreateAccount(t *testing.T) {
	db := &database.MockConverseRepository{}
	db.On("CreateAccount", mock.MatchedBy(func(p database.CreateAccountParams) bool {
		return p.Id == "user-1" && p.Email == "alice@example.com" &&
			p.DisplayName == "Alice" && p.PasswordHash != "s3cretpass"
	})).Return(database.User{Id: "user-1", Email: "alice@example.com", DisplayName: "Alice"}, nil)

	app, mux := newTestApp(t, db)
	app.generateId = func() (string, error) { return "user-1", nil }

	body := `{"email":"alice@example.com","display_name":"Alice","password":"s3cretpass"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	db.AssertExpectations(t)
}

func TestCreateAccount_validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing email", `{"display_name":"Alice","password":"s3cretpass"}`},
		{"malformed email", `{"email":"nope","display_name":"Alice","password":"s3cretpass"}`},
		{"short password", `{"email":"alice@example.com","display_name":"Alice","password":"short"}`},
		{"missing display name", `{"email":"alice@example.com","password":"s3cretpass"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockConverseRepository{}
			_, mux := newTestApp(t, db)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(tc.body)))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			db.AssertNotCalled(t, "CreateAccount", mock.Anything)
		})
	}
}

func TestLogin(t *testing.T) {
	pwdHash, err := hashPassword("s3cretpass")
	require.NoError(t, err)

	db := &database.MockConverseRepository{}
	db.On("GetAccountByEmail", "alice@example.com").
		Return(database.User{Id: "user-1", Email: "alice@example.com", PasswordHash: pwdHash}, nil)

	_, mux := newTestApp(t, db)

	body := `{"email":"alice@example.com","password":"s3cretpass"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)

	var session SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, "user-1", session.User.Id)

	// the token in the body must pass the same verification the gateway runs
	userId, err := token.Verify(testSigningKey, session.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userId)

	// and it also travels as a cookie for browser sessions
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, tokenCookieKey, cookies[0].Name)
	assert.Equal(t, session.Token, cookies[0].Value)
}

func TestLogin_wrongPassword(t *testing.T) {
	pwdHash, err := hashPassword("s3cretpass")
	require.NoError(t, err)

	db := &database.MockConverseRepository{}
	db.On("GetAccountByEmail", "alice@example.com").
		Return(database.User{Id: "user-1", PasswordHash: pwdHash}, nil)

	_, mux := newTestApp(t, db)

	body := `{"email":"alice@example.com","password":"wrongpass"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body)))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_unknownEmail(t *testing.T) {
	db := &database.MockConverseRepository{}
	db.On("GetAccountByEmail", "ghost@example.com").Return(database.User{}, sql.ErrNoRows)

	_, mux := newTestApp(t, db)

	body := `{"email":"ghost@example.com","password":"s3cretpass"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body)))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSession(t *testing.T) {
	db := &database.MockConverseRepository{}
	db.On("GetAccountById", "user-1").Return(database.User{Id: "user-1", Email: "alice@example.com"}, nil)

	_, mux := newTestApp(t, db)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/auth/session", "", "user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	db.AssertExpectations(t)
}

func TestSession_requiresToken(t *testing.T) {
	_, mux := newTestApp(t, &database.MockConverseRepository{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_expiresCookie(t *testing.T) {
	_, mux := newTestApp(t, &database.MockConverseRepository{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/auth/logout", "", "user-1"))

	require.Equal(t, http.StatusNoContent, rec.Code)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Empty(t, cookies[0].Value)
}
