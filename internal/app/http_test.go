package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"taskboard/internal/auth"
	"taskboard/internal/authpw"
	"taskboard/internal/store"
	"taskboard/internal/util"
)

func newTestHTTPServer(fs *fakeStore) *HTTPServer {
	svc := newTestService(fs)
	svc.creds = authpw.NewService(fs)
	return NewHTTPServer(svc, "*", zerolog.Nop())
}

func bearerFor(t *testing.T, svc *Service, userID string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(svc.cfg.TokenSecret), auth.Claims{
		Sub:  userID,
		Name: "Avery",
		JTI:  util.NewID("jti"),
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return token
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestHTTPServer(&fakeStore{})
	recorder := doJSON(t, server.Handler(), http.MethodGet, "/api/health", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("health status = %d", recorder.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if payload["ok"] != true {
		t.Fatalf("health payload = %v", payload)
	}
}

func TestCommentRoutesRequireAuth(t *testing.T) {
	server := newTestHTTPServer(&fakeStore{})
	recorder := doJSON(t, server.Handler(), http.MethodGet, "/api/tasks/tsk_1/comments", "", nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list status = %d", recorder.Code)
	}
	recorder = doJSON(t, server.Handler(), http.MethodPost, "/api/tasks/tsk_1/comments", "garbage-token", map[string]any{"content": "hi"})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d", recorder.Code)
	}
}

func TestCreateCommentOverHTTP(t *testing.T) {
	var inserted store.Comment
	fs := &fakeStore{
		insertCommentFn: func(_ context.Context, comment store.Comment) error {
			inserted = comment
			return nil
		},
	}
	fs.getCommentFn = func(_ context.Context, _, commentID string) (store.Comment, error) {
		if commentID == inserted.ID {
			return inserted, nil
		}
		return store.Comment{}, sql.ErrNoRows
	}
	server := newTestHTTPServer(fs)
	token := bearerFor(t, server.service, "usr_a")

	recorder := doJSON(t, server.Handler(), http.MethodPost, "/api/tasks/tsk_1/comments", token, map[string]any{
		"content": "Hello **world**",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["formattedContent"] != "Hello <strong>world</strong>" {
		t.Fatalf("formattedContent = %v", payload["formattedContent"])
	}
	if inserted.UserID != "usr_a" {
		t.Fatalf("comment author = %q", inserted.UserID)
	}
}

func TestReactionRoutes(t *testing.T) {
	comment := store.Comment{ID: "cmt_1", TaskID: "tsk_1", UserID: "usr_author"}
	fs := &fakeStore{getCommentFn: commentLookup(comment)}
	server := newTestHTTPServer(fs)
	token := bearerFor(t, server.service, "usr_b")

	recorder := doJSON(t, server.Handler(), http.MethodPost, "/api/tasks/tsk_1/comments/cmt_1/reactions", token, map[string]any{"emoji": "👍"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("add reaction status = %d, body = %s", recorder.Code, recorder.Body.String())
	}

	recorder = doJSON(t, server.Handler(), http.MethodPost, "/api/tasks/tsk_1/comments/cmt_1/reactions", token, map[string]any{"emoji": "💀"})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("invalid emoji status = %d", recorder.Code)
	}
	var errPayload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &errPayload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errPayload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("error code = %v", errPayload["code"])
	}

	recorder = doJSON(t, server.Handler(), http.MethodDelete, "/api/tasks/tsk_1/comments/cmt_1/reactions/👍", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("remove reaction status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
}

func TestDeleteCommentRouteMapsForbidden(t *testing.T) {
	comment := store.Comment{ID: "cmt_1", TaskID: "tsk_1", UserID: "usr_author"}
	fs := &fakeStore{getCommentFn: commentLookup(comment)}
	server := newTestHTTPServer(fs)
	token := bearerFor(t, server.service, "usr_other")

	recorder := doJSON(t, server.Handler(), http.MethodDelete, "/api/tasks/tsk_1/comments/cmt_1", token, nil)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("non-author delete status = %d", recorder.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["code"] != "FORBIDDEN" {
		t.Fatalf("error code = %v", payload["code"])
	}
}

func TestSignupAndSigninOverHTTP(t *testing.T) {
	users := map[string]store.User{}
	fs := &fakeStore{
		createUserFn: func(_ context.Context, user store.User) error {
			users[user.Email] = user
			return nil
		},
	}
	fs.getUserByEmailFn = func(_ context.Context, email string) (store.User, error) {
		if user, ok := users[email]; ok {
			return user, nil
		}
		return store.User{}, sql.ErrNoRows
	}
	fs.getUserByIDFn = func(_ context.Context, userID string) (store.User, error) {
		for _, user := range users {
			if user.ID == userID {
				return user, nil
			}
		}
		return store.User{}, sql.ErrNoRows
	}
	server := newTestHTTPServer(fs)

	recorder := doJSON(t, server.Handler(), http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email":       "avery@example.com",
		"password":    "hunter2hunter2",
		"displayName": "Avery",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body = %s", recorder.Code, recorder.Body.String())
	}

	recorder = doJSON(t, server.Handler(), http.MethodPost, "/api/auth/signin", "", map[string]any{
		"email":    "avery@example.com",
		"password": "hunter2hunter2",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("signin status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode signin body: %v", err)
	}
	token, _ := payload["token"].(string)
	if token == "" {
		t.Fatal("signin must return an access token")
	}

	recorder = doJSON(t, server.Handler(), http.MethodGet, "/api/session", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("session status = %d", recorder.Code)
	}
	var session map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode session body: %v", err)
	}
	if session["authenticated"] != true || session["userName"] != "Avery" {
		t.Fatalf("session payload = %v", session)
	}

	recorder = doJSON(t, server.Handler(), http.MethodPost, "/api/auth/signin", "", map[string]any{
		"email":    "avery@example.com",
		"password": "wrong-password",
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status = %d", recorder.Code)
	}
}
