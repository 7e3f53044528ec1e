package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/tomato-slides/internal/handler"
	"github.com/sakif/tomato-slides/internal/repository/sqlite"
	"github.com/sakif/tomato-slides/internal/service"
)

func newSessionRouter(t *testing.T) http.Handler {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := handler.NewSessionHandler(service.NewSessionService(db, testLogger()), testLogger())
	r := chi.NewRouter()
	r.Post("/api/sessions/{code}/join", h.HandleJoin)
	r.Post("/api/sessions/{code}/code", h.HandleSaveCode)
	r.Get("/api/sessions/{code}/students", h.HandleListStudents)
	r.Get("/api/sessions/{code}/students/{studentId}", h.HandleGetStudent)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestSessionHandler_Flow(t *testing.T) {
	r := newSessionRouter(t)

	rr := do(t, r, http.MethodPost, "/api/sessions/room/join", `{"name":" Ada "}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var joined map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&joined))
	id := joined["studentId"]
	require.NotEmpty(t, id)

	rr = do(t, r, http.MethodPost, "/api/sessions/room/code",
		`{"studentId":"`+id+`","name":"Ada","code":"print(1)","output":"1\n"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true}`, rr.Body.String())

	rr = do(t, r, http.MethodGet, "/api/sessions/room/students/"+id, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"name":"Ada","code":"print(1)","output":"1\n"}`, rr.Body.String())

	rr = do(t, r, http.MethodGet, "/api/sessions/room/students", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Students []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Code string `json:"code"`
		} `json:"students"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	require.Len(t, list.Students, 1)
	assert.Equal(t, id, list.Students[0].ID)
	assert.Equal(t, "print(1)", list.Students[0].Code)
}

func TestSessionHandler_Errors(t *testing.T) {
	r := newSessionRouter(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"blank name", http.MethodPost, "/api/sessions/room/join", `{"name":"  "}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/api/sessions/room/join", `{`, http.StatusBadRequest},
		{"missing student id", http.MethodPost, "/api/sessions/room/code", `{"name":"Ada"}`, http.StatusBadRequest},
		{"missing name", http.MethodPost, "/api/sessions/room/code", `{"studentId":"x"}`, http.StatusBadRequest},
		{"unknown student", http.MethodGet, "/api/sessions/room/students/ghost", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, r, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.want, rr.Code)
		})
	}

	t.Run("empty session lists no students", func(t *testing.T) {
		rr := do(t, r, http.MethodGet, "/api/sessions/nobody/students", "")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"students":[]}`, rr.Body.String())
	})
}

func TestHandleHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	handler.HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "OK", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}
