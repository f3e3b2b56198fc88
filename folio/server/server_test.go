package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/folio/folio/agent"
	"github.com/ZanzyTHEbar/folio/folio/chat"
	"github.com/ZanzyTHEbar/folio/folio/config"
	"github.com/ZanzyTHEbar/folio/folio/db/dbtest"
	"github.com/ZanzyTHEbar/folio/folio/meeting"
	"github.com/ZanzyTHEbar/folio/folio/notify"
	"github.com/ZanzyTHEbar/folio/folio/profile"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTurns struct {
	resp *chat.Response
	err  error
	got  []chat.Request
}

func (s *stubTurns) AdvanceTurn(ctx context.Context, req chat.Request) (*chat.Response, error) {
	s.got = append(s.got, req)
	return s.resp, s.err
}

type panicTurns struct{}

func (panicTurns) AdvanceTurn(ctx context.Context, req chat.Request) (*chat.Response, error) {
	panic("boom")
}

type rig struct {
	srv      *httptest.Server
	hub      *notify.Hub
	meetings *meeting.Service
	profiles *profile.Store
}

func newRig(t *testing.T, cfg config.ServerConfig, turns TurnAdvancer) *rig {
	t.Helper()

	conn := dbtest.New(t)
	hub := notify.NewHub("discord", zerolog.Nop())
	approver := meeting.NewApprover(hub, meeting.NewLibSQLKV(conn), 5*time.Millisecond, 2*time.Second, zerolog.Nop())
	svc := meeting.NewService(meeting.NewStore(conn), approver, meeting.ServiceOptions{Owner: "Samarth"}, zerolog.Nop())
	t.Cleanup(svc.Close)

	profiles := profile.NewStore(conn)
	s := New(cfg, Deps{
		Chat:     turns,
		Meetings: svc,
		Profiles: profiles,
		Channels: notify.NewRegistry(hub),
	}, zerolog.Nop())

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &rig{srv: srv, hub: hub, meetings: svc, profiles: profiles}
}

func (r *rig) do(t *testing.T, method, path string, body any, headers ...string) (*http.Response, []byte) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, r.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := r.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func TestHealthAndRoot(t *testing.T) {
	r := newRig(t, config.ServerConfig{}, &stubTurns{})

	resp, body := r.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"OK"}`, string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	resp, body = r.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"ok"`)

	resp, _ = r.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChatPassesRequestThrough(t *testing.T) {
	turns := &stubTurns{resp: &chat.Response{
		Conversation: []chat.Entry{{Role: chat.RoleUser, Content: "hi"}},
		PendingCalls: []chat.Call{{CallID: "c1", Tool: "discord_tool"}},
		Status:       chat.StatusPending,
	}}
	r := newRig(t, config.ServerConfig{}, turns)

	resp, body := r.do(t, http.MethodPost, "/chat", `{"message":"","conversation":[],"username":"u1",
		"completedMessageIds":["c0"],"pending_calls":[{"callId":"c1","tool":"discord_tool"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out chat.Response
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, chat.StatusPending, out.Status)
	require.Len(t, out.PendingCalls, 1)

	require.Len(t, turns.got, 1)
	assert.Equal(t, "u1", turns.got[0].Username)
	assert.Equal(t, []string{"c0"}, turns.got[0].CompletedIDs)
	assert.True(t, turns.got[0].IsPoll())
}

func TestChatErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{agent.ErrEmptyTurn, http.StatusBadRequest},
		{agent.ErrTurnInProgress, http.StatusConflict},
		{fmt.Errorf("%w: limit", agent.ErrRateLimited), http.StatusTooManyRequests},
		{fmt.Errorf("%w: upstream 500", agent.ErrProvider), http.StatusBadGateway},
		{errors.New("ledger down"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			r := newRig(t, config.ServerConfig{}, &stubTurns{err: tc.err})
			resp, body := r.do(t, http.MethodPost, "/chat", chat.Request{Message: "hi"})
			assert.Equal(t, tc.status, resp.StatusCode)

			var e map[string]string
			require.NoError(t, json.Unmarshal(body, &e))
			assert.Equal(t, tc.err.Error(), e["error"])
		})
	}
}

func TestChatRejectsBadBodies(t *testing.T) {
	r := newRig(t, config.ServerConfig{MaxBodyBytes: 64}, &stubTurns{})

	resp, _ := r.do(t, http.MethodPost, "/chat", `{"message":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	big := chat.Request{Message: strings.Repeat("x", 200)}
	resp, body := r.do(t, http.MethodPost, "/chat", big)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "exceeds 64 bytes")
}

func TestRecoveryReturns500(t *testing.T) {
	r := newRig(t, config.ServerConfig{}, panicTurns{})

	resp, body := r.do(t, http.MethodPost, "/chat", chat.Request{Message: "hi"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"internal server error"}`, string(body))
}

func TestCORS(t *testing.T) {
	r := newRig(t, config.ServerConfig{CORSOrigins: []string{"https://folio.example"}}, &stubTurns{})

	resp, _ := r.do(t, http.MethodOptions, "/chat", nil,
		"Origin", "https://folio.example",
		"Access-Control-Request-Method", "POST")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://folio.example", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, _ = r.do(t, http.MethodGet, "/health", nil, "Origin", "https://evil.example")
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestProfileEndpoint(t *testing.T) {
	r := newRig(t, config.ServerConfig{}, &stubTurns{})

	resp, body := r.do(t, http.MethodGet, "/api/profile", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Profile not found"}`, string(body))

	require.NoError(t, r.profiles.Put(context.Background(), json.RawMessage(`{"name":"Samarth","skills":["go"]}`)))
	resp, body = r.do(t, http.MethodGet, "/api/profile", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"name":"Samarth","skills":["go"]}`, string(body))
}

func TestMeetingsLifecycle(t *testing.T) {
	r := newRig(t, config.ServerConfig{}, &stubTurns{})

	resp, body := r.do(t, http.MethodPost, "/api/meetings", map[string]any{
		"title":        "Intro call",
		"datetime":     "2026-11-02T15:00",
		"participants": []string{"visitor@example.com"},
		"requestedBy":  "visitor",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created meeting.Meeting
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, meeting.StatusPending, created.Status)
	assert.Equal(t, 15, created.Datetime.Hour())

	resp, body = r.do(t, http.MethodGet, "/api/meetings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []meeting.Meeting
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)

	resp, _ = r.do(t, http.MethodPatch, "/api/meetings/"+created.ID, map[string]string{"status": "maybe"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = r.do(t, http.MethodPatch, "/api/meetings/missing", map[string]string{"status": "confirmed"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = r.do(t, http.MethodPatch, "/api/meetings/"+created.ID, map[string]string{"status": "declined", "confirmedBy": "Samarth"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated meeting.Meeting
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, meeting.StatusDeclined, updated.Status)
	assert.Equal(t, "Samarth", updated.ConfirmedBy)
}

func TestCreateMeetingValidation(t *testing.T) {
	r := newRig(t, config.ServerConfig{}, &stubTurns{})

	resp, _ := r.do(t, http.MethodPost, "/api/meetings", map[string]any{"title": "x", "requestedBy": "v"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = r.do(t, http.MethodPost, "/api/meetings", map[string]any{"title": "x", "requestedBy": "v", "datetime": "next tuesday"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestApprovalThroughHook(t *testing.T) {
	r := newRig(t, config.ServerConfig{HookToken: "s3cret"}, &stubTurns{})

	m, err := r.meetings.Create(context.Background(), meeting.Request{
		Title:       "Intro call",
		Datetime:    time.Date(2026, 11, 2, 15, 0, 0, 0, time.UTC),
		RequestedBy: "visitor",
	})
	require.NoError(t, err)

	hook := func(token string) int {
		raw, _ := json.Marshal(map[string]string{"author": "owner", "content": "confirm " + m.ID})
		req, _ := http.NewRequest(http.MethodPost, r.srv.URL+"/hooks/discord", bytes.NewReader(raw))
		if token != "" {
			req.Header.Set(HookTokenHeader, token)
		}
		resp, err := r.srv.Client().Do(req)
		if err != nil {
			return 0
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	go func() {
		assert.Eventually(t, func() bool { return len(r.hub.Outbox()) > 0 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, http.StatusUnauthorized, hook(""))
		assert.Equal(t, http.StatusAccepted, hook("s3cret"))
	}()

	resp, body := r.do(t, http.MethodPost, "/api/meetings/"+m.ID+"/approval", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out approvalBody
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, meeting.OutcomeConfirmed, out.Outcome)
	require.NotNil(t, out.Meeting)
	assert.Equal(t, meeting.StatusConfirmed, out.Meeting.Status)
	assert.Equal(t, "Samarth", out.Meeting.ConfirmedBy)
}

func TestHookErrors(t *testing.T) {
	r := newRig(t, config.ServerConfig{}, &stubTurns{})

	resp, _ := r.do(t, http.MethodPost, "/hooks/teams", map[string]string{"content": "hi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = r.do(t, http.MethodPost, "/hooks/discord", map[string]string{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNilServicesAnswer503(t *testing.T) {
	s := New(config.ServerConfig{}, Deps{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hi"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/meetings", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
