package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/folio/folio/agent"
	"github.com/ZanzyTHEbar/folio/folio/chat"
	"github.com/ZanzyTHEbar/folio/folio/meeting"
	"github.com/ZanzyTHEbar/folio/folio/notify"
	"github.com/ZanzyTHEbar/folio/folio/profile"
	"github.com/rs/zerolog/hlog"
)

// HookTokenHeader carries the shared secret for /hooks when one is configured.
const HookTokenHeader = "X-Folio-Hook-Token"

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chat == nil {
		writeErrorString(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}

	var req chat.Request
	if err := decodeJSON(r.Body, &req); err != nil {
		writeErrorString(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := s.deps.Chat.AdvanceTurn(r.Context(), req)
	if err != nil {
		status := chatStatus(err)
		event := hlog.FromRequest(r).Warn()
		if status >= http.StatusInternalServerError {
			event = hlog.FromRequest(r).Error()
		}
		event.Err(err).Int("status", status).Str("username", req.Username).Msg("chat turn failed")
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func chatStatus(err error) int {
	switch {
	case errors.Is(err, agent.ErrEmptyTurn):
		return http.StatusBadRequest
	case errors.Is(err, agent.ErrTurnInProgress):
		return http.StatusConflict
	case errors.Is(err, agent.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if s.deps.Profiles == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Profile not found"})
		return
	}

	doc, err := s.deps.Profiles.Get(r.Context())
	switch {
	case errors.Is(err, profile.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Profile not found"})
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Msg("failed to load profile")
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, doc)
	}
}

type meetingBody struct {
	Title        string   `json:"title"`
	Datetime     string   `json:"datetime"`
	Participants []string `json:"participants"`
	RequestedBy  string   `json:"requestedBy"`
}

type respondBody struct {
	Status      meeting.Status `json:"status"`
	ConfirmedBy string         `json:"confirmedBy"`
}

type approvalBody struct {
	Outcome meeting.Outcome  `json:"outcome"`
	Meeting *meeting.Meeting `json:"meeting"`
}

func (s *Server) handleListMeetings(w http.ResponseWriter, r *http.Request) {
	if !s.meetingsReady(w) {
		return
	}
	list, err := s.deps.Meetings.List(r.Context())
	if err != nil {
		s.meetingError(w, r, err)
		return
	}
	if list == nil {
		list = []meeting.Meeting{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateMeeting(w http.ResponseWriter, r *http.Request) {
	if !s.meetingsReady(w) {
		return
	}

	var body meetingBody
	if err := decodeJSON(r.Body, &body); err != nil {
		writeErrorString(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	req := meeting.Request{
		Title:        strings.TrimSpace(body.Title),
		Participants: body.Participants,
		RequestedBy:  strings.TrimSpace(body.RequestedBy),
	}
	if body.Datetime != "" {
		at, err := meeting.ParseDatetime(body.Datetime)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		req.Datetime = at
	}

	m, err := s.deps.Meetings.Create(r.Context(), req)
	if err != nil {
		s.meetingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleRespondMeeting(w http.ResponseWriter, r *http.Request) {
	if !s.meetingsReady(w) {
		return
	}

	var body respondBody
	if err := decodeJSON(r.Body, &body); err != nil {
		writeErrorString(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	m, err := s.deps.Meetings.Respond(r.Context(), r.PathValue("id"), body.Status, strings.TrimSpace(body.ConfirmedBy))
	if err != nil {
		s.meetingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleMeetingApproval(w http.ResponseWriter, r *http.Request) {
	if !s.meetingsReady(w) {
		return
	}

	m, outcome, err := s.deps.Meetings.RequestApproval(r.Context(), r.PathValue("id"))
	if err != nil {
		s.meetingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, approvalBody{Outcome: outcome, Meeting: m})
}

func (s *Server) meetingsReady(w http.ResponseWriter) bool {
	if s.deps.Meetings == nil {
		writeErrorString(w, http.StatusServiceUnavailable, "meetings are not configured")
		return false
	}
	return true
}

func (s *Server) meetingError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, meeting.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, meeting.ErrInvalidStatus), errors.Is(err, meeting.ErrInvalidMeeting):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, meeting.ErrNoApprover):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, notify.ErrSideChannel):
		hlog.FromRequest(r).Error().Err(err).Msg("side channel failed")
		writeError(w, http.StatusBadGateway, err)
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("meeting request failed")
		writeError(w, http.StatusInternalServerError, err)
	}
}

type hookBody struct {
	ID      string    `json:"id"`
	Author  string    `json:"author"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sent_at"`
}

func (s *Server) handleHook(w http.ResponseWriter, r *http.Request) {
	if s.cfg.HookToken != "" {
		got := r.Header.Get(HookTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.HookToken)) != 1 {
			writeErrorString(w, http.StatusUnauthorized, "invalid hook token")
			return
		}
	}
	if s.deps.Channels == nil {
		writeErrorString(w, http.StatusNotFound, "no webhook channels configured")
		return
	}

	channel := r.PathValue("channel")
	n, err := s.deps.Channels.Get(channel)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	pub, ok := n.(Publisher)
	if !ok {
		writeErrorString(w, http.StatusConflict, "channel "+channel+" does not accept webhooks")
		return
	}

	var body hookBody
	if err := decodeJSON(r.Body, &body); err != nil {
		writeErrorString(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(body.Content) == "" {
		writeErrorString(w, http.StatusBadRequest, "content is required")
		return
	}

	reply := pub.Publish(notify.Reply{ID: body.ID, Author: body.Author, Content: body.Content, SentAt: body.SentAt})
	hlog.FromRequest(r).Debug().Str("channel", channel).Str("reply_id", reply.ID).Msg("webhook reply accepted")
	writeJSON(w, http.StatusAccepted, reply)
}
