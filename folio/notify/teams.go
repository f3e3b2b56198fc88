package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/confidential"
	"github.com/ZanzyTHEbar/folio/folio/config"
	"github.com/rs/zerolog"
)

const graphScope = "https://graph.microsoft.com/.default"

var htmlTags = regexp.MustCompile(`<[^>]+>`)

// TokenSource supplies Graph bearer tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// MSALTokenSource acquires app tokens with the client credentials flow.
type MSALTokenSource struct {
	client confidential.Client
	scopes []string
}

// NewMSALTokenSource creates a confidential client for tenantID.
func NewMSALTokenSource(tenantID, clientID, clientSecret string) (*MSALTokenSource, error) {
	cred, err := confidential.NewCredFromSecret(clientSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid teams client secret: %w", err)
	}
	client, err := confidential.New("https://login.microsoftonline.com/"+tenantID, clientID, cred)
	if err != nil {
		return nil, fmt.Errorf("failed to create msal client: %w", err)
	}
	return &MSALTokenSource{client: client, scopes: []string{graphScope}}, nil
}

// Token returns a cached token when still valid, otherwise acquires a new one.
func (s *MSALTokenSource) Token(ctx context.Context) (string, error) {
	res, err := s.client.AcquireTokenSilent(ctx, s.scopes)
	if err != nil {
		res, err = s.client.AcquireTokenByCredential(ctx, s.scopes)
		if err != nil {
			return "", fmt.Errorf("%w: teams token: %v", ErrSideChannel, err)
		}
	}
	return res.AccessToken, nil
}

// Teams messages the owner in a one-on-one Microsoft Teams chat via Graph.
type Teams struct {
	tokens   TokenSource
	http     *http.Client
	graphURL string
	userID   string
	logger   zerolog.Logger

	mu     sync.Mutex
	chatID string

	sentMu sync.Mutex
	sent   map[string]struct{} // ids of messages this notifier posted
	order  []string
}

const teamsSentHistory = 200

// NewTeams creates a Teams notifier. tokens may be nil to build an MSAL source from cfg.
func NewTeams(cfg config.TeamsConfig, tokens TokenSource, httpClient *http.Client, logger zerolog.Logger) (*Teams, error) {
	if tokens == nil {
		if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
			return nil, errors.New("teams notifier requires tenant_id, client_id and client_secret")
		}
		src, err := NewMSALTokenSource(cfg.TenantID, cfg.ClientID, cfg.ClientSecret)
		if err != nil {
			return nil, err
		}
		tokens = src
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	graphURL := strings.TrimRight(cfg.GraphURL, "/")
	if graphURL == "" {
		graphURL = "https://graph.microsoft.com/v1.0"
	}
	return &Teams{
		tokens:   tokens,
		http:     httpClient,
		graphURL: graphURL,
		userID:   cfg.UserID,
		logger:   logger.With().Str("channel", "teams").Logger(),
		sent:     make(map[string]struct{}),
	}, nil
}

func (t *Teams) Name() string { return "teams" }

type graphMessage struct {
	ID              string    `json:"id"`
	CreatedDateTime time.Time `json:"createdDateTime"`
	From            *struct {
		User *struct {
			ID          string `json:"id"`
			DisplayName string `json:"displayName"`
		} `json:"user"`
	} `json:"from"`
	Body struct {
		Content string `json:"content"`
	} `json:"body"`
}

func (t *Teams) Send(ctx context.Context, text string) (Receipt, error) {
	token, err := t.tokens.Token(ctx)
	if err != nil {
		return Receipt{}, err
	}
	chatID, err := t.ensureChat(ctx, token)
	if err != nil {
		return Receipt{}, err
	}

	var msg graphMessage
	body := map[string]any{"body": map[string]string{"content": text}}
	if err := t.do(ctx, token, http.MethodPost, "/chats/"+chatID+"/messages", body, &msg); err != nil {
		return Receipt{}, err
	}

	t.remember(msg.ID)
	t.logger.Info().Str("message_id", msg.ID).Msg("message sent")
	sentAt := msg.CreatedDateTime
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	return Receipt{MessageID: msg.ID, ChannelID: chatID, SentAt: sentAt}, nil
}

func (t *Teams) Replies(ctx context.Context, since Receipt) ([]Reply, error) {
	token, err := t.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	chatID := since.ChannelID
	if chatID == "" {
		if chatID, err = t.ensureChat(ctx, token); err != nil {
			return nil, err
		}
	}

	var page struct {
		Value []graphMessage `json:"value"`
	}
	if err := t.do(ctx, token, http.MethodGet, "/chats/"+chatID+"/messages", nil, &page); err != nil {
		return nil, err
	}

	replies := make([]Reply, 0, len(page.Value))
	for _, m := range page.Value {
		// Application senders and our own prompts are never owner replies.
		if m.From == nil || m.From.User == nil || t.isOwn(m.ID) {
			continue
		}
		author := m.From.User.DisplayName
		content := strings.TrimSpace(htmlTags.ReplaceAllString(m.Body.Content, ""))
		replies = append(replies, Reply{ID: m.ID, Author: author, Content: content, SentAt: m.CreatedDateTime})
	}
	return newer(replies, since), nil
}

func (t *Teams) remember(id string) {
	if id == "" {
		return
	}
	t.sentMu.Lock()
	defer t.sentMu.Unlock()
	t.sent[id] = struct{}{}
	t.order = append(t.order, id)
	if len(t.order) > teamsSentHistory {
		delete(t.sent, t.order[0])
		t.order = t.order[1:]
	}
}

func (t *Teams) isOwn(id string) bool {
	t.sentMu.Lock()
	defer t.sentMu.Unlock()
	_, ok := t.sent[id]
	return ok
}

// ensureChat resolves the owner and the one-on-one chat once.
func (t *Teams) ensureChat(ctx context.Context, token string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.chatID != "" {
		return t.chatID, nil
	}

	if t.userID == "" {
		var me struct {
			ID string `json:"id"`
		}
		if err := t.do(ctx, token, http.MethodGet, "/me", nil, &me); err != nil {
			return "", err
		}
		t.userID = me.ID
	}

	var chat struct {
		ID string `json:"id"`
	}
	body := map[string]any{
		"chatType": "oneOnOne",
		"members": []map[string]any{{
			"@odata.type":     "#microsoft.graph.aadUserConversationMember",
			"roles":           []string{"owner"},
			"user@odata.bind": fmt.Sprintf("https://graph.microsoft.com/v1.0/users('%s')", t.userID),
		}},
	}
	if err := t.do(ctx, token, http.MethodPost, "/chats", body, &chat); err != nil {
		return "", err
	}
	t.chatID = chat.ID
	return t.chatID, nil
}

func (t *Teams) do(ctx context.Context, token, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode graph request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.graphURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build graph request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: graph %s %s: %v", ErrSideChannel, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: graph %s %s: status %d: %s", ErrSideChannel, method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: graph %s %s: decode: %v", ErrSideChannel, method, path, err)
	}
	return nil
}

var _ Notifier = (*Teams)(nil)
