package tools

import (
	"context"
	"encoding/json"
	"fmt"

	ports "github.com/ZanzyTHEbar/folio/folio/agent/ports"
	"github.com/ZanzyTHEbar/folio/folio/profile"
)

// ProfileSchema defines the JSON schema for profile lookup parameters.
const ProfileSchema = `{
  "type": "object",
  "properties": {
    "section": {
      "type": "string",
      "description": "Optional top-level profile field such as skills, education or experience"
    },
    "question": {
      "type": "string",
      "description": "The visitor question being answered"
    }
  }
}`

// ProfileSource loads the owner's profile document.
type ProfileSource interface {
	Get(ctx context.Context) (json.RawMessage, error)
}

// ProfileTool answers questions about the owner from the stored profile.
type ProfileTool struct {
	source ProfileSource
	cache  ports.Cache
	ttl    int
}

// NewProfileTool creates query_profile_info. cache may be nil.
func NewProfileTool(source ProfileSource, cache ports.Cache, ttlSeconds int) *ProfileTool {
	return &ProfileTool{source: source, cache: cache, ttl: ttlSeconds}
}

func (t *ProfileTool) Name() string { return "query_profile_info" }

func (t *ProfileTool) Description() string {
	return "Look up the site owner's profile: background, skills, education, experience and contact details."
}

func (t *ProfileTool) Schema() []byte { return []byte(ProfileSchema) }

func (t *ProfileTool) Label() string { return "profile lookup" }

func (t *ProfileTool) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		Section string `json:"section"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}

	key := "profile:" + in.Section
	if t.cache != nil {
		if cached, ok := t.cache.Get(ctx, key); ok {
			return string(cached), nil
		}
	}

	doc, err := t.source.Get(ctx)
	if err != nil {
		return nil, err
	}
	section, err := profile.Section(doc, in.Section)
	if err != nil {
		return nil, err
	}

	if t.cache != nil {
		t.cache.Set(ctx, key, section, t.ttl)
	}
	return string(section), nil
}

var _ ports.Tool = (*ProfileTool)(nil)
