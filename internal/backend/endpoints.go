package backend

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"socialdash/internal/search"
)

// Logical endpoints of the data API, relative to the base URL.
const (
	EndpointHealth     = "/health"
	EndpointStats      = "/stats"
	EndpointTimeSeries = "/timeseries"
	EndpointNetwork    = "/network"
	EndpointSentiment  = "/sentiment"
	EndpointTopics     = "/topics"
	EndpointAISummary  = "/ai/summary"
	EndpointSearch     = "/posts/search"
	EndpointChat       = "/chat/message"
)

const healthTimeout = 3 * time.Second

// NetworkType selects the node kind of the network graph.
type NetworkType string

const (
	NetworkSubreddit NetworkType = "subreddit"
	NetworkAuthor    NetworkType = "author"
)

// ParseNetworkType defaults to NetworkSubreddit.
func ParseNetworkType(raw string) NetworkType {
	if strings.EqualFold(strings.TrimSpace(raw), string(NetworkAuthor)) {
		return NetworkAuthor
	}
	return NetworkSubreddit
}

// TopicOptions are the /topics extensions. Zero values use backend defaults.
type TopicOptions struct {
	NumTopics int
	NumWords  int
}

// SummaryOptions are the /ai/summary extensions.
type SummaryOptions struct {
	Type   string
	Prompt string
}

// Health checks the backend without touching the cache.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	_, err := c.get(ctx, EndpointHealth, nil)
	return err
}

func (c *Client) Stats(ctx context.Context, opts Options) (Result, error) {
	return c.Fetch(ctx, EndpointStats, nil, opts)
}

// TimeSeries fetches post counts over time. interval is hour, day, week or
// month; empty leaves the backend default.
func (c *Client) TimeSeries(ctx context.Context, p search.Params, interval string, opts Options) (Result, error) {
	v := p.Filters().APIValues()
	setIf(v, "interval", strings.TrimSpace(interval))
	return c.Fetch(ctx, EndpointTimeSeries, v, opts)
}

func (c *Client) Network(ctx context.Context, p search.Params, kind NetworkType, opts Options) (Result, error) {
	v := p.Filters().APIValues()
	setIf(v, "type", string(kind))
	return c.Fetch(ctx, EndpointNetwork, v, opts)
}

func (c *Client) Sentiment(ctx context.Context, p search.Params, opts Options) (Result, error) {
	return c.Fetch(ctx, EndpointSentiment, p.Filters().APIValues(), opts)
}

func (c *Client) Topics(ctx context.Context, p search.Params, to TopicOptions, opts Options) (Result, error) {
	v := p.Filters().APIValues()
	if to.NumTopics > 0 {
		v.Set("num_topics", strconv.Itoa(to.NumTopics))
	}
	if to.NumWords > 0 {
		v.Set("num_words", strconv.Itoa(to.NumWords))
	}
	return c.Fetch(ctx, EndpointTopics, v, opts)
}

func (c *Client) AISummary(ctx context.Context, p search.Params, so SummaryOptions, opts Options) (Result, error) {
	v := p.Filters().APIValues()
	setIf(v, "type", strings.TrimSpace(so.Type))
	setIf(v, "prompt", strings.TrimSpace(so.Prompt))
	return c.Fetch(ctx, EndpointAISummary, v, opts)
}

// SearchPosts runs a post search. Search results always use the shorter
// search ttl, whatever opts.CacheExpiration says.
func (c *Client) SearchPosts(ctx context.Context, p search.Params, opts Options) (search.Results, Result, error) {
	opts.CacheExpiration = c.searchTTL
	var out search.Results
	decode := func(b []byte) error {
		out = search.Results{}
		return json.Unmarshal(b, &out)
	}
	res, err := c.fetch(ctx, EndpointSearch, p.APIValues(), opts, decode)
	if err != nil {
		return search.Results{}, Result{}, err
	}
	return out, res, nil
}

// ChatMessage is a message sent to the assistant.
type ChatMessage struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatReply is the assistant's answer.
type ChatReply struct {
	Response       string  `json:"response"`
	ConversationID string  `json:"conversation_id"`
	Source         string  `json:"source,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
}

// SendChatMessage posts msg to the assistant. Chat is never cached. A
// conversation id is assigned when msg has none.
func (c *Client) SendChatMessage(ctx context.Context, msg ChatMessage) (ChatReply, error) {
	msg.Message = strings.TrimSpace(msg.Message)
	if msg.ConversationID == "" {
		msg.ConversationID = uuid.New().String()
	}
	body, err := c.post(ctx, EndpointChat, msg)
	if err != nil {
		c.log.Error().Err(err).Str("endpoint", EndpointChat).Msg("chat failed")
		return ChatReply{}, err
	}
	var reply ChatReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return ChatReply{}, &Error{Endpoint: EndpointChat, Err: ErrMalformedResponse}
	}
	if reply.ConversationID == "" {
		reply.ConversationID = msg.ConversationID
	}
	return reply, nil
}

func setIf(v url.Values, key, val string) {
	if val != "" {
		v.Set(key, val)
	}
}
