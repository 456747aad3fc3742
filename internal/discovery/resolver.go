package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/atom"
	jsonfeed "github.com/mmcdole/gofeed/json"
	"github.com/mmcdole/gofeed/rss"
	"github.com/tomnomnom/linkheader"
)

const (
	// DefaultTimeout bounds a topic fetch when no client is supplied.
	DefaultTimeout = 30 * time.Second

	// maxFeedBytes bounds how much of a topic body is read.
	maxFeedBytes = 10 << 20

	relHub = "hub"
)

// Resolver fetches a topic and extracts its advertised hub.
//
// Thread-safety: Resolver is safe for concurrent use.
type Resolver struct {
	client *http.Client
}

// NewResolver creates a Resolver. A nil client gets a default client with
// DefaultTimeout.
func NewResolver(client *http.Client) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Resolver{client: client}
}

// ResolveHub returns the hub advertised by topic, or "" when the topic
// advertises none. Transport failures, non-2xx responses and bodies that
// are not a recognizable feed are errors.
func (r *Resolver) ResolveHub(ctx context.Context, topic string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, topic, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/atom+xml, application/rss+xml, application/feed+json, application/xml;q=0.9, */*;q=0.8")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch topic: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch topic: unexpected status %s", resp.Status)
	}

	base := resp.Request.URL

	if hub := hubFromHeaders(resp.Header); hub != "" {
		slog.Debug("hub found in link header", "topic", topic, "hub", hub)
		return resolveRef(base, hub), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return "", fmt.Errorf("read topic: %w", err)
	}

	hub, err := hubFromBody(body)
	if err != nil {
		return "", err
	}
	if hub == "" {
		slog.Debug("topic advertises no hub", "topic", topic)
		return "", nil
	}
	slog.Debug("hub found in feed body", "topic", topic, "hub", hub)
	return resolveRef(base, hub), nil
}

func hubFromHeaders(h http.Header) string {
	values := h.Values("Link")
	if len(values) == 0 {
		return ""
	}
	for _, link := range linkheader.ParseMultiple(values).FilterByRel(relHub) {
		if link.URL != "" {
			return link.URL
		}
	}
	return ""
}

// jsonFeedHubs is the hubs member of a JSON Feed document.
type jsonFeedHubs struct {
	Hubs []struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"hubs"`
}

// hubFromBody detects the feed format and returns the first hub link.
func hubFromBody(body []byte) (string, error) {
	switch gofeed.DetectFeedType(bytes.NewReader(body)) {
	case gofeed.FeedTypeAtom:
		feed, err := (&atom.Parser{}).Parse(bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("parse atom feed: %w", err)
		}
		for _, link := range feed.Links {
			if link != nil && isHubRel(link.Rel) && link.Href != "" {
				return strings.TrimSpace(link.Href), nil
			}
		}
		return "", nil

	case gofeed.FeedTypeRSS:
		feed, err := (&rss.Parser{}).Parse(bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("parse rss feed: %w", err)
		}
		for _, link := range feed.Extensions["atom"]["link"] {
			if isHubRel(link.Attrs["rel"]) && link.Attrs["href"] != "" {
				return strings.TrimSpace(link.Attrs["href"]), nil
			}
		}
		return "", nil

	case gofeed.FeedTypeJSON:
		if _, err := (&jsonfeed.Parser{}).Parse(bytes.NewReader(body)); err != nil {
			return "", fmt.Errorf("parse json feed: %w", err)
		}
		// gofeed's JSON model does not carry hubs.
		var hubs jsonFeedHubs
		if err := json.Unmarshal(body, &hubs); err != nil {
			return "", fmt.Errorf("parse json feed hubs: %w", err)
		}
		for _, hub := range hubs.Hubs {
			if u := strings.TrimSpace(hub.URL); u != "" {
				return u, nil
			}
		}
		return "", nil

	default:
		return "", fmt.Errorf("topic is not a recognizable feed")
	}
}

// isHubRel reports whether a space-separated rel list contains "hub".
func isHubRel(rel string) bool {
	for _, r := range strings.Fields(rel) {
		if strings.EqualFold(r, relHub) {
			return true
		}
	}
	return false
}

func resolveRef(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil || base == nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
