// Package smartlink routes affiliate tracking links to destination URLs.
//
// A link carries an ordered list of routes. Each route targets either a
// compiled audience segment or an inline condition list; the first matching
// route wins and its destination URL, with placeholders substituted from
// the click facts, is returned. When nothing matches the link's default URL
// is used.
package smartlink

import (
	"fmt"
	"sync"

	"github.com/affiliumhq/affilium/automation"
	"github.com/affiliumhq/affilium/segments"
)

// Route is one destination candidate of a smart link. SegmentID and
// Conditions are mutually exclusive; a route with neither matches
// unconditionally, which makes it a catch-all when placed last.
type Route struct {
	SegmentID  string                 `json:"segmentId,omitempty"`
	Conditions []automation.Condition `json:"conditions,omitempty"`
	URL        string                 `json:"url"`
}

// Link is a tracking link with conditional routing.
type Link struct {
	ID         string  `json:"id"`
	Slug       string  `json:"slug"`
	DefaultURL string  `json:"defaultUrl"`
	Routes     []Route `json:"routes,omitempty"`
}

// Router resolves links against click facts.
type Router struct {
	segments *segments.Engine

	mu    sync.RWMutex
	links map[string]Link // keyed by slug
}

// NewRouter creates a router backed by the given segment engine.
func NewRouter(engine *segments.Engine) *Router {
	return &Router{segments: engine, links: make(map[string]Link)}
}

// Register adds or replaces a link by slug.
func (r *Router) Register(link Link) error {
	if link.Slug == "" {
		return fmt.Errorf("link slug is required")
	}
	if link.DefaultURL == "" {
		return fmt.Errorf("link %s: default URL is required", link.Slug)
	}
	r.mu.Lock()
	r.links[link.Slug] = link
	r.mu.Unlock()
	return nil
}

// Unregister removes a link by slug.
func (r *Router) Unregister(slug string) {
	r.mu.Lock()
	delete(r.links, slug)
	r.mu.Unlock()
}

// Links returns all registered links.
func (r *Router) Links() []Link {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Link, 0, len(r.links))
	for _, link := range r.links {
		out = append(out, link)
	}
	return out
}

// Resolve looks a link up by slug and picks its destination for the given
// click facts. A route whose segment evaluation errors is skipped rather
// than failing the redirect; a click must always land somewhere.
func (r *Router) Resolve(slug string, facts map[string]any) (string, error) {
	r.mu.RLock()
	link, exists := r.links[slug]
	r.mu.RUnlock()
	if !exists {
		return "", fmt.Errorf("link %s not found", slug)
	}
	return r.pick(link, facts), nil
}

func (r *Router) pick(link Link, facts map[string]any) string {
	record := automation.Record(facts)
	for _, route := range link.Routes {
		if route.SegmentID != "" {
			matched, err := r.segments.Matches(route.SegmentID, facts)
			if err != nil || !matched {
				continue
			}
			return automation.Substitute(route.URL, record)
		}
		if set := automation.EvaluateConditions(route.Conditions, record); set.Met {
			return automation.Substitute(route.URL, record)
		}
	}
	return automation.Substitute(link.DefaultURL, record)
}
