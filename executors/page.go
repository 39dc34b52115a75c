package executors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/kbukum/flowgate/httpclient"
	"github.com/kbukum/flowgate/logger"
	"github.com/kbukum/flowgate/orchestrator"
	"github.com/kbukum/flowgate/workflow"
)

// cookiePrefix namespaces cookies inside the execution's session state.
const cookiePrefix = "cookie."

// page is the shared handle LAUNCH_BROWSER stores on the environment. It
// holds the last fetched document; later page tasks read and replace it.
type page struct {
	mu     sync.Mutex
	url    string
	html   string
	robots map[string]*robotsRules
	closed bool
}

func (p *page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.html = ""
	return nil
}

func (p *page) snapshot() (string, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", "", errors.New("page is closed")
	}
	return p.url, p.html, nil
}

type pageExecutors struct {
	http *httpclient.Client
	log  *logger.Logger
}

// launch opens a page at "Website Url".
func (e *pageExecutors) launch(ctx context.Context, n *orchestrator.NodeEnv) error {
	target, err := absoluteURL(n.Input("Website Url"))
	if err != nil {
		return err
	}
	p := &page{robots: make(map[string]*robotsRules)}
	if err := e.load(ctx, n, p, target); err != nil {
		return err
	}
	if err := n.Env.SetBrowser(p); err != nil {
		n.Log(workflow.LogWarn, fmt.Sprintf("close previous page: %v", err))
	}
	n.SetOutput("Web page", target.String())
	return nil
}

// navigate loads "URL" into the launched page. Relative URLs resolve
// against the current document.
func (e *pageExecutors) navigate(ctx context.Context, n *orchestrator.NodeEnv) error {
	p, err := currentPage(n)
	if err != nil {
		return err
	}
	current, _, err := p.snapshot()
	if err != nil {
		return err
	}
	base, err := url.Parse(current)
	if err != nil {
		return fmt.Errorf("current page url: %w", err)
	}
	ref, err := url.Parse(strings.TrimSpace(n.Input("URL")))
	if err != nil || n.Input("URL") == "" {
		return fmt.Errorf("invalid url %q", n.Input("URL"))
	}
	target := base.ResolveReference(ref)
	if err := e.load(ctx, n, p, target); err != nil {
		return err
	}
	n.SetOutput("Web page", target.String())
	return nil
}

// html outputs the current document.
func (e *pageExecutors) html(_ context.Context, n *orchestrator.NodeEnv) error {
	p, err := currentPage(n)
	if err != nil {
		return err
	}
	u, doc, err := p.snapshot()
	if err != nil {
		return err
	}
	n.SetOutput("Html", doc)
	n.SetOutput("Web page", u)
	return nil
}

func (e *pageExecutors) load(ctx context.Context, n *orchestrator.NodeEnv, p *page, target *url.URL) error {
	ua := n.Env.UserAgent()
	proxy := n.Env.Proxy()

	if n.Env.RespectRobots() {
		allowed, err := e.allowed(ctx, n, p, target, ua, proxy)
		if err != nil {
			return err
		}
		if !allowed {
			return fmt.Errorf("robots.txt disallows %s", target.Path)
		}
	}

	headers := map[string]string{"Accept": "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"}
	if cookie := cookieHeader(n.Env.Session()); cookie != "" {
		headers["Cookie"] = cookie
	}
	resp, err := e.http.Do(ctx, httpclient.Request{
		Method:    http.MethodGet,
		Path:      target.String(),
		Headers:   headers,
		UserAgent: ua,
		Proxy:     proxy,
		Timeout:   n.Env.Settings.Network.RequestTimeout,
	})
	if err != nil {
		return fmt.Errorf("fetch %s: %w", target, err)
	}
	if sc, ok := resp.Headers["Set-Cookie"]; ok {
		if name, value, ok := parseSetCookie(sc); ok {
			n.Env.SetSession(cookiePrefix+name, value)
		}
	}

	p.mu.Lock()
	p.url = target.String()
	p.html = string(resp.Body)
	p.closed = false
	p.mu.Unlock()

	n.Log(workflow.LogInfo, fmt.Sprintf("loaded %s (%d, %d bytes)", target, resp.StatusCode, len(resp.Body)))
	e.log.Debug("page loaded", map[string]interface{}{
		logger.FieldExecutionID: n.Env.ExecutionID,
		logger.FieldNodeID:      n.Node.ID,
		logger.FieldStatus:      resp.StatusCode,
		"url":                   target.String(),
	})
	return nil
}

// allowed consults the host's robots.txt, cached on the page. A robots
// file that cannot be fetched allows everything.
func (e *pageExecutors) allowed(ctx context.Context, n *orchestrator.NodeEnv, p *page, target *url.URL, ua, proxy string) (bool, error) {
	host := target.Scheme + "://" + target.Host

	p.mu.Lock()
	rules, cached := p.robots[host]
	p.mu.Unlock()

	if !cached {
		resp, err := e.http.Do(ctx, httpclient.Request{
			Method:    http.MethodGet,
			Path:      host + "/robots.txt",
			UserAgent: ua,
			Proxy:     proxy,
			Timeout:   n.Env.Settings.Network.RequestTimeout,
		})
		switch {
		case ctx.Err() != nil:
			return false, ctx.Err()
		case err != nil:
			n.Log(workflow.LogWarn, fmt.Sprintf("robots.txt for %s unavailable: %v", host, err))
			rules = &robotsRules{}
		default:
			rules = parseRobots(string(resp.Body), ua)
		}
		p.mu.Lock()
		p.robots[host] = rules
		p.mu.Unlock()
	}

	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	return rules.allows(path), nil
}

func currentPage(n *orchestrator.NodeEnv) (*page, error) {
	p, ok := n.Env.Browser().(*page)
	if !ok || p == nil {
		return nil, errors.New("no page launched")
	}
	return p, nil
}

func absoluteURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q", raw)
	}
	return u, nil
}

func cookieHeader(session map[string]string) string {
	var pairs []string
	for k, v := range session {
		if name, ok := strings.CutPrefix(k, cookiePrefix); ok {
			pairs = append(pairs, name+"="+v)
		}
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "; ")
}

func parseSetCookie(header string) (string, string, bool) {
	c, err := http.ParseSetCookie(header)
	if err != nil || c.Name == "" {
		return "", "", false
	}
	return c.Name, c.Value, true
}
