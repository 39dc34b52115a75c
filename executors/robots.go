package executors

import (
	"bufio"
	"strings"
)

// robotsRules are the Allow/Disallow lines of the group that applies to
// one user agent.
type robotsRules struct {
	allow    []string
	disallow []string
}

// parseRobots picks the group naming ua, falling back to the "*" group.
// Wildcards inside paths are not supported; "$" anchors are ignored.
func parseRobots(body, ua string) *robotsRules {
	token := strings.ToLower(productToken(ua))

	var (
		specific, generic *robotsRules
		current           []*robotsRules
		inRules           bool
	)
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		field, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		field = strings.ToLower(strings.TrimSpace(field))
		value = strings.TrimSpace(value)

		switch field {
		case "user-agent":
			if inRules {
				current = nil
				inRules = false
			}
			agent := strings.ToLower(value)
			switch {
			case agent == "*":
				if generic == nil {
					generic = &robotsRules{}
				}
				current = append(current, generic)
			case token != "" && token == agent:
				if specific == nil {
					specific = &robotsRules{}
				}
				current = append(current, specific)
			default:
				current = append(current, &robotsRules{})
			}
		case "allow", "disallow":
			inRules = true
			if value == "" && field == "disallow" {
				continue
			}
			value = strings.TrimSuffix(strings.TrimSuffix(value, "$"), "*")
			for _, g := range current {
				if field == "allow" {
					g.allow = append(g.allow, value)
				} else {
					g.disallow = append(g.disallow, value)
				}
			}
		}
	}

	switch {
	case specific != nil:
		return specific
	case generic != nil:
		return generic
	default:
		return &robotsRules{}
	}
}

// allows applies longest-match precedence; ties go to Allow.
func (r *robotsRules) allows(path string) bool {
	best, allowed := -1, true
	for _, p := range r.disallow {
		if strings.HasPrefix(path, p) && len(p) > best {
			best, allowed = len(p), false
		}
	}
	for _, p := range r.allow {
		if strings.HasPrefix(path, p) && len(p) >= best {
			best, allowed = len(p), true
		}
	}
	return allowed
}

func productToken(ua string) string {
	if i := strings.IndexAny(ua, "/ "); i >= 0 {
		return ua[:i]
	}
	return ua
}
