package llm

import (
	"fmt"
	"sort"
	"sync"
)

// Dialect maps completions to and from one provider's HTTP format.
type Dialect interface {
	// Name returns the dialect identifier (e.g., "ollama", "openai").
	Name() string

	// ChatPath returns the chat completion path relative to the base URL.
	ChatPath() string

	// BuildRequest maps a CompletionRequest to the provider's JSON body.
	BuildRequest(req CompletionRequest) (any, error)

	// ParseResponse maps the provider's JSON body to a CompletionResponse.
	ParseResponse(body []byte) (*CompletionResponse, error)

	// AuthHeaders returns the headers carrying apiKey. An empty key needs
	// no headers.
	AuthHeaders(apiKey string) map[string]string
}

var (
	dialectsMu sync.RWMutex
	dialects   = map[string]Dialect{
		"openai": OpenAI{},
		"ollama": Ollama{},
	}
)

// RegisterDialect adds or replaces a dialect.
func RegisterDialect(d Dialect) {
	dialectsMu.Lock()
	defer dialectsMu.Unlock()
	dialects[d.Name()] = d
}

// GetDialect looks a dialect up by name.
func GetDialect(name string) (Dialect, error) {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	d, ok := dialects[name]
	if !ok {
		return nil, fmt.Errorf("llm: unknown dialect %q", name)
	}
	return d, nil
}

// Dialects returns the registered dialect names, sorted.
func Dialects() []string {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
