// Package persona keeps writer voice instructions consistent across
// the content generation agents. A persona is a prompt preamble that
// pins down tone, audience assumptions and style; agents prepend it to
// their generation prompts.
package persona

import "sync"

// DefaultName is the persona used when a caller names none.
const DefaultName = "neuraforge"

// SocialName is the voice for promotion content, written in first
// person for social platforms.
const SocialName = "practitioner"

// Persona is one writer voice definition.
type Persona struct {
	Name         string
	Description  string
	Instructions string
}

var (
	mu       sync.RWMutex
	registry = map[string]Persona{
		DefaultName: {
			Name:         DefaultName,
			Description:  "technical newsletter voice explaining complex concepts with clarity and authority",
			Instructions: neuraforgeInstructions,
		},
		SocialName: {
			Name:         SocialName,
			Description:  "first-person practitioner voice sharing insights from own exploration",
			Instructions: practitionerInstructions,
		},
	}
)

// Get returns the named persona. Unknown names return false so callers
// can fall back to no persona rather than fail a generation.
func Get(name string) (Persona, bool) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := registry[name]
	return p, ok
}

// Register adds or replaces a persona.
func Register(p Persona) {
	mu.Lock()
	defer mu.Unlock()
	registry[p.Name] = p
}

// List returns the available persona names with their descriptions.
func List() map[string]string {
	mu.RLock()
	defer mu.RUnlock()
	out := make(map[string]string, len(registry))
	for name, p := range registry {
		out[name] = p.Description
	}
	return out
}

// Prefix prepends the named persona's instructions to a prompt.
// Unknown or empty names leave the prompt unchanged.
func Prefix(name, prompt string) string {
	p, ok := Get(name)
	if !ok || p.Instructions == "" {
		return prompt
	}
	return p.Instructions + "\n\n" + prompt
}
