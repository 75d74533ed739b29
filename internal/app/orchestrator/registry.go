package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/guoyu07/rocketeer/internal/domain"
)

// Origin tells where the body bound to a task name comes from.
type Origin string

const (
	OriginBuiltin  Origin = "builtin"
	OriginUser     Origin = "user"
	OriginOverride Origin = "override" // user body replacing a built-in
)

// Entry is one row of the task catalogue.
type Entry struct {
	Name        string `json:"name"`
	Origin      Origin `json:"origin"`
	Description string `json:"description,omitempty"`
}

// Registry maps task names to bodies. User registrations shadow built-in
// defaults; the last registration for a name wins.
//
// Registration happens before any run starts; a Registry is not safe for
// concurrent mutation.
type Registry struct {
	user    map[string]Body
	builtin map[string]Body
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		user:    make(map[string]Body),
		builtin: make(map[string]Body),
	}
}

// Register binds body to name, replacing any previous user registration.
func (r *Registry) Register(name string, body Body) error {
	key, err := checkRegistration(name, body)
	if err != nil {
		return err
	}
	r.user[key] = body
	return nil
}

// RegisterBuiltin installs a framework default for name.
func (r *Registry) RegisterBuiltin(name string, body Body) error {
	key, err := checkRegistration(name, body)
	if err != nil {
		return err
	}
	r.builtin[key] = body
	return nil
}

// Resolve returns the user body for name, else the built-in default.
func (r *Registry) Resolve(name string) (Body, error) {
	key := Slug(name)
	if b, ok := r.user[key]; ok {
		return b, nil
	}
	if b, ok := r.builtin[key]; ok {
		return b, nil
	}
	return nil, &domain.UnknownTaskError{Name: key}
}

// Has reports whether name resolves.
func (r *Registry) Has(name string) bool {
	_, err := r.Resolve(name)
	return err == nil
}

// Entries lists every resolvable task, sorted by name.
func (r *Registry) Entries() []Entry {
	seen := make(map[string]struct{}, len(r.user)+len(r.builtin))
	var out []Entry
	for name, b := range r.user {
		origin := OriginUser
		if _, ok := r.builtin[name]; ok {
			origin = OriginOverride
		}
		out = append(out, Entry{Name: name, Origin: origin, Description: describe(b)})
		seen[name] = struct{}{}
	}
	for name, b := range r.builtin {
		if _, ok := seen[name]; ok {
			continue
		}
		out = append(out, Entry{Name: name, Origin: OriginBuiltin, Description: describe(b)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func checkRegistration(name string, body Body) (string, error) {
	key := Slug(name)
	if key == "" {
		return "", fmt.Errorf("%w: empty task name", domain.ErrMalformedTask)
	}
	if strings.Contains(key, ".") {
		return "", fmt.Errorf("%w: task name %q must not contain '.'", domain.ErrMalformedTask, name)
	}
	if body == nil {
		return "", fmt.Errorf("%w: task %q has no body", domain.ErrMalformedTask, key)
	}
	if c, ok := body.(Commands); ok && len(c.Lines) == 0 {
		return "", fmt.Errorf("%w: task %q has no commands", domain.ErrMalformedTask, key)
	}
	return key, nil
}

// Slug normalises a task name: "SwapSymlink", "swap_symlink" and
// "swap-symlink" all become "swap-symlink".
func Slug(name string) string {
	name = strings.TrimSpace(name)
	var sb strings.Builder
	var prev rune
	for i, r := range name {
		switch {
		case r == '_' || r == ' ' || r == '-':
			if sb.Len() > 0 && prev != '-' {
				sb.WriteRune('-')
				prev = '-'
			}
			continue
		case unicode.IsUpper(r):
			if i > 0 && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
				sb.WriteRune('-')
			}
			r = unicode.ToLower(r)
		}
		sb.WriteRune(r)
		prev = r
	}
	return strings.TrimSuffix(sb.String(), "-")
}
