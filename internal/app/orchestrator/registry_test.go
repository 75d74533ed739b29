package orchestrator

import (
	"errors"
	"testing"

	"github.com/guoyu07/rocketeer/internal/domain"
)

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"SwapSymlink":   "swap-symlink",
		"swap_symlink":  "swap-symlink",
		"swap-symlink":  "swap-symlink",
		"Migrate":       "migrate",
		"CreateRelease": "create-release",
		" deploy ":      "deploy",
		"Step2Build":    "step2-build",
		"a__b":          "a-b",
	}
	for in, want := range tests {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegistry_UserOverridesBuiltin(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterBuiltin("Migrate", Noop); err != nil {
		t.Fatal(err)
	}
	user := Command("php artisan migrate --force")
	if err := r.Register("migrate", user); err != nil {
		t.Fatal(err)
	}

	got, err := r.Resolve("Migrate")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if c, ok := got.(Commands); !ok || c.Lines[0] != "php artisan migrate --force" {
		t.Errorf("Resolve(migrate) = %#v, want the user body", got)
	}

	entries := r.Entries()
	if len(entries) != 1 || entries[0].Origin != OriginOverride {
		t.Errorf("Entries() = %+v, want one override entry", entries)
	}
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	r := NewRegistry()
	_ = r.Register("notify", Command("echo one"))
	_ = r.Register("notify", Command("echo two"))

	got, _ := r.Resolve("notify")
	if c := got.(Commands); c.Lines[0] != "echo two" {
		t.Errorf("Resolve(notify) = %q, want echo two", c.Lines[0])
	}
}

func TestRegistry_Unknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve("nope")
	var ute *domain.UnknownTaskError
	if !errors.As(err, &ute) || ute.Name != "nope" {
		t.Fatalf("Resolve(nope) error = %v, want UnknownTaskError", err)
	}
	if !errors.Is(err, domain.ErrUnknownTask) {
		t.Error("error should wrap ErrUnknownTask")
	}
}

func TestRegistry_RejectsMalformed(t *testing.T) {
	r := NewRegistry()
	cases := []struct {
		name string
		body Body
	}{
		{"", Noop},
		{"a.b", Noop},
		{"nil-body", nil},
		{"empty-commands", Commands{}},
	}
	for _, c := range cases {
		if err := r.Register(c.name, c.body); !errors.Is(err, domain.ErrMalformedTask) {
			t.Errorf("Register(%q) error = %v, want ErrMalformedTask", c.name, err)
		}
	}
}

func TestRegistry_EntriesSorted(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	mustRegister(t, o, "zz-notify", Command("echo hi"))

	entries := o.Registry().Entries()
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Name > entries[i].Name {
			t.Fatalf("entries not sorted: %s before %s", entries[i-1].Name, entries[i].Name)
		}
	}
	last := entries[len(entries)-1]
	if last.Name != "zz-notify" || last.Origin != OriginUser || last.Description != "echo hi" {
		t.Errorf("last entry = %+v", last)
	}
}
