package theme

import (
	"errors"
	"testing"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/manifest"
)

func solarized() []manifest.ThemeContribution {
	return []manifest.ThemeContribution{
		{ID: "dark", Name: "Solarized Dark", Type: "dark", Colors: map[string]string{
			"background": "#002B36",
			"foreground": "#839496",
		}},
		{ID: "light", Name: "Solarized Light", Type: "light", Colors: map[string]string{
			"background": "#fdf6e3",
			"foreground": "#657b83",
		}},
	}
}

func TestRegisterPack(t *testing.T) {
	r := NewRegistry()
	ids, err := r.RegisterPack("solarized", solarized())
	if err != nil {
		t.Fatalf("RegisterPack() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "solarized:dark" {
		t.Errorf("ids = %v", ids)
	}

	th, ok := r.Get("solarized:dark")
	if !ok {
		t.Fatal("theme not registered")
	}
	if th.Colors["background"] != "#002b36" {
		t.Errorf("background = %q, want canonical lowercase", th.Colors["background"])
	}

	c, ok := th.Contrast("background", "foreground")
	if !ok || c <= 0.2 {
		t.Errorf("Contrast() = %v, %v", c, ok)
	}
	if _, ok := th.Contrast("background", "missing"); ok {
		t.Error("Contrast with unknown colour should fail")
	}
}

func TestRegisterPackInvalidColour(t *testing.T) {
	r := NewRegistry()
	bad := solarized()
	bad[1].Colors["accent"] = "not-a-colour"

	if _, err := r.RegisterPack("solarized", bad); !errors.Is(err, ErrInvalidColor) {
		t.Fatalf("RegisterPack() error = %v, want ErrInvalidColor", err)
	}
	if len(r.List()) != 0 {
		t.Error("partial registration after error")
	}
}

func TestUnregisterPluginClearsActive(t *testing.T) {
	r := NewRegistry()
	r.RegisterPack("solarized", solarized())
	r.RegisterPack("other", []manifest.ThemeContribution{
		{ID: "mono", Name: "Mono", Type: "dark", Colors: map[string]string{"background": "#000"}},
	})

	if err := r.SetActive("solarized:light"); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}
	if err := r.SetActive("missing"); !errors.Is(err, ErrThemeNotFound) {
		t.Errorf("SetActive(missing) error = %v", err)
	}

	if n := r.UnregisterPlugin("solarized"); n != 2 {
		t.Errorf("UnregisterPlugin() = %d, want 2", n)
	}
	if _, ok := r.Active(); ok {
		t.Error("active theme survived its plugin")
	}
	if got := r.List(); len(got) != 1 || got[0].ID != "other:mono" {
		t.Errorf("List() = %v", got)
	}
}
