package categories

import (
	"image/color"
	"testing"
)

func TestDefaultOrderedByZOrder(t *testing.T) {
	r := Default()
	all := r.All()
	if len(all) == 0 {
		t.Fatal("Expected a non-empty registry")
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ZOrder < all[i].ZOrder {
			t.Errorf("Registry not in descending ZOrder at %d: %s(%d) before %s(%d)",
				i, all[i-1].Name, all[i-1].ZOrder, all[i].Name, all[i].ZOrder)
		}
	}
	if all[0].Name != "War" {
		t.Errorf("Expected War on top, got %s", all[0].Name)
	}
}

func TestDerivedIdentifiers(t *testing.T) {
	r := NewRegistry(Category{Name: "Civil Unrest", IconID: "marker-unrest", ZOrder: 1})
	c, ok := r.ByName("civil unrest")
	if !ok {
		t.Fatal("Expected case-insensitive lookup to succeed")
	}

	tests := []struct {
		got, want string
	}{
		{c.SourceID, "events-civil-unrest"},
		{c.ClusterLayerID, "events-civil-unrest-clusters"},
		{c.PointLayerID, "events-civil-unrest-points"},
		{c.CountLayerID, "events-civil-unrest-count"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("Got %q, want %q", tt.got, tt.want)
		}
	}

	for _, id := range c.LayerIDs() {
		back, ok := r.ByLayer(id)
		if !ok || back.Name != "Civil Unrest" {
			t.Errorf("ByLayer(%q) = (%v, %v), want Civil Unrest", id, back.Name, ok)
		}
	}
	if _, ok := r.ByLayer("bbox-highlight-fill"); ok {
		t.Error("Expected unrelated layer to miss")
	}
}

func TestThemeColors(t *testing.T) {
	dark := color.RGBA{1, 2, 3, 255}
	light := color.RGBA{4, 5, 6, 255}
	c := NewRegistry(Category{Name: "X", Dark: dark, Light: light}).All()[0]
	if c.Color(ThemeDark) != dark || c.Color(ThemeLight) != light {
		t.Errorf("Unexpected theme colors: %v %v", c.Color(ThemeDark), c.Color(ThemeLight))
	}
	if ParseTheme("LIGHT") != ThemeLight || ParseTheme("neon") != ThemeDark {
		t.Error("ParseTheme mismatch")
	}
}

func TestAllReturnsCopy(t *testing.T) {
	r := Default()
	all := r.All()
	all[0].Name = "mutated"
	if r.All()[0].Name == "mutated" {
		t.Error("Registry must not be mutable through All()")
	}
}
