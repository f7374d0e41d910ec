package npm

import "testing"

func TestParseModuleRef(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ModuleReference
	}{
		{"plain", "lodash@4.17.21", ModuleReference{Name: "lodash", Version: "4.17.21"}},
		{"no version", "lodash", ModuleReference{Name: "lodash"}},
		{"scoped", "@babel/core@7.23.0", ModuleReference{Name: "@babel/core", Version: "7.23.0"}},
		{"scoped no version", "@babel/core", ModuleReference{Name: "@babel/core"}},
		{"alias", "my-lodash@npm:lodash@4.17.21", ModuleReference{Alias: "my-lodash", Name: "lodash", Version: "4.17.21"}},
		{"alias scoped target", "legacy@npm:@babel/core@6.0.0", ModuleReference{Alias: "legacy", Name: "@babel/core", Version: "6.0.0"}},
		{"link", "my-app@link:packages/app", ModuleReference{Name: "my-app", LinkTarget: "packages/app"}},
		{"scoped link", "@acme/app@link:packages/app", ModuleReference{Name: "@acme/app", LinkTarget: "packages/app"}},
		{"empty", "", ModuleReference{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseModuleRef(tt.raw); got != tt.want {
				t.Errorf("ParseModuleRef(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestModuleReferenceKey(t *testing.T) {
	aliased := ParseModuleRef("my-lodash@npm:lodash@4.17.21")
	if got := aliased.Key(); got != "my-lodash" {
		t.Errorf("aliased Key() = %q, want %q", got, "my-lodash")
	}
	plain := ParseModuleRef("lodash@4.17.21")
	if got := plain.Key(); got != "lodash" {
		t.Errorf("plain Key() = %q, want %q", got, "lodash")
	}
}

func TestModuleReferenceID(t *testing.T) {
	ref := ParseModuleRef("@babel/core@7.23.0")
	id := ref.ID()
	if id.Namespace != "@babel" || id.Name != "core" || id.Version != "7.23.0" {
		t.Errorf("ID() = %+v, want namespace @babel, name core, version 7.23.0", id)
	}
	if ref.IsLink() {
		t.Errorf("plain reference reported as link")
	}
}

func TestSplitRoundTripScoped(t *testing.T) {
	// A scoped name must survive a split and re-join at the last "@".
	names := []string{"@babel/core", "@types/node", "lodash"}
	for _, name := range names {
		raw := name + "@1.2.3"
		ref := ParseModuleRef(raw)
		if ref.Name != name || ref.Version != "1.2.3" {
			t.Errorf("ParseModuleRef(%q) = %+v, want name %q version 1.2.3", raw, ref, name)
		}
		if got := ref.ID().Spec(); got != raw {
			t.Errorf("Spec() = %q, want %q", got, raw)
		}
	}
}
