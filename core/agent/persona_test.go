package agent

import (
	"strings"
	"testing"

	"support_server/core/domain"
)

func TestEveryCategoryHasPersona(t *testing.T) {
	for _, cat := range domain.AllCategories() {
		p, ok := personas[cat]
		if !ok {
			t.Errorf("category %q has no persona", cat)
			continue
		}
		if p.Role == "" || p.Instructions == "" {
			t.Errorf("category %q persona is incomplete", cat)
		}
		if !strings.Contains(p.Instructions, "ZERO TRUST") {
			t.Errorf("category %q persona missing shared data rules", cat)
		}
	}
}

func TestPersonaForUnknownCategory(t *testing.T) {
	got := PersonaFor(domain.Category("Bogus"))
	want := personas[domain.DefaultCategory]
	if got.Role != want.Role {
		t.Fatalf("PersonaFor(unknown).Role = %q, want %q", got.Role, want.Role)
	}
}

func TestToolNamesReferenceKnownTools(t *testing.T) {
	known := map[string]bool{
		"lookup_order_crm":            true,
		"lookup_order_admin":          true,
		"lookup_product_intelligence": true,
		"lookup_product_stock":        true,
		"escalate_ticket_to_support":  true,
	}
	for cat, p := range personas {
		for _, name := range p.ToolNames {
			if !known[name] {
				t.Errorf("category %q references unknown tool %q", cat, name)
			}
		}
	}
}
