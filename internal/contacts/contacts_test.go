package contacts_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/callpilot/internal/contacts"
)

func TestAdd(t *testing.T) {
	t.Parallel()

	l := contacts.NewList()
	c, err := l.Add("  Priya Sharma ", " +91 98765 43210 ")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if c.Name != "Priya Sharma" || c.Phone != "+91 98765 43210" {
		t.Errorf("fields not trimmed: %+v", c)
	}
	if c.ID == "" {
		t.Error("ID should be assigned")
	}
	if l.Len() != 1 {
		t.Errorf("Len = %d; want 1", l.Len())
	}
}

func TestAdd_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contactName string
		phone       string
	}{
		{"empty name", "", "+15550100"},
		{"whitespace name", "   ", "+15550100"},
		{"empty phone", "Alice", ""},
		{"whitespace phone", "Alice", "  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l := contacts.NewList()
			if _, err := l.Add(tt.contactName, tt.phone); !errors.Is(err, contacts.ErrValidation) {
				t.Errorf("Add(%q, %q) error = %v; want ErrValidation", tt.contactName, tt.phone, err)
			}
		})
	}
}

func TestRemoveAndClear(t *testing.T) {
	t.Parallel()

	l := contacts.NewList()
	a, _ := l.Add("Alice", "1")
	b, _ := l.Add("Bob", "2")

	l.Remove(a.ID)
	if _, ok := l.Get(a.ID); ok {
		t.Error("removed contact should be gone")
	}
	if _, ok := l.Get(b.ID); !ok {
		t.Error("other contact should remain")
	}

	l.Remove("contact-999") // unknown ID is a no-op
	if l.Len() != 1 {
		t.Errorf("Len = %d; want 1", l.Len())
	}

	l.Clear()
	if l.Len() != 0 {
		t.Errorf("Len after Clear = %d; want 0", l.Len())
	}
}

func TestAll_PreservesOrder(t *testing.T) {
	t.Parallel()

	l := contacts.NewList()
	names := []string{"Alice", "Bob", "Carol"}
	for _, n := range names {
		if _, err := l.Add(n, "+1555"); err != nil {
			t.Fatalf("Add(%q): %v", n, err)
		}
	}
	all := l.All()
	for i, n := range names {
		if all[i].Name != n {
			t.Errorf("All()[%d].Name = %q; want %q", i, all[i].Name, n)
		}
	}
}

func TestImportCSV(t *testing.T) {
	t.Parallel()

	csvData := strings.Join([]string{
		"Alice,+15550100",
		"malformed-line-without-phone",
		"  Bob , +15550101 ",
		",+15550102",
		"Carol,",
		"Dave,+15550103,extra-field-ok",
	}, "\n")

	l := contacts.NewList()
	added, err := l.ImportCSV(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if added != 3 {
		t.Errorf("added = %d; want 3 (malformed lines skipped)", added)
	}
	all := l.All()
	if len(all) != 3 || all[0].Name != "Alice" || all[1].Name != "Bob" || all[2].Name != "Dave" {
		t.Errorf("unexpected contacts: %+v", all)
	}
}

func TestImportCSV_Empty(t *testing.T) {
	t.Parallel()

	l := contacts.NewList()
	added, err := l.ImportCSV(strings.NewReader(""))
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if added != 0 || l.Len() != 0 {
		t.Errorf("empty input should add nothing; added=%d len=%d", added, l.Len())
	}
}
