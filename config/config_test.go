package config

import "testing"

func TestParamSetAndList(t *testing.T) {
	var n int
	IntParam(&n, "test.intParam", 5, Default)
	if n != 5 {
		t.Fatalf("expected default 5, got %d", n)
	}

	found := false
	for _, p := range AllParams() {
		if p.Name == "test.intParam" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected test.intParam to be listed")
	}
}

func TestNoUpdateRejectsUpdate(t *testing.T) {
	var b bool
	BoolParam(&b, "test.noUpdateParam", false, NoUpdate)
	if err := Update("test.noUpdateParam", "true"); err == nil {
		t.Fatal("expected update of a NoUpdate param to fail")
	}
}
