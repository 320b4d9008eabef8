package domain

import (
	"strings"
	"testing"
)

func TestStateSpaceBijection(t *testing.T) {
	s := buildMixedSchema(t)
	space := NewStateSpace(s)

	if space.Size() != 12 {
		t.Fatalf("Size() = %d, want 12", space.Size())
	}

	seen := make(map[string]bool)
	for i := 0; i < space.Size(); i++ {
		v, err := space.Decode(i)
		if err != nil {
			t.Fatalf("Decode(%d): %v", i, err)
		}
		back, err := space.Encode(v)
		if err != nil {
			t.Fatalf("Encode(Decode(%d)): %v", i, err)
		}
		if back != i {
			t.Errorf("Encode(Decode(%d)) = %d", i, back)
		}
		label, err := space.Label(i)
		if err != nil {
			t.Fatalf("Label(%d): %v", i, err)
		}
		if seen[label] {
			t.Errorf("duplicate label %q", label)
		}
		seen[label] = true
	}
}

func TestStateSpaceDecodeShape(t *testing.T) {
	s := buildMixedSchema(t)
	space := NewStateSpace(s)

	// index 3 in bases [2,3,2]: locals alarm=1, mode=1, running=0
	v, err := space.Decode(3)
	if err != nil {
		t.Fatal(err)
	}

	if v[Term("alarm@0")] != 1 {
		t.Errorf("alarm@0 = %d, want 1", v[Term("alarm@0")])
	}
	if v[Term("running(c1)@0")] != 0 {
		t.Errorf("running(c1)@0 = %d, want 0", v[Term("running(c1)@0")])
	}
	// one-hot over the mode group
	hot := 0
	for _, opt := range []Term{"mode(a)@0", "mode(b)@0", "mode(c)@0"} {
		hot += v[opt]
	}
	if hot != 1 || v[Term("mode(b)@0")] != 1 {
		t.Errorf("mode group not one-hot on b: %v", v)
	}
}

func TestStateSpaceDecodeOutOfRange(t *testing.T) {
	space := NewStateSpace(buildMixedSchema(t))
	if _, err := space.Decode(-1); err == nil {
		t.Error("Decode(-1) succeeded")
	}
	if _, err := space.Decode(12); err == nil {
		t.Error("Decode(Size()) succeeded")
	}
}

func TestStateSpaceEncodeRejectsMalformed(t *testing.T) {
	s := buildMixedSchema(t)
	space := NewStateSpace(s)

	valid, err := space.Decode(5)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("missing term", func(t *testing.T) {
		v := Valuation{}
		for term, val := range valid {
			v[term] = val
		}
		delete(v, Term("alarm@0"))
		if _, err := space.Encode(v); err == nil {
			t.Error("Encode accepted a valuation missing a factor")
		}
	})

	t.Run("double active option", func(t *testing.T) {
		v := Valuation{}
		for term, val := range valid {
			v[term] = val
		}
		v[Term("mode(a)@0")] = 1
		v[Term("mode(b)@0")] = 1
		v[Term("mode(c)@0")] = 0
		if _, err := space.Encode(v); err == nil {
			t.Error("Encode accepted a two-hot group")
		}
	})

	t.Run("cold group", func(t *testing.T) {
		v := Valuation{}
		for term, val := range valid {
			v[term] = val
		}
		v[Term("mode(a)@0")] = 0
		v[Term("mode(b)@0")] = 0
		v[Term("mode(c)@0")] = 0
		if _, err := space.Encode(v); err == nil {
			t.Error("Encode accepted a group with no active option")
		}
	})
}

func TestActionSpace(t *testing.T) {
	actions := []Term{"reboot(c1)", "reboot(c2)", "noop"}
	space, err := NewActionSpace(actions)
	if err != nil {
		t.Fatal(err)
	}

	if space.Size() != 3 {
		t.Fatalf("Size() = %d, want 3", space.Size())
	}

	for i := 0; i < space.Size(); i++ {
		v, err := space.Decode(i)
		if err != nil {
			t.Fatal(err)
		}
		// actions carry no timestep
		for term := range v {
			if _, ok := term.Timestep(); ok {
				t.Errorf("action term %s is stamped", term)
			}
		}
		back, err := space.Encode(v)
		if err != nil || back != i {
			t.Errorf("Encode(Decode(%d)) = %d, %v", i, back, err)
		}
	}
}

func TestActionSpaceRejectsSingleAction(t *testing.T) {
	if _, err := NewActionSpace([]Term{"only"}); err == nil {
		t.Error("single-action space accepted")
	}
}

func TestSpaceLabels(t *testing.T) {
	space := NewStateSpace(buildMixedSchema(t))
	label, err := space.Label(0)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(label, "alarm=0") || !strings.Contains(label, "mode(a)") {
		t.Errorf("Label(0) = %q", label)
	}
}
