package settings

import (
	"errors"
	"testing"
)

func TestSetParsesByKind(t *testing.T) {
	r := Defaults()
	if err := r.Set(KeyCtxSize, " 8192 "); err != nil {
		t.Fatal(err)
	}
	if r.Int(KeyCtxSize) != 8192 {
		t.Errorf("ctx_size = %d", r.Int(KeyCtxSize))
	}
	if err := r.Set("mlock", "true"); err != nil || !r.Bool("mlock") {
		t.Errorf("mlock: err=%v value=%v", err, r.Bool("mlock"))
	}
	if err := r.Set("temp", "0.8"); err != nil || r.String("temp") != "0.8" {
		t.Errorf("temp: err=%v value=%q", err, r.String("temp"))
	}
	if err := r.Set("temp", ""); err != nil || r.String("temp") != "" {
		t.Errorf("clearing temp: err=%v", err)
	}
}

func TestSetRejectsInvalidInput(t *testing.T) {
	r := Defaults()
	cases := []struct {
		key, value string
		want       error
	}{
		{"temp", "hot", ErrInvalidValue},
		{KeyCtxSize, "4k", ErrInvalidValue},
		{KeyCtxSize, "-1", ErrInvalidValue},
		{KeyGPULayers, "1000", ErrInvalidValue},
		{"mlock", "maybe", ErrInvalidValue},
		{"flash_attn", "sometimes", ErrInvalidValue},
		{"no_such_field", "x", ErrUnknownField},
	}
	for _, tc := range cases {
		if err := r.Set(tc.key, tc.value); !errors.Is(err, tc.want) {
			t.Errorf("Set(%s, %q) = %v, want %v", tc.key, tc.value, err, tc.want)
		}
	}
	if !r.Equal(Defaults()) {
		t.Error("rejected input must not change the record")
	}
}

func TestOpenChoiceAcceptsCustomValue(t *testing.T) {
	r := Defaults()
	if err := r.Set("chat_template", "granite"); err != nil {
		t.Fatalf("open choice rejected custom value: %v", err)
	}
}

func TestResetAndIsDefault(t *testing.T) {
	r := Defaults()
	r.Set(KeyPort, "9999")
	if r.IsDefault(KeyPort) {
		t.Error("port should not be default")
	}
	r.Reset(KeyPort)
	if !r.IsDefault(KeyPort) || r.String(KeyPort) != "8080" {
		t.Errorf("port after reset = %q", r.String(KeyPort))
	}
}

func TestCloneIsIndependent(t *testing.T) {
	r := Defaults()
	r.AddArgument("--metrics")
	c := r.Clone()
	c.Set(KeyModelPath, "other.gguf")
	c.SetArgumentEnabled(0, false)

	if r.String(KeyModelPath) != "" {
		t.Error("clone shares values with original")
	}
	if !r.Arguments()[0].Enabled {
		t.Error("clone shares arguments with original")
	}
	if r.Equal(c) {
		t.Error("records should differ")
	}
}

func TestArgumentOperations(t *testing.T) {
	r := Defaults()
	if err := r.AddArgument("   "); !errors.Is(err, ErrEmptyArgument) {
		t.Errorf("blank add: %v", err)
	}
	if err := r.AddArgument(" --metrics "); err != nil {
		t.Fatal(err)
	}
	if err := r.AddArgument("--metrics"); !errors.Is(err, ErrDuplicateArgument) {
		t.Errorf("duplicate add: %v", err)
	}
	r.AddArgument("--slots")

	if err := r.EditArgument(0, "--metrics --verbose-prompt"); err != nil {
		t.Fatal(err)
	}
	if err := r.EditArgument(0, "  "); err != nil {
		t.Fatal(err)
	}
	if got := r.Arguments()[0].Value; got != "--metrics --verbose-prompt" {
		t.Errorf("edited value = %q", got)
	}

	if err := r.RemoveArgument(5); !errors.Is(err, ErrArgumentIndex) {
		t.Errorf("out of range remove: %v", err)
	}
	if err := r.RemoveArgument(0); err != nil {
		t.Fatal(err)
	}
	args := r.Arguments()
	if len(args) != 1 || args[0].Value != "--slots" {
		t.Errorf("args after remove = %+v", args)
	}
}

func TestFieldsInGroupCoversSchema(t *testing.T) {
	total := 0
	for _, g := range Groups {
		total += len(FieldsInGroup(g))
	}
	if total != len(Fields()) {
		t.Errorf("groups cover %d of %d fields", total, len(Fields()))
	}
	for _, f := range Fields() {
		if f.Kind == KindChoice && !f.Open {
			ok := false
			for _, c := range f.Choices {
				if c == f.Default {
					ok = true
				}
			}
			if !ok {
				t.Errorf("%s default %v not among choices", f.Key, f.Default)
			}
		}
	}
}
