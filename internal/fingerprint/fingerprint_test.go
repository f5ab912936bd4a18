package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFingerprintIsDeterministic(t *testing.T) {
	inputs := []Input{
		StringInput("config", "max_loops: 3"),
		StringInput("source-count", "42"),
	}
	first := Fingerprint(inputs)
	for i := 0; i < 5; i++ {
		if got := Fingerprint(inputs); got != first {
			t.Fatalf("fingerprint not deterministic: %s vs %s", got, first)
		}
	}
}

func TestFingerprintChangesWithBytes(t *testing.T) {
	a := Fingerprint([]Input{StringInput("config", "max_loops: 3")})
	b := Fingerprint([]Input{StringInput("config", "max_loops: 4")})
	if a == b {
		t.Error("changing input bytes must change the hash")
	}
}

func TestFingerprintChangesWithCount(t *testing.T) {
	a := Fingerprint([]Input{StringInput("config", "x")})
	b := Fingerprint([]Input{StringInput("config", "x"), StringInput("extra", "")})
	if a == b {
		t.Error("changing the number of inputs must change the hash")
	}
}

func TestFingerprintNoConcatenationAmbiguity(t *testing.T) {
	a := Fingerprint([]Input{StringInput("ab", "c")})
	b := Fingerprint([]Input{StringInput("a", "bc")})
	if a == b {
		t.Error("name/byte boundaries must be part of the hash")
	}
}

func TestFileInputMissingFile(t *testing.T) {
	in, err := FileInput("config", filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}

	present := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(present, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	in2, err := FileInput("config", present)
	if err != nil {
		t.Fatal(err)
	}

	// An absent file and an empty file are different inputs.
	if Fingerprint([]Input{in}) == Fingerprint([]Input{in2}) {
		t.Error("absent and empty-but-present files must fingerprint differently")
	}
}

func TestSourceCountInput(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.go", "b.go", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	in, err := SourceCountInput("sources", dir, []string{".go"})
	if err != nil {
		t.Fatal(err)
	}
	if string(in.Bytes) != "2" {
		t.Errorf("source count = %s, want 2", in.Bytes)
	}

	// Adding a source file changes the fingerprint.
	before := Fingerprint([]Input{in})
	if err := os.WriteFile(filepath.Join(dir, "d.go"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	in2, err := SourceCountInput("sources", dir, []string{".go"})
	if err != nil {
		t.Fatal(err)
	}
	if Fingerprint([]Input{in2}) == before {
		t.Error("source count change must change the fingerprint")
	}
}
