// Package fingerprint computes deterministic content hashes over a declared
// set of named inputs. A cached result is valid exactly as long as the
// fingerprint of its declared inputs is unchanged; nothing else invalidates
// it.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Input is one named byte source contributing to a fingerprint. The caller
// fixes the named set; changing any input's bytes, or the number of inputs,
// changes the hash.
type Input struct {
	Name  string
	Bytes []byte
}

// Fingerprint hashes the inputs into a stable hex digest. Inputs are
// length-prefixed and hashed in the caller's order along with their names
// and the total count, so neither reordering collisions nor concatenation
// ambiguity can produce equal hashes for different input sets.
func Fingerprint(inputs []Input) string {
	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(len(inputs)))
	h.Write(buf[:])
	for _, in := range inputs {
		binary.BigEndian.PutUint64(buf[:], uint64(len(in.Name)))
		h.Write(buf[:])
		h.Write([]byte(in.Name))
		binary.BigEndian.PutUint64(buf[:], uint64(len(in.Bytes)))
		h.Write(buf[:])
		h.Write(in.Bytes)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// FileInput reads a file's bytes as a named input. A missing file is a valid
// input (empty bytes with a missing marker) so that adding or deleting the
// file changes the fingerprint rather than erroring.
func FileInput(name, path string) (Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Input{Name: name + ":absent"}, nil
		}
		return Input{}, fmt.Errorf("reading fingerprint input %s: %w", path, err)
	}
	return Input{Name: name, Bytes: data}, nil
}

// StringInput wraps a literal value as a named input.
func StringInput(name, value string) Input {
	return Input{Name: name, Bytes: []byte(value)}
}

// SourceCountInput counts files under root matching any of the given
// suffixes (e.g. ".go") and encodes the count as a named input. The count,
// not the listing, is the declared input: adding or removing a source file
// changes the fingerprint.
func SourceCountInput(name, root string, suffixes []string) (Input, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			base := d.Name()
			if base != "." && strings.HasPrefix(base, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		for _, suf := range suffixes {
			if strings.HasSuffix(path, suf) {
				count++
				break
			}
		}
		return nil
	})
	if err != nil {
		return Input{}, fmt.Errorf("counting sources under %s: %w", root, err)
	}
	return StringInput(name, fmt.Sprintf("%d", count)), nil
}
