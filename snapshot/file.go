// Copyright © 2024 The ELPS authors

package snapshot

import (
	"bytes"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of a snapshot file.
type Format int

const (
	FormatYAML Format = iota
	FormatTOML
)

// FormatForPath chooses a format from a file extension. Unknown extensions
// are read as YAML.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	default:
		return FormatYAML
	}
}

// File is the on-disk description of a snapshot.
//
//	pointer_size: 8
//	byte_order: little
//	types:
//	  - name: Vector<int>
//	    kind: struct
//	    size: 16
//	    fields:
//	      - {name: Count, type: int, offset: 0}
//	      - {name: Data, type: int*, offset: 8}
//	segments:
//	  - address: 0x1000
//	    hex: "03000000 00000000 00200000 00000000"
//	variables:
//	  - {name: v, type: Vector<int>, address: 0x1000}
type File struct {
	PointerSize int              `yaml:"pointer_size" toml:"pointer_size"`
	ByteOrder   string           `yaml:"byte_order" toml:"byte_order"`
	Types       []TypeDecl       `yaml:"types" toml:"types"`
	Constants   map[string]int64 `yaml:"constants" toml:"constants"`
	Segments    []SegmentDecl    `yaml:"segments" toml:"segments"`
	Variables   []VariableDecl   `yaml:"variables" toml:"variables"`
}

// TypeDecl declares a struct, union, enum or typedef.
type TypeDecl struct {
	Name        string           `yaml:"name" toml:"name"`
	Kind        string           `yaml:"kind" toml:"kind"`
	Size        int              `yaml:"size" toml:"size"`
	Target      string           `yaml:"target" toml:"target"`
	Fields      []FieldDecl      `yaml:"fields" toml:"fields"`
	Enumerators map[string]int64 `yaml:"enumerators" toml:"enumerators"`
}

// FieldDecl declares a data member at a byte offset.
type FieldDecl struct {
	Name   string `yaml:"name" toml:"name"`
	Type   string `yaml:"type" toml:"type"`
	Offset int    `yaml:"offset" toml:"offset"`
}

// SegmentDecl is a block of memory. Whitespace in Hex is ignored.
type SegmentDecl struct {
	Address uint64 `yaml:"address" toml:"address"`
	Hex     string `yaml:"hex" toml:"hex"`
}

// VariableDecl names a value of the program.
type VariableDecl struct {
	Name    string `yaml:"name" toml:"name"`
	Type    string `yaml:"type" toml:"type"`
	Address uint64 `yaml:"address" toml:"address"`
}

// Open reads the snapshot stored at path.
func Open(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open snapshot")
	}
	defer f.Close() //nolint:errcheck // read-only
	snap, err := Decode(f, FormatForPath(path))
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return snap, nil
}

// Decode reads a snapshot in the given format.
func Decode(r io.Reader, format Format) (*Snapshot, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read snapshot")
	}
	var file File
	switch format {
	case FormatTOML:
		if _, err := toml.NewDecoder(bytes.NewReader(b)).Decode(&file); err != nil {
			return nil, errors.Wrap(err, "decode toml snapshot")
		}
	default:
		if err := yaml.Unmarshal(b, &file); err != nil {
			return nil, errors.Wrap(err, "decode yaml snapshot")
		}
	}
	return New(&file)
}

func decodeHex(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '_':
			return -1
		}
		return r
	}, s)
	return hex.DecodeString(clean)
}
