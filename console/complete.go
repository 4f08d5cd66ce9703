// Copyright © 2024 The ELPS authors

package console

import (
	"path/filepath"
	"sort"
	"strings"
)

var commands = []string{
	"add-natvis",
	"help",
	"info",
	"locals",
	"print",
	"ptype",
	"quit",
}

// completer implements readline.AutoCompleter. It completes command names,
// file names after add-natvis, variables after print and type names after
// ptype.
type completer struct {
	c *Console
}

func (cp *completer) Do(line []rune, pos int) ([][]rune, int) {
	start := pos
	for start > 0 {
		ch := line[start-1]
		if ch == ' ' || ch == '\t' || ch == '(' || ch == '*' || ch == '&' {
			break
		}
		start--
	}
	prefix := string(line[start:pos])
	fields := strings.Fields(string(line[:start]))

	var candidates []string
	if len(fields) == 0 {
		candidates = commands
	} else {
		switch fields[0] {
		case "add-natvis":
			if prefix == "" {
				return nil, 0
			}
			candidates, _ = filepath.Glob(prefix + "*")
		case "print", "p":
			for _, v := range cp.c.snap.Variables() {
				candidates = append(candidates, v.Name)
			}
		case "ptype":
			candidates = cp.c.snap.TypeNames()
		case "info":
			if len(fields) == 1 {
				candidates = []string{"natvis", "types"}
			}
		}
	}
	return suffixes(candidates, prefix), len([]rune(prefix))
}

func suffixes(candidates []string, prefix string) [][]rune {
	var matches []string
	for _, cand := range candidates {
		if strings.HasPrefix(cand, prefix) {
			matches = append(matches, cand)
		}
	}
	sort.Strings(matches)
	result := make([][]rune, len(matches))
	for i, m := range matches {
		result[i] = []rune(m[len(prefix):])
	}
	return result
}
