// Copyright © 2024 The ELPS authors

// Package docs embeds the visualizer document reference for use by the CLI.
package docs

import _ "embed"

//go:embed guide.md
var Guide string
