// Copyright © 2024 The ELPS authors

package cmd

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/luthersystems/natvis/diagnostic"
	"github.com/spf13/viper"
)

func colorMode() diagnostic.ColorMode {
	mode, ok := diagnostic.ParseColorMode(viper.GetString("color"))
	if !ok {
		return diagnostic.ColorAuto
	}
	return mode
}

func newRenderer() *diagnostic.Renderer {
	return &diagnostic.Renderer{Color: colorMode()}
}

// errorText formats err followed by its hints, one per line.
func errorText(err error) string {
	var sb strings.Builder
	sb.WriteString("error: ")
	sb.WriteString(err.Error())
	for _, hint := range errors.GetAllHints(err) {
		sb.WriteString("\nhint: ")
		sb.WriteString(hint)
	}
	return sb.String()
}
