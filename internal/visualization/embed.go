package visualization

import "embed"

// templates contains the embedded HTML dashboard shell.
//
//go:embed templates/*
var templates embed.FS
