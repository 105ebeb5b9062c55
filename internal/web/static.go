package web

import (
	"embed"
)

// staticFiles holds the dashboard page served on "/".
//
//go:embed static/*
var staticFiles embed.FS
