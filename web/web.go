// Package web embeds the frontend served by sciproxy: a single page that
// lists fetch history and cache contents, with a persisted dark mode
// preference.
package web

import "embed"

// Assets holds the embedded frontend files.
//
//go:embed index.html static
var Assets embed.FS
