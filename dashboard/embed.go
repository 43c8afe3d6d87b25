// Package dashboard provides the embedded web UI assets for pendingtx.
//
// This package uses Go's embed directive to include the dashboard HTML, CSS,
// and JavaScript at compile time. This enables single-binary deployment
// without external asset files.
//
// The page subscribes to the "/api/sse" stream and re-renders the pending
// list on every event. Users of the pendingtx library should not need to
// interact with this package directly.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Pending bookings page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
