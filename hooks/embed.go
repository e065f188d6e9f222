// Package hooks embeds the built-in record hook scripts. A built-in hook is
// selected with "builtin:<name>", where name is the script's base name
// without the .risor extension.
package hooks

import "embed"

// FS holds the built-in hooks.
//
//go:embed *.risor
var FS embed.FS
