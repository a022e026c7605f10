// Package assets embeds the static files shipped with the binaries.
package assets

import "embed"

// EmailTemplatesDir is the directory of the email templates within FS.
const EmailTemplatesDir = "templates/email"

//go:embed all:templates
var FS embed.FS
