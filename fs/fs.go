// Package appfs embeds static application files so a deployed binary carries
// its own database migrations.
package appfs

import "embed"

//go:embed migrations
var FS embed.FS
