// Package templates embeds starter configuration files written out by
// `sentinel workflows init`.
package templates

import "embed"

//go:embed workflows.yaml events.yaml
var FS embed.FS
