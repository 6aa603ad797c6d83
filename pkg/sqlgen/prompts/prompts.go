// Package prompts embeds the prompt templates used by the SQL generator.
package prompts

import "embed"

//go:embed *.md
var PromptsFS embed.FS
