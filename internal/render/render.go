// Package render implements {{variable}} substitution for email subjects
// and bodies, and derives the variable list stored on templates.
package render

import (
	"regexp"
	"strings"

	"github.com/outflowhq/outflow/internal/models"
)

// variable pattern for template substitution: {{variable_name}}
var varPattern = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Render substitutes every {{key}} occurrence with its mapped value.
// Unknown keys render as the empty string; a placeholder never survives
// into the delivered email.
func Render(template string, vars map[string]string) string {
	if template == "" {
		return template
	}

	return varPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		return vars[name]
	})
}

// ExtractVariables returns the distinct variable names referenced by the
// given template strings, in first-occurrence order.
func ExtractVariables(sources ...string) []string {
	seen := make(map[string]struct{})
	var names []string

	for _, src := range sources {
		for _, m := range varPattern.FindAllStringSubmatch(src, -1) {
			name := strings.TrimSpace(m[1])
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}

	return names
}

// ContactVars builds the variable map for a contact. Custom fields are
// applied first so the structured fields win on key collision.
func ContactVars(c *models.Contact) map[string]string {
	vars := make(map[string]string, len(c.CustomFields)+4)

	for k, v := range c.CustomFields {
		vars[k] = v
	}

	vars["firstName"] = c.FirstName
	vars["lastName"] = c.LastName
	vars["company"] = c.Company
	vars["email"] = c.Email

	return vars
}
