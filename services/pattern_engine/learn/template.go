// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package learn

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// buildTemplate parameterizes a definition's source: the definition name
// becomes a {{function_name}} or {{class_name}} placeholder and each
// parameter name becomes a {{param}} placeholder. Returns the template
// and its substitution slots.
func buildTemplate(source, name string, nameKind VariableKind, paramNames []string) (string, []Variable) {
	template := source
	variables := make([]Variable, 0, len(paramNames)+1)

	if name != "" {
		placeholder := "{{" + string(nameKind) + "}}"
		template = replaceIdentifier(template, name, placeholder)
		variables = append(variables, Variable{
			Name:     string(nameKind),
			Kind:     nameKind,
			Original: name,
		})
	}

	for _, param := range paramNames {
		if param == "" || param == "self" || param == "cls" {
			continue
		}
		template = replaceIdentifier(template, param, "{{param}}")
		variables = append(variables, Variable{
			Name:     "param",
			Kind:     VariableParam,
			Original: param,
		})
	}
	return template, variables
}

// replaceIdentifier substitutes whole-word occurrences of an identifier.
func replaceIdentifier(source, ident, replacement string) string {
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(ident) + `\b`)
	if err != nil {
		return strings.ReplaceAll(source, ident, replacement)
	}
	return re.ReplaceAllString(source, replacement)
}

// fingerprint returns the sha256 hex digest of a template. The digest is
// stable across process restarts, which keeps pattern ids stable too.
func fingerprint(template string) string {
	sum := sha256.Sum256([]byte(template))
	return hex.EncodeToString(sum[:])
}

// patternID builds the stable pattern identifier.
func patternID(category, patternType, fp string) string {
	short := fp
	if len(short) > 12 {
		short = short[:12]
	}
	return fmt.Sprintf("%s_%s_%s", category, patternType, short)
}
