/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

package credential

import (
	"strings"
	"unicode"

	"github.com/hyperledger-labs/partner-agent/pkg/store/schema"
)

// LabelStrategy computes the human-readable label attached to a credential
// exchange record. Implementations can be swapped at holder construction.
type LabelStrategy interface {
	Label(sch *schema.Record, documentType string) string
}

// defaultLabelStrategy prefers the configured schema label and falls back to
// a readable rendering of the credential's document type.
type defaultLabelStrategy struct{}

func (defaultLabelStrategy) Label(sch *schema.Record, documentType string) string {
	if sch != nil && sch.Label != "" {
		return sch.Label
	}

	return splitCamelCase(documentType)
}

// splitCamelCase turns "PermanentResidentCard" into
// "Permanent Resident Card".
func splitCamelCase(s string) string {
	var b strings.Builder

	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteRune(' ')
		}

		b.WriteRune(r)
	}

	return b.String()
}
