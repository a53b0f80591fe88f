package xid

import (
	"github.com/google/uuid"
	"go.jetify.com/typeid/v2"
)

// New returns a K-sortable, prefix-qualified id such as "sale_01h2x...".
// An invalid prefix falls back to a random uuid under the same prefix.
func New(prefix string) string {
	id, err := typeid.Generate(prefix)
	if err != nil {
		return prefix + "_" + uuid.NewString()
	}
	return id.String()
}
