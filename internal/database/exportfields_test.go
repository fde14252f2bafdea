package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultExportFields(t *testing.T) {
	// seeding reports how many columns it added
	var _ func(context.Context) (int, error) = (&ExportFieldRepo{}).InstallDefaults

	seen := make(map[string]bool, len(defaultExportFields))
	lastSeq := 0
	for _, f := range defaultExportFields {
		assert.False(t, seen[f.TechnicalName], "duplicate column %s", f.TechnicalName)
		seen[f.TechnicalName] = true
		assert.Greater(t, f.Sequence, lastSeq, f.TechnicalName)
		lastSeq = f.Sequence
	}
	assert.True(t, seen["default_code"])
	assert.True(t, seen["name"])
}
