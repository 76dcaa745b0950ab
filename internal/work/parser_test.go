package work

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		ok       bool
		itemType ItemType
		priority Priority
		file     string
		lineNo   int
	}{
		{
			name:     "compiler error",
			line:     "src/main.go:42:7: error: undefined variable",
			ok:       true,
			itemType: TypeError,
			priority: PriorityHigh,
			file:     "src/main.go",
			lineNo:   42,
		},
		{
			name:     "compiler warning",
			line:     "lib/util.go:8:1: warning: unused import",
			ok:       true,
			itemType: TypeWarning,
			priority: PriorityMedium,
			file:     "lib/util.go",
			lineNo:   8,
		},
		{
			name:     "todo",
			line:     "src/parser.go: TODO: handle empty input",
			ok:       true,
			itemType: TypeImprovement,
			priority: PriorityLow,
			file:     "src/parser.go",
		},
		{
			name:     "improvement",
			line:     "src/cache.go: IMPROVEMENT: use LRU eviction",
			ok:       true,
			itemType: TypeImprovement,
			priority: PriorityMedium,
			file:     "src/cache.go",
		},
		{
			name:     "feature",
			line:     "api/routes.go: FEATURE: add pagination",
			ok:       true,
			itemType: TypeFeature,
			priority: PriorityMedium,
			file:     "api/routes.go",
		},
		{name: "blank", line: "   ", ok: false},
		{name: "unrecognized", line: "some random log output", ok: false},
		{name: "already completed", line: "[COMPLETED] src/main.go:42:7: error: undefined variable", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, ok := ParseLine(tt.line)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.itemType, item.Type)
			assert.Equal(t, tt.priority, item.Priority)
			assert.Equal(t, tt.file, item.File)
			assert.Equal(t, tt.lineNo, item.Line)
			assert.Equal(t, StatusPending, item.Status)
			assert.NotEmpty(t, item.ID)
		})
	}
}

func TestLineID_StableAcrossMarker(t *testing.T) {
	line := "src/main.go:42:7: error: undefined variable"
	assert.Equal(t, LineID(line), LineID(CompletedMarker+line),
		"marking a line must not change its identity")
	assert.Equal(t, LineID(line), LineID("  "+line+"  "))
	assert.NotEqual(t, LineID(line), LineID(line+"x"))
}
