package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpen_RejectsBadSchemaNames(t *testing.T) {
	tests := []struct {
		name       string
		schemaName string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"leading digit", "1audit"},
		{"injection attempt", `audit"; DROP TABLE users; --`},
		{"dotted", "public.audit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(context.Background(), "postgres://ignored", tt.schemaName)
			assert.Error(t, err)
		})
	}
}

func TestNullString(t *testing.T) {
	assert.False(t, nullString("").Valid)
	assert.False(t, nullString("   ").Valid)

	got := nullString("Global Administrator")
	assert.True(t, got.Valid)
	assert.Equal(t, "Global Administrator", got.String)
}
