package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestKvToFieldersSkipsNonStringKeys(t *testing.T) {
	fs := kvToFielders([]any{"a", 1, 2, "ignored", "b", "two"})
	assert.Len(t, fs, 2)
}

func TestKvToFieldersHandlesDanglingKey(t *testing.T) {
	fs := kvToFielders([]any{"a"})
	assert.Len(t, fs, 1)
}

func TestTagsToAttrsPairsUpValues(t *testing.T) {
	attrs := tagsToAttrs([]string{"session", "s1", "provider", "ollama"})
	assert.Equal(t, []attribute.KeyValue{
		attribute.String("session", "s1"),
		attribute.String("provider", "ollama"),
	}, attrs)
}

func TestTagsToAttrsHandlesDanglingKey(t *testing.T) {
	attrs := tagsToAttrs([]string{"session"})
	assert.Equal(t, []attribute.KeyValue{attribute.String("session", "")}, attrs)
}

func TestKvToAttrsPicksTypedAttribute(t *testing.T) {
	attrs := kvToAttrs([]any{
		"str", "v",
		"int", 1,
		"int64", int64(2),
		"float", 1.5,
		"bool", true,
		"other", struct{}{},
	})
	assert.Equal(t, []attribute.KeyValue{
		attribute.String("str", "v"),
		attribute.Int("int", 1),
		attribute.Int64("int64", 2),
		attribute.Float64("float", 1.5),
		attribute.Bool("bool", true),
		attribute.String("other", ""),
	}, attrs)
}
