package middleware

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/draftwell-ai/artifact-platform/internal/model"
)

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID(uuid.Must(uuid.NewV7()).String()))
	assert.Error(t, ValidateID(""))
	assert.Error(t, ValidateID("not-a-uuid"))
	assert.Error(t, ValidateID("../../etc/passwd"))
}

func TestValidatePrompt(t *testing.T) {
	assert.NoError(t, ValidatePrompt("write me a poem"))
	assert.Error(t, ValidatePrompt(""))
	assert.Error(t, ValidatePrompt(strings.Repeat("a", 100001)))
	assert.Error(t, ValidatePrompt("broken \xff utf8"))
}

func TestValidateTitle(t *testing.T) {
	assert.NoError(t, ValidateTitle(""))
	assert.NoError(t, ValidateTitle("My Draft"))
	assert.Error(t, ValidateTitle(strings.Repeat("t", 257)))
}

func TestValidateKind(t *testing.T) {
	assert.NoError(t, ValidateKind(""))
	assert.NoError(t, ValidateKind(model.KindText))
	assert.NoError(t, ValidateKind(model.KindCode))
	assert.Error(t, ValidateKind("powerpoint"))
}
