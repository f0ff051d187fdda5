package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorBuilder(t *testing.T) {
	base := stderrors.New("connection refused")

	ee := New(base).
		Component("syncapi").
		Category(CategoryNetwork).
		Context("url", "https://example.com/detection/fetch/").
		Build()

	assert.Equal(t, "connection refused", ee.Error())
	assert.Equal(t, "syncapi", ee.GetComponent())
	assert.Equal(t, string(CategoryNetwork), ee.GetCategory())
	assert.Equal(t, "https://example.com/detection/fetch/", ee.GetContext()["url"])
	require.ErrorIs(t, ee, base)
}

func TestErrorBuilder_Defaults(t *testing.T) {
	ee := Newf("boom %d", 42).Build()

	assert.Equal(t, "boom 42", ee.Error())
	assert.Equal(t, string(CategoryGeneric), ee.GetCategory())
	// Detection runs from a test binary, so the component falls back to unknown.
	assert.NotEmpty(t, ee.GetComponent())
}

func TestEnhancedError_CategoryMatching(t *testing.T) {
	a := New(stderrors.New("a")).Category(CategoryDatabase).Build()
	b := New(stderrors.New("b")).Category(CategoryDatabase).Build()
	c := New(stderrors.New("c")).Category(CategoryNetwork).Build()

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))
}

func TestGetContext_ReturnsCopy(t *testing.T) {
	ee := New(stderrors.New("x")).Context("k", "v").Build()

	ctx := ee.GetContext()
	ctx["k"] = "mutated"

	assert.Equal(t, "v", ee.GetContext()["k"])
}
