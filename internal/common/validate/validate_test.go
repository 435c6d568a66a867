package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const itemsSchema = `
let Item = close({
	name!:     string & =~"\\S"
	quantity!: int & >=1 & <=50
	price?:    number & >=0
})
items!: [Item, ...Item]
`

func TestValidate_Valid(t *testing.T) {
	s := MustCompile(itemsSchema)
	res := Validate([]byte(`{"items":[{"name":"margherita","quantity":2,"price":11.5}]}`), s)
	assert.True(t, res.IsValid)
	assert.Empty(t, res.FieldErrors)
}

func TestValidate_FieldErrors(t *testing.T) {
	s := MustCompile(itemsSchema)
	res := Validate([]byte(`{"items":[{"name":"margherita","quantity":0}]}`), s)
	require.False(t, res.IsValid)
	assert.Contains(t, res.FieldErrors, "items.0.quantity")
}

func TestValidate_MissingRequired(t *testing.T) {
	s := MustCompile(itemsSchema)
	res := Validate([]byte(`{}`), s)
	require.False(t, res.IsValid)
	assert.Contains(t, res.FieldErrors, "items")
}

func TestValidate_EmptyList(t *testing.T) {
	s := MustCompile(itemsSchema)
	res := Validate([]byte(`{"items":[]}`), s)
	assert.False(t, res.IsValid)
}

func TestValidate_Malformed(t *testing.T) {
	s := MustCompile(itemsSchema)
	res := Validate([]byte(`{"items":`), s)
	assert.False(t, res.IsValid)
}

func TestCompile_BadSchema(t *testing.T) {
	_, err := Compile(`items: [`)
	assert.Error(t, err)
}
