package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidator_FirstErrorWins(t *testing.T) {
	v := New()
	assert.True(t, v.Valid())

	v.Check(false, "luggage", "must be between 0 and 3")
	v.Check(false, "luggage", "second message")
	v.Check(true, "pickup", "never recorded")

	assert.False(t, v.Valid())
	assert.Equal(t, map[string]string{"luggage": "must be between 0 and 3"}, v.Errors)
}

func TestHelpers(t *testing.T) {
	assert.True(t, PermittedValue("confirm", "confirm", "start"))
	assert.False(t, PermittedValue("fly", "confirm", "start"))
	assert.True(t, Between(3, 0, 3))
	assert.False(t, Between(4, 0, 3))
	assert.True(t, Between(-90.0, -90, 90))
	assert.True(t, Unique([]int{1, 2, 3}))
	assert.False(t, Unique([]string{"a", "b", "a"}))
	assert.True(t, Matches("rider@example.com", EmailRX))
	assert.False(t, Matches("rider@", EmailRX))
}
