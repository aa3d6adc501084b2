package random

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetRandomIntRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		n := GetRandomInt(8)
		assert.GreaterOrEqual(t, n, 10000000)
		assert.Less(t, n, 100000000)
	}
}

func TestGetRandomDigitsLength(t *testing.T) {
	for i := 0; i < 50; i++ {
		assert.Len(t, GetRandomDigits(8), 8)
	}
}

func TestGetDisplayName(t *testing.T) {
	name := GetDisplayName()
	assert.True(t, strings.HasPrefix(name, "User"))
	assert.Len(t, name, len("User")+4)
}
