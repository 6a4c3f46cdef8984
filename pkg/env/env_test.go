package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstPrefersEarlierKeys(t *testing.T) {
	t.Setenv("BAZAAR_TEST_A", "")
	t.Setenv("BAZAAR_TEST_B", " second ")
	t.Setenv("BAZAAR_TEST_C", "third")

	assert.Equal(t, "second", First("none", "BAZAAR_TEST_A", "BAZAAR_TEST_B", "BAZAAR_TEST_C"))
	assert.Equal(t, "none", First("none", "BAZAAR_TEST_A"))
	assert.Equal(t, "third", Get("BAZAAR_TEST_C", "x"))
}
