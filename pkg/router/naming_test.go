package router

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamerDrawsFromPool(t *testing.T) {
	n := newNamer(nil)
	for i := 0; i < 20; i++ {
		name, err := n.Next(nil)
		require.NoError(t, err)
		assert.Contains(t, DefaultNamePool, name)
	}
}

func TestNamerAddsSuffixOnCollision(t *testing.T) {
	n := newNamer([]string{"wise-jordan"})

	name, err := n.Next([]string{"Wise-Jordan"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "wise-jordan-"))
	assert.Len(t, name, len("wise-jordan-")+suffixLength)
}

func TestNamerRetriesTakenSuffix(t *testing.T) {
	n := newNamer([]string{"sam"})
	suffixes := []string{"aaaa", "bbbb"}
	n.suffix = func() (string, error) {
		s := suffixes[0]
		suffixes = suffixes[1:]
		return s, nil
	}

	name, err := n.Next([]string{"sam", "sam-aaaa"})
	require.NoError(t, err)
	assert.Equal(t, "sam-bbbb", name)
}

func TestNamerSuffixError(t *testing.T) {
	n := newNamer([]string{"sam"})
	n.suffix = func() (string, error) { return "", errors.New("no entropy") }

	_, err := n.Next([]string{"sam"})
	assert.Error(t, err)
}
