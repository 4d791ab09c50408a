package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type item struct {
	id   int32
	name string
}

func TestFindBy(t *testing.T) {
	data := []item{{1, "a"}, {2, "b"}, {3, "c"}}
	key := func(i item) int32 { return i.id }

	all, missing := FindBy(data, key, nil)
	assert.Equal(t, data, all)
	assert.Empty(t, missing)

	got, missing := FindBy(data, key, []int32{3, 5, 1})
	assert.Equal(t, []item{{3, "c"}, {1, "a"}}, got)
	assert.Equal(t, []int32{5}, missing)
}
