package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMd5ThenHex(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", Md5ThenHex(nil))
	assert.Equal(t, "acbd18db4cc2f85cedef654fccc4a4d8", Md5ThenHex([]byte("foo")))
}

func TestHashID_Stable(t *testing.T) {
	type job struct {
		In      string
		Quality int
	}
	a := HashID(job{"x.png", 75})
	b := HashID(job{"x.png", 75})
	c := HashID(job{"x.png", 90})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 36)
}
