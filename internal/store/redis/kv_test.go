package redis

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewFailsWhenServerUnreachable(t *testing.T) {
	kv, err := New(Config{Addr: "127.0.0.1:1"}, zerolog.Nop())

	assert.Nil(t, kv)
	assert.ErrorContains(t, err, "redis ping")
}
