package redisclient

import (
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoomChannelNaming(t *testing.T) {
	assert.Equal(t, "store:42:events", RoomChannel(42))

	// Every room channel must fall under the subscription pattern.
	matched, err := path.Match(RoomChannelPattern, RoomChannel(42))
	assert.NoError(t, err)
	assert.True(t, matched)
}

func TestInventoryKey(t *testing.T) {
	assert.Equal(t, "inventory:7", inventoryKey(7))
}
