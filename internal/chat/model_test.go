package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	req := require.New(t)
	req.Equal([]int{1, 2, 5}, Canonicalize([]int{5, 2, 1, 2, 5}))
	req.Equal(Canonicalize([]int{3, 1}), Canonicalize([]int{1, 3, 3}))
}

func TestParticipantKey_RoundTrip(t *testing.T) {
	req := require.New(t)
	key := ParticipantKey([]int{1, 20, 300})
	req.Equal("1,20,300", key)

	ids, err := ParseParticipantKey(key)
	req.NoError(err)
	req.Equal([]int{1, 20, 300}, ids)

	_, err = ParseParticipantKey("1,x")
	req.Error(err)
}

func TestRoom_HasParticipant(t *testing.T) {
	req := require.New(t)
	room := &Room{Participants: []int{2, 4, 8}}
	req.True(room.HasParticipant(4))
	req.False(room.HasParticipant(5))
}
