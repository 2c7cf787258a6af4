package occupancy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"govorilka/internal/wire"
)

func response(channels map[string][]string) wire.HereNowResponse {
	resp := wire.HereNowResponse{Channels: make(map[string]wire.ChannelOccupancy)}
	for name, uuids := range channels {
		occ := wire.ChannelOccupancy{Name: name}
		for _, u := range uuids {
			occ.Occupants = append(occ.Occupants, wire.Occupant{UUID: u})
		}
		resp.Channels[name] = occ
	}
	return resp
}

func TestOccupants(t *testing.T) {
	resp := response(map[string][]string{
		"room1": {"alice", "bob"},
		"room2": {"bob", "carol"},
	})

	got := Occupants(resp, []string{"room1", "room2"})
	require.ElementsMatch(t, []string{"alice", "bob", "carol"}, got)
}

func TestOccupants_OnlyRequestedChannels(t *testing.T) {
	resp := response(map[string][]string{
		"room1": {"alice"},
		"spy":   {"eve"},
	})

	got := Occupants(resp, []string{"room1"})
	require.Equal(t, []string{"alice"}, got)
}

func TestOccupants_MissingChannel(t *testing.T) {
	resp := response(map[string][]string{"room1": {"alice"}})

	require.Empty(t, Occupants(resp, []string{"empty-room"}))
}

func TestOccupants_NilChannels(t *testing.T) {
	require.Empty(t, Occupants(wire.HereNowResponse{}, []string{"room1"}))
}
