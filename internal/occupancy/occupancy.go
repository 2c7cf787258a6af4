package occupancy

import (
	"context"

	"github.com/samber/lo"

	"govorilka/internal/transport"
	"govorilka/internal/wire"
)

// Fetch issues the point-in-time "who is here now" query for the named
// channels. It is triggered once per session, right after a successful
// connect; the caller folds the result into the online-user set through
// the same path as live presence joins, so identifiers that arrive on
// both sides of the snapshot are deduplicated for free.
func Fetch(ctx context.Context, binding transport.Binding, channels []string) (wire.HereNowResponse, error) {
	return binding.HereNow(ctx, wire.HereNowParams{
		Channels:     channels,
		IncludeUUIDs: true,
		IncludeState: false,
	})
}

// Occupants flattens the occupant identifiers of the named channels out
// of a snapshot. Channels absent from the response contribute nothing;
// duplicates across channels collapse to one.
func Occupants(resp wire.HereNowResponse, channels []string) []string {
	var ids []string
	for _, name := range channels {
		occ, ok := resp.Channels[name]
		if !ok {
			continue
		}
		ids = append(ids, lo.Map(occ.Occupants, func(o wire.Occupant, _ int) string {
			return o.UUID
		})...)
	}
	return lo.Uniq(ids)
}
