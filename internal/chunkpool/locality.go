package chunkpool

import "opctl/internal/model"

func stripeLocality(s *model.ChunkStripe, node model.NodeID) int {
	if s.NodeLocality == nil {
		return 0
	}
	return s.NodeLocality[node]
}
