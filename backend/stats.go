package backend

// Statistics are aggregate counters reported by a backend, optionally broken
// down per server node. A zero Statistics (Available=false) is the
// "unavailable" marker.
type Statistics struct {
	Available bool

	HitCount  uint64
	GetCount  uint64
	PutCount  uint64
	ItemCount uint64

	Nodes []NodeStatistics
}

// NodeStatistics are the counters of one server.
type NodeStatistics struct {
	Server    string
	HitCount  uint64
	GetCount  uint64
	PutCount  uint64
	ItemCount uint64
}

// Unavailable is returned when counters cannot be reported.
func Unavailable() Statistics { return Statistics{} }

// Aggregate sums per-node counters into an available Statistics that keeps
// the node breakdown.
func Aggregate(nodes []NodeStatistics) Statistics {
	s := Statistics{Available: true, Nodes: nodes}
	for _, n := range nodes {
		s.HitCount += n.HitCount
		s.GetCount += n.GetCount
		s.PutCount += n.PutCount
		s.ItemCount += n.ItemCount
	}
	return s
}

// HitRate is hits/gets, or 0 when nothing was read.
func (s Statistics) HitRate() float64 {
	if s.GetCount == 0 {
		return 0
	}
	return float64(s.HitCount) / float64(s.GetCount)
}

func (n NodeStatistics) HitRate() float64 {
	if n.GetCount == 0 {
		return 0
	}
	return float64(n.HitCount) / float64(n.GetCount)
}
