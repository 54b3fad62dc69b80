package chunkpool

import (
	"sort"

	"opctl/internal/model"
)

// shufflePool partitions slices by their PartitionTag (used between a
// map-reduce mapper and its reducers, §4.1). A single extraction never mixes
// stripes from two partitions, since a reduce job must only ever see one
// partition's data; within a partition, stripes are packed up to the
// job-size target the same way an unordered pool would.
type shufflePool struct {
	base
	partitions map[int][]model.Cookie
}

func newShufflePool(cfg Config) *shufflePool {
	return &shufflePool{base: newBase(cfg), partitions: make(map[int][]model.Cookie)}
}

func (p *shufflePool) Kind() Kind { return KindShuffle }

func (p *shufflePool) Add(stripe model.ChunkStripe) model.Cookie {
	c := p.addEntry(stripe)
	p.partitions[stripe.PartitionTag] = append(p.partitions[stripe.PartitionTag], c)
	return c
}

func (p *shufflePool) Suspend(c model.Cookie) { p.suspend(c) }
func (p *shufflePool) Resume(c model.Cookie)  { p.resume(c) }

func (p *shufflePool) Reset(c model.Cookie, stripe model.ChunkStripe) error {
	e, ok := p.pending[c]
	if !ok {
		return ErrUnknownCookie
	}
	e.stripe = stripe
	e.suspendCnt = 0
	return nil
}

func (p *shufflePool) Finish() {}

func (p *shufflePool) Extract(node model.NodeID) (Extraction, bool) {
	tags := make([]int, 0, len(p.partitions))
	for t := range p.partitions {
		tags = append(tags, t)
	}
	sort.Ints(tags)

	for _, tag := range tags {
		var chosen []model.Cookie
		var stripes []model.ChunkStripe
		var weight int64
		for _, c := range p.partitions[tag] {
			e, ok := p.pending[c]
			if !ok || !p.ready(e) {
				continue
			}
			chosen = append(chosen, c)
			stripes = append(stripes, e.stripe)
			weight += e.stripe.DataWeight()

			hitWeight := p.cfg.JobDataWeight > 0 && weight >= p.cfg.JobDataWeight
			hitCount := p.cfg.JobSliceCount > 0 && len(chosen) >= p.cfg.JobSliceCount
			if hitWeight || hitCount {
				break
			}
		}
		if len(chosen) == 0 {
			continue
		}
		out := p.recordExtraction(chosen, stripes)
		return Extraction{
			OutputCookie: out,
			Stripes:      model.NewChunkStripeList(stripes),
			InputCookies: chosen,
		}, true
	}
	return Extraction{}, false
}

func (p *shufflePool) Completed(out model.Cookie) error {
	_, err := p.finishExtraction(out)
	return err
}

func (p *shufflePool) Failed(out model.Cookie) error {
	_, err := p.returnExtraction(out)
	return err
}

func (p *shufflePool) Aborted(out model.Cookie) error {
	_, err := p.returnExtraction(out)
	return err
}

func (p *shufflePool) Lost(out model.Cookie) error {
	_, err := p.lost(out)
	return err
}

func (p *shufflePool) JobCounter() (pending, running, completed int) { return p.jobCounter() }

func (p *shufflePool) DataWeightCounter() (pending, running, completed, lostInFlight int64) {
	return p.dataWeightCounter()
}

func (p *shufflePool) Locality(n model.NodeID) int64 {
	var total int64
	for _, e := range p.pending {
		if p.ready(e) {
			total += int64(stripeLocality(&e.stripe, n))
		}
	}
	return total
}
