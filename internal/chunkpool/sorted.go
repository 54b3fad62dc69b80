package chunkpool

import (
	"sort"

	"opctl/internal/model"
)

// sortedPool groups slices by key range, honoring the ReduceBy/JoinBy/SortBy
// prefix recorded on each stripe's ReduceKey. With EnableKeyGuarantee set
// every row sharing a reduce key is guaranteed to land in one job;
// with it disabled, a key's stripes may be split across jobs like an
// unordered pool (§4.1).
type sortedPool struct {
	base
	groups map[string][]model.Cookie // key -> cookies sharing that key, in add order
}

func newSortedPool(cfg Config) *sortedPool {
	return &sortedPool{base: newBase(cfg), groups: make(map[string][]model.Cookie)}
}

func (p *sortedPool) Kind() Kind { return KindSorted }

func (p *sortedPool) Add(stripe model.ChunkStripe) model.Cookie {
	c := p.addEntry(stripe)
	p.groups[stripe.ReduceKey] = append(p.groups[stripe.ReduceKey], c)
	return c
}

func (p *sortedPool) Suspend(c model.Cookie) { p.suspend(c) }
func (p *sortedPool) Resume(c model.Cookie)  { p.resume(c) }

func (p *sortedPool) Reset(c model.Cookie, stripe model.ChunkStripe) error {
	e, ok := p.pending[c]
	if !ok {
		return ErrUnknownCookie
	}
	e.stripe = stripe
	e.suspendCnt = 0
	return nil
}

func (p *sortedPool) Finish() {}

func (p *sortedPool) sortedKeys() []string {
	keys := make([]string, 0, len(p.groups))
	for k := range p.groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *sortedPool) groupReady(key string) bool {
	for _, c := range p.groups[key] {
		e, ok := p.pending[c]
		if !ok || e.extractedAs != model.InvalidCookie {
			continue // already extracted
		}
		if !p.ready(e) {
			return false
		}
	}
	return true
}

func (p *sortedPool) Extract(node model.NodeID) (Extraction, bool) {
	var chosen []model.Cookie
	var stripes []model.ChunkStripe
	var weight int64

	addStripe := func(c model.Cookie, e *entry) {
		chosen = append(chosen, c)
		stripes = append(stripes, e.stripe)
		weight += e.stripe.DataWeight()
	}

	overTarget := func() bool {
		hitWeight := p.cfg.JobDataWeight > 0 && weight >= p.cfg.JobDataWeight
		hitCount := p.cfg.JobSliceCount > 0 && len(chosen) >= p.cfg.JobSliceCount
		return hitWeight || hitCount
	}

	for _, key := range p.sortedKeys() {
		if len(p.groups[key]) == 0 {
			continue
		}
		if !p.groupReady(key) {
			if p.cfg.EnableKeyGuarantee {
				// Cannot skip ahead past an unready key without breaking key
				// ordering guarantees for a later extraction of this key; stop.
				break
			}
			continue
		}

		if p.cfg.EnableKeyGuarantee {
			// Never split a key group: if it alone exceeds the target, still
			// take it whole (a job must make progress), otherwise only take
			// it if we haven't already hit the target.
			if len(chosen) > 0 && overTarget() {
				break
			}
			for _, c := range p.groups[key] {
				if e, ok := p.pending[c]; ok && e.extractedAs == model.InvalidCookie {
					addStripe(c, e)
				}
			}
			if overTarget() {
				break
			}
			continue
		}

		for _, c := range p.groups[key] {
			e, ok := p.pending[c]
			if !ok || e.extractedAs != model.InvalidCookie {
				continue
			}
			addStripe(c, e)
			if overTarget() {
				break
			}
		}
		if overTarget() {
			break
		}
	}

	if len(chosen) == 0 {
		return Extraction{}, false
	}
	out := p.recordExtraction(chosen, stripes)
	return Extraction{
		OutputCookie: out,
		Stripes:      model.NewChunkStripeList(stripes),
		InputCookies: chosen,
	}, true
}

func (p *sortedPool) Completed(out model.Cookie) error {
	_, err := p.finishExtraction(out)
	return err
}

func (p *sortedPool) Failed(out model.Cookie) error {
	_, err := p.returnExtraction(out)
	return err
}

func (p *sortedPool) Aborted(out model.Cookie) error {
	_, err := p.returnExtraction(out)
	return err
}

func (p *sortedPool) Lost(out model.Cookie) error {
	_, err := p.lost(out)
	return err
}

func (p *sortedPool) JobCounter() (pending, running, completed int) { return p.jobCounter() }

func (p *sortedPool) DataWeightCounter() (pending, running, completed, lostInFlight int64) {
	return p.dataWeightCounter()
}

func (p *sortedPool) Locality(n model.NodeID) int64 {
	var total int64
	for _, e := range p.pending {
		if p.ready(e) {
			total += int64(stripeLocality(&e.stripe, n))
		}
	}
	return total
}
