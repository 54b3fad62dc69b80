package chunkpool

import (
	"sort"

	"opctl/internal/model"
)

// unorderedPool packs ready stripes greedily up to a job-size target (data
// weight or slice count), preferring node locality. Used by map,
// unordered-merge, and the regular reduce-combiner (§4.1).
type unorderedPool struct {
	base
}

func newUnorderedPool(cfg Config) *unorderedPool {
	return &unorderedPool{base: newBase(cfg)}
}

func (p *unorderedPool) Kind() Kind { return KindUnordered }

func (p *unorderedPool) Add(stripe model.ChunkStripe) model.Cookie {
	return p.addEntry(stripe)
}

func (p *unorderedPool) Suspend(c model.Cookie) { p.suspend(c) }
func (p *unorderedPool) Resume(c model.Cookie)  { p.resume(c) }

func (p *unorderedPool) Reset(c model.Cookie, stripe model.ChunkStripe) error {
	e, ok := p.pending[c]
	if !ok {
		return ErrUnknownCookie
	}
	e.stripe = stripe
	e.suspendCnt = 0
	return nil
}

func (p *unorderedPool) Finish() {}

// Extract greedily accumulates ready stripes, preferring ones with positive
// locality for node, breaking ties by age, until the job-size target is hit.
// If no local stripe meets the threshold, it falls back to any ready stripe
// (§4.1 extraction policy).
func (p *unorderedPool) Extract(node model.NodeID) (Extraction, bool) {
	cookies := p.readyCookiesByLocality(node)
	if len(cookies) == 0 {
		return Extraction{}, false
	}

	var chosen []model.Cookie
	var stripes []model.ChunkStripe
	var weight int64
	for _, c := range cookies {
		e := p.pending[c]
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
		return Extraction{}, false
	}

	out := p.recordExtraction(chosen, stripes)
	return Extraction{
		OutputCookie: out,
		Stripes:      model.NewChunkStripeList(stripes),
		InputCookies: chosen,
	}, true
}

// readyCookiesByLocality returns ready cookies sorted so that stripes with
// positive locality for node come first (highest locality first, ties by
// age), followed by the remaining ready stripes oldest-first.
func (p *unorderedPool) readyCookiesByLocality(node model.NodeID) []model.Cookie {
	type cand struct {
		cookie   model.Cookie
		locality int
		age      int64
	}
	var local, rest []cand
	for c, e := range p.pending {
		if !p.ready(e) {
			continue
		}
		loc := stripeLocality(&e.stripe, node)
		item := cand{cookie: c, locality: loc, age: e.stripe.CreatedAtSeq}
		if loc > 0 {
			local = append(local, item)
		} else {
			rest = append(rest, item)
		}
	}
	sort.Slice(local, func(i, j int) bool {
		if local[i].locality != local[j].locality {
			return local[i].locality > local[j].locality
		}
		return local[i].age < local[j].age
	})
	sort.Slice(rest, func(i, j int) bool { return rest[i].age < rest[j].age })

	out := make([]model.Cookie, 0, len(local)+len(rest))
	for _, c := range local {
		out = append(out, c.cookie)
	}
	for _, c := range rest {
		out = append(out, c.cookie)
	}
	return out
}

func (p *unorderedPool) Completed(out model.Cookie) error {
	_, err := p.finishExtraction(out)
	return err
}

func (p *unorderedPool) Failed(out model.Cookie) error {
	_, err := p.returnExtraction(out)
	return err
}

func (p *unorderedPool) Aborted(out model.Cookie) error {
	_, err := p.returnExtraction(out)
	return err
}

func (p *unorderedPool) Lost(out model.Cookie) error {
	_, err := p.lost(out)
	return err
}

func (p *unorderedPool) JobCounter() (pending, running, completed int) { return p.jobCounter() }

func (p *unorderedPool) DataWeightCounter() (pending, running, completed, lostInFlight int64) {
	return p.dataWeightCounter()
}

func (p *unorderedPool) Locality(n model.NodeID) int64 {
	var total int64
	for _, e := range p.pending {
		if p.ready(e) {
			total += int64(stripeLocality(&e.stripe, n))
		}
	}
	return total
}
