package chunkpool

import "opctl/internal/model"

// entry tracks one input stripe's lifecycle inside a pool: its suspension
// counter, whether it has already been extracted, and (once extracted)
// which output cookie holds it.
type entry struct {
	stripe      model.ChunkStripe
	suspendCnt  int
	extractedAs model.Cookie // InvalidCookie until extracted
}

// extraction remembers which input cookies and which stripes were bundled
// into one output cookie, so Lost/Completed/Failed/Aborted can operate on it
// and Lost can detect a double-release (§3.1 invariant, §8 invariant 2).
type extraction struct {
	inputCookies []model.Cookie
	stripes      []model.ChunkStripe
	released     bool
}

// base holds the bookkeeping shared by every pool variant: cookie
// allocation, the running/completed job counters and the data-weight
// conservation counters (§8 invariant 1).
type base struct {
	nextCookie model.Cookie
	seq        int64

	pending   map[model.Cookie]*entry
	extracted map[model.Cookie]*extraction

	completedCount  int
	completedWeight int64

	cfg Config
}

func newBase(cfg Config) base {
	return base{
		pending:   make(map[model.Cookie]*entry),
		extracted: make(map[model.Cookie]*extraction),
		cfg:       cfg,
	}
}

func (b *base) allocCookie() model.Cookie {
	c := b.nextCookie
	b.nextCookie++
	return c
}

func (b *base) addEntry(stripe model.ChunkStripe) model.Cookie {
	b.seq++
	stripe.CreatedAtSeq = b.seq
	c := b.allocCookie()
	b.pending[c] = &entry{stripe: stripe}
	return c
}

func (b *base) suspend(c model.Cookie) {
	if e, ok := b.pending[c]; ok {
		e.suspendCnt++
	}
}

func (b *base) resume(c model.Cookie) {
	if e, ok := b.pending[c]; ok && e.suspendCnt > 0 {
		e.suspendCnt--
	}
}

func (b *base) ready(e *entry) bool {
	return e.suspendCnt == 0 && e.extractedAs == model.InvalidCookie
}

// recordExtraction moves the given input cookies from pending to extracted,
// bundled under a freshly allocated output cookie.
func (b *base) recordExtraction(inputCookies []model.Cookie, stripes []model.ChunkStripe) model.Cookie {
	out := b.allocCookie()
	for _, ic := range inputCookies {
		if e, ok := b.pending[ic]; ok {
			e.extractedAs = out
		}
	}
	b.extracted[out] = &extraction{inputCookies: inputCookies, stripes: stripes}
	return out
}

func (b *base) jobCounter() (pending, running, completed int) {
	for _, e := range b.pending {
		if e.extractedAs == model.InvalidCookie {
			pending++
		}
	}
	running = len(b.extracted)
	completed = b.completedCount
	return
}

// dataWeightCounter reports the four buckets of §8 invariant 1. lostInFlight
// is always 0: Lost() (via returnExtraction) moves a stripe's weight straight
// back into pending within the same call, so there is no window in which
// this single-writer pool holds weight that is neither pending, running nor
// completed.
func (b *base) dataWeightCounter() (pending, running, completed, lostInFlight int64) {
	for _, e := range b.pending {
		if e.extractedAs == model.InvalidCookie {
			pending += e.stripe.DataWeight()
		}
	}
	for _, ex := range b.extracted {
		for _, s := range ex.stripes {
			running += s.DataWeight()
		}
	}
	completed = b.completedWeight
	return
}

// finishExtraction removes the bookkeeping for a terminal (completed)
// output cookie and credits its weight to completedWeight.
func (b *base) finishExtraction(out model.Cookie) (*extraction, error) {
	ex, ok := b.extracted[out]
	if !ok {
		return nil, ErrUnknownCookie
	}
	for _, ic := range ex.inputCookies {
		delete(b.pending, ic)
	}
	delete(b.extracted, out)
	var w int64
	for _, s := range ex.stripes {
		w += s.DataWeight()
	}
	b.completedCount++
	b.completedWeight += w
	return ex, nil
}

// returnExtraction puts the stripes behind an output cookie back into the
// pending set (used by Failed/Aborted/Lost), returning the extraction for
// the caller's own bookkeeping (e.g. counting a lost-in-flight delta).
func (b *base) returnExtraction(out model.Cookie) (*extraction, error) {
	ex, ok := b.extracted[out]
	if !ok {
		return nil, ErrUnknownCookie
	}
	delete(b.extracted, out)
	for i, ic := range ex.inputCookies {
		if i < len(ex.stripes) {
			b.pending[ic] = &entry{stripe: ex.stripes[i]}
		}
	}
	return ex, nil
}

// lost is like returnExtraction but refuses a second call for the same
// cookie (§3.1 "double-lost is a bug").
func (b *base) lost(out model.Cookie) (*extraction, error) {
	ex, ok := b.extracted[out]
	if !ok {
		return nil, ErrDoubleLost
	}
	if ex.released {
		return nil, ErrDoubleLost
	}
	ex.released = true
	return b.returnExtraction(out)
}
