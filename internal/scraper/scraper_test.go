package scraper_test

import (
	"context"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"opctl/internal/model"
	"opctl/internal/scraper"
)

type fakeMaster struct {
	mu       sync.Mutex
	located  map[model.ChunkID][]model.Replica
	requests int
}

func (m *fakeMaster) LocateChunks(ctx context.Context, ids []model.ChunkID) (map[model.ChunkID][]model.Replica, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
	out := make(map[model.ChunkID][]model.Replica)
	for _, id := range ids {
		if r, ok := m.located[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func oneReplica() []model.Replica { return []model.Replica{{Cell: 1, Nodes: []model.NodeID{"n1"}}} }

func TestScraperClassifiesReplies(t *testing.T) {
	Convey("Given an input scraper tracking three chunks", t, func() {
		master := &fakeMaster{located: map[model.ChunkID][]model.Replica{
			"available":   oneReplica(),
			"unavailable": nil,
		}}

		var available, unavailable, missing []model.ChunkID
		var mu sync.Mutex
		cb := scraper.Callbacks{
			OnAvailable: func(id model.ChunkID, _ []model.Replica) {
				mu.Lock()
				defer mu.Unlock()
				available = append(available, id)
			},
			OnUnavailable: func(id model.ChunkID) {
				mu.Lock()
				defer mu.Unlock()
				unavailable = append(unavailable, id)
			},
			OnMissing: func(id model.ChunkID) {
				mu.Lock()
				defer mu.Unlock()
				missing = append(missing, id)
			},
		}
		s := scraper.New(scraper.KindInput, master, 10, func(model.ErasureCodec) int { return 1 }, func(model.ChunkID) model.ErasureCodec { return model.ErasureNone }, cb)

		s.Add("available")
		s.Add("unavailable")
		s.Add("gone")

		err := s.Poll(context.Background())

		Convey("available chunks are removed and reported, missing ones call OnMissing", func() {
			So(err, ShouldBeNil)
			So(available, ShouldResemble, []model.ChunkID{"available"})
			So(unavailable, ShouldResemble, []model.ChunkID{"unavailable"})
			So(missing, ShouldResemble, []model.ChunkID{"gone"})
		})
	})

	Convey("Given an intermediate scraper whose chunk goes missing", t, func() {
		master := &fakeMaster{located: map[model.ChunkID][]model.Replica{}}
		s := scraper.New(scraper.KindIntermediate, master, 10, nil, nil, scraper.Callbacks{})
		s.Add("gone")

		err := s.Poll(context.Background())

		Convey("the missing chunk is dropped silently and untracking stops the scraper", func() {
			So(err, ShouldBeNil)
			So(s.Running(), ShouldBeFalse)
		})
	})
}

func TestScraperStartsAndStops(t *testing.T) {
	Convey("Given a fresh scraper", t, func() {
		s := scraper.New(scraper.KindInput, &fakeMaster{}, 10, nil, nil, scraper.Callbacks{})
		So(s.Running(), ShouldBeFalse)

		s.Add("c1")
		So(s.Running(), ShouldBeTrue)
		So(s.StartedCount(), ShouldEqual, 1)

		s.Remove("c1")
		So(s.Running(), ShouldBeFalse)
	})
}
