package consensus_test

import (
	"context"
	"errors"
	"image"
	"math"
	"sync"
	"testing"

	"github.com/okian/facetally/internal/domain/consensus"
	"github.com/okian/facetally/internal/domain/embedding"
	"github.com/okian/facetally/internal/domain/model"
	"github.com/okian/facetally/internal/domain/registry"
	. "github.com/smartystreets/goconvey/convey"
)

// axes places each enrolled identity on its own basis vector; the last axis is
// shared "noise" used to dial in an exact similarity.
var axes = map[string]int{"Alice": 0, "Bob": 1, "Carol": 2}

const dim = 4

// step scripts what the collaborators report for one frame.
type step struct {
	noFace   bool
	detErr   error
	empty    bool
	embedErr error
	name     string
	sim      float64
}

// script implements both collaborators and records which frames were seen.
type script struct {
	mu    sync.Mutex
	steps []step
	seen  []int
}

func (s *script) DetectLargestFace(_ context.Context, f model.Frame) (image.Rectangle, bool, error) {
	s.mu.Lock()
	s.seen = append(s.seen, f.Index)
	s.mu.Unlock()
	st := s.steps[f.Index]
	switch {
	case st.detErr != nil:
		return image.Rectangle{}, false, st.detErr
	case st.noFace:
		return image.Rectangle{}, false, nil
	case st.empty:
		return image.Rect(10, 10, 10, 40), true, nil
	}
	return image.Rect(0, 0, 80, 80), true, nil
}

func (s *script) Embed(_ context.Context, f model.Frame, _ image.Rectangle) (embedding.Vector, error) {
	st := s.steps[f.Index]
	if st.embedErr != nil {
		return nil, st.embedErr
	}
	v := make(embedding.Vector, dim)
	v[axes[st.name]] = float32(st.sim)
	v[dim-1] = float32(math.Sqrt(1 - st.sim*st.sim))
	return v, nil
}

func (s *script) frames() []model.Frame {
	out := make([]model.Frame, len(s.steps))
	for i := range s.steps {
		out[i] = model.Frame{Index: i, Data: []byte{byte(i)}}
	}
	return out
}

func enrolled() *registry.Registry {
	c := make(map[string]embedding.Vector)
	for name, axis := range axes {
		v := make(embedding.Vector, dim)
		v[axis] = 1
		c[name] = v
	}
	s, err := registry.NewSnapshot(c)
	if err != nil {
		panic(err)
	}
	return registry.New(registry.WithInitial(s))
}

func run(reg *registry.Registry, steps []step, opts ...consensus.Option) (model.Verdict, *script, error) {
	sc := &script{steps: steps}
	opts = append([]consensus.Option{consensus.WithSessionIDFunc(func() string { return "s-1" })}, opts...)
	e, err := consensus.NewEngine(sc, sc, reg, opts...)
	if err != nil {
		return model.Verdict{}, sc, err
	}
	v, err := e.Run(context.Background(), sc.frames())
	return v, sc, err
}

func TestEngineScenarios(t *testing.T) {
	Convey("Given a registry with Alice, Bob and Carol and the default policy", t, func() {
		reg := enrolled()

		Convey("When two of three frames match Alice above the per-frame threshold", func() {
			v, sc, err := run(reg, []step{
				{name: "Alice", sim: 0.55},
				{name: "Alice", sim: 0.70},
				{name: "Alice", sim: 0.75},
			})

			Convey("Then Alice is accepted by consensus after all three frames", func() {
				So(err, ShouldBeNil)
				So(v.Accepted, ShouldBeTrue)
				So(v.Name, ShouldEqual, "Alice")
				So(v.Reason, ShouldEqual, model.ReasonConsensus)
				So(v.FramesProcessed, ShouldEqual, 3)
				So(v.UnknownFrames, ShouldEqual, 1)
				So(v.MaxSimilarity, ShouldAlmostEqual, 0.75, 1e-6)
				So(v.AverageSimilarity, ShouldAlmostEqual, 0.725, 1e-6)
				So(v.SessionID, ShouldEqual, "s-1")
				So(sc.seen, ShouldResemble, []int{0, 1, 2})
			})
		})

		Convey("When the first frame matches Bob at 0.90", func() {
			v, sc, err := run(reg, []step{
				{name: "Bob", sim: 0.90},
				{name: "Alice", sim: 0.70},
				{name: "Alice", sim: 0.70},
			})

			Convey("Then Bob is accepted instantly and later frames are never evaluated", func() {
				So(err, ShouldBeNil)
				So(v.Accepted, ShouldBeTrue)
				So(v.Name, ShouldEqual, "Bob")
				So(v.Reason, ShouldEqual, model.ReasonInstantAccept)
				So(v.FramesProcessed, ShouldEqual, 1)
				So(v.AverageSimilarity, ShouldAlmostEqual, 0.90, 1e-6)
				So(sc.seen, ShouldResemble, []int{0})
			})
		})

		Convey("When the first two frames have no face", func() {
			v, sc, err := run(reg, []step{
				{noFace: true},
				{noFace: true},
				{name: "Alice", sim: 0.95},
			})

			Convey("Then the session stops after frame two as Unknown", func() {
				So(err, ShouldBeNil)
				So(v.Accepted, ShouldBeFalse)
				So(v.Label(), ShouldEqual, model.UnknownLabel)
				So(v.Reason, ShouldEqual, model.ReasonBlockedUnknowns)
				So(v.FramesProcessed, ShouldEqual, 2)
				So(v.UnknownFrames, ShouldEqual, 2)
				So(sc.seen, ShouldResemble, []int{0, 1})
			})
		})
	})
}

func TestEngineRules(t *testing.T) {
	Convey("Given the default policy", t, func() {
		reg := enrolled()

		Convey("When consensus and an instant frame point at different identities", func() {
			v, _, err := run(reg, []step{
				{name: "Alice", sim: 0.65},
				{name: "Alice", sim: 0.66},
				{name: "Bob", sim: 0.85},
			})

			Convey("Then consensus outranks the higher instant match", func() {
				So(err, ShouldBeNil)
				So(v.Name, ShouldEqual, "Alice")
				So(v.Reason, ShouldEqual, model.ReasonConsensus)
				So(v.MaxSimilarity, ShouldAlmostEqual, 0.85, 1e-6)
				So(v.FramesProcessed, ShouldEqual, 3)
			})
		})

		Convey("When two identities both reach consensus", func() {
			v, _, err := run(reg, []step{
				{name: "Carol", sim: 0.70},
				{name: "Bob", sim: 0.70},
				{name: "Carol", sim: 0.70},
				{name: "Bob", sim: 0.70},
			}, consensus.WithPolicy(consensus.Policy{PerFrameSim: 0.6, ConsensusFrames: 2, InstantSim: 0.9, MaxUnknownFrames: 3}))

			Convey("Then the first name in ascending order wins", func() {
				So(err, ShouldBeNil)
				So(v.Name, ShouldEqual, "Bob")
				So(v.Reason, ShouldEqual, model.ReasonConsensus)
			})
		})

		Convey("When a lone frame qualifies but stays below instant", func() {
			v, _, err := run(reg, []step{
				{name: "Alice", sim: 0.70},
			})

			Convey("Then the verdict is Unknown", func() {
				So(err, ShouldBeNil)
				So(v.Accepted, ShouldBeFalse)
				So(v.Reason, ShouldEqual, model.ReasonBlockedUnknowns)
				So(v.MaxSimilarity, ShouldAlmostEqual, 0.70, 1e-6)
				So(v.AverageSimilarity, ShouldEqual, 0)
			})
		})

		// 0.8125 and 0.625 are exact in float32.
		exact := consensus.Policy{PerFrameSim: 0.625, ConsensusFrames: 2, InstantSim: 0.8125, MaxUnknownFrames: 2}

		Convey("When an identity only reaches exactly the instant threshold", func() {
			v, _, err := run(reg, []step{
				{name: "Carol", sim: 0.8125},
			}, consensus.WithPolicy(exact))

			Convey("Then the boundary is inclusive", func() {
				So(err, ShouldBeNil)
				So(v.Name, ShouldEqual, "Carol")
				So(v.Reason, ShouldEqual, model.ReasonInstantAccept)
			})
		})

		Convey("When exactly the per-frame threshold is reached twice", func() {
			v, _, err := run(reg, []step{
				{name: "Alice", sim: 0.625},
				{name: "Alice", sim: 0.625},
			}, consensus.WithPolicy(exact))

			Convey("Then both frames count as evidence", func() {
				So(err, ShouldBeNil)
				So(v.Name, ShouldEqual, "Alice")
				So(v.Reason, ShouldEqual, model.ReasonConsensus)
				So(v.UnknownFrames, ShouldEqual, 0)
			})
		})
	})
}

func TestEngineUnknownFrames(t *testing.T) {
	Convey("Given frames that fail in different ways", t, func() {
		reg := enrolled()
		policy := consensus.Policy{PerFrameSim: 0.6, ConsensusFrames: 2, InstantSim: 0.82, MaxUnknownFrames: 10}

		Convey("When detection errors, degenerate boxes, embed errors and low matches occur", func() {
			v, _, err := run(reg, []step{
				{detErr: errors.New("decode failed")},
				{empty: true},
				{embedErr: errors.New("model down")},
				{name: "Bob", sim: 0.30},
				{name: "Alice", sim: 0.70},
				{name: "Alice", sim: 0.71},
			}, consensus.WithPolicy(policy))

			Convey("Then each defect is one unknown frame and the session still decides", func() {
				So(err, ShouldBeNil)
				So(v.UnknownFrames, ShouldEqual, 4)
				So(v.FramesProcessed, ShouldEqual, 6)
				So(v.Name, ShouldEqual, "Alice")
				So(v.Reason, ShouldEqual, model.ReasonConsensus)
			})
		})

		Convey("When the registry is empty", func() {
			v, _, err := run(registry.New(), []step{
				{name: "Alice", sim: 0.99},
				{name: "Alice", sim: 0.99},
			})

			Convey("Then every frame is unknown and nothing is accepted", func() {
				So(err, ShouldBeNil)
				So(v.Accepted, ShouldBeFalse)
				So(v.UnknownFrames, ShouldEqual, 2)
				So(v.MaxSimilarity, ShouldEqual, 0)
			})
		})

		Convey("When frames exceed the session cap", func() {
			v, sc, err := run(reg, []step{
				{name: "Alice", sim: 0.30},
				{name: "Alice", sim: 0.70},
				{name: "Alice", sim: 0.70},
			}, consensus.WithPolicy(policy), consensus.WithMaxFrames(2))

			Convey("Then extra frames are ignored", func() {
				So(err, ShouldBeNil)
				So(sc.seen, ShouldResemble, []int{0, 1})
				So(v.Accepted, ShouldBeFalse)
			})
		})
	})
}

func TestEngineErrors(t *testing.T) {
	Convey("Given an engine", t, func() {
		reg := enrolled()
		sc := &script{}
		e, err := consensus.NewEngine(sc, sc, reg)
		So(err, ShouldBeNil)

		Convey("When no frames are supplied", func() {
			_, err := e.Run(context.Background(), nil)

			Convey("Then it is a caller error", func() {
				So(errors.Is(err, consensus.ErrNoFrames), ShouldBeTrue)
			})
		})

		Convey("When the context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			sc.steps = []step{{name: "Alice", sim: 0.9}}
			_, err := e.Run(ctx, sc.frames())

			Convey("Then the session aborts", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(sc.seen, ShouldBeEmpty)
			})
		})
	})

	Convey("Given invalid construction", t, func() {
		sc := &script{}
		_, errDet := consensus.NewEngine(nil, sc, enrolled())
		_, errReg := consensus.NewEngine(sc, sc, nil)
		_, errPolicy := consensus.NewEngine(sc, sc, enrolled(),
			consensus.WithPolicy(consensus.Policy{PerFrameSim: 0.9, ConsensusFrames: 2, InstantSim: 0.8, MaxUnknownFrames: 2}))

		Convey("Then each is rejected", func() {
			So(errors.Is(errDet, consensus.ErrNoDetector), ShouldBeTrue)
			So(errors.Is(errReg, consensus.ErrNoRegistry), ShouldBeTrue)
			So(errors.Is(errPolicy, consensus.ErrInvalidPolicy), ShouldBeTrue)
		})
	})
}

func TestEngineConcurrentSessions(t *testing.T) {
	Convey("Given many sessions sharing one engine", t, func() {
		reg := enrolled()
		steps := []step{{name: "Alice", sim: 0.7}, {name: "Alice", sim: 0.7}}
		sc := &script{steps: steps}
		e, err := consensus.NewEngine(sc, sc, reg)
		So(err, ShouldBeNil)

		var wg sync.WaitGroup
		verdicts := make(chan model.Verdict, 16)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := e.Run(context.Background(), sc.frames())
				if err == nil {
					verdicts <- v
				}
			}()
		}
		wg.Wait()
		close(verdicts)

		Convey("Then sessions do not leak state into each other", func() {
			n := 0
			ids := map[string]bool{}
			for v := range verdicts {
				n++
				So(v.Name, ShouldEqual, "Alice")
				So(v.FramesProcessed, ShouldEqual, 2)
				ids[v.SessionID] = true
			}
			So(n, ShouldEqual, 16)
			So(len(ids), ShouldEqual, 16)
		})
	})
}
