package progress

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/richardlevinson/dshield-planner/worker"
)

func TestConsumeUpdatesSnapshot(t *testing.T) {
	Convey("Given a server consuming a sample channel", t, func() {
		samples := make(chan worker.ProgressSample, 4)
		s := NewServer("127.0.0.1:0", samples)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go s.consume(ctx)

		samples <- worker.ProgressSample{WorkerID: 0, Rollout: 1, BestScore: 1.5}
		samples <- worker.ProgressSample{WorkerID: 1, Rollout: 2, BestScore: 2.5}

		Convey("The snapshot eventually reflects both workers' latest sample", func() {
			deadline := time.Now().Add(2 * time.Second)
			for time.Now().Before(deadline) {
				if len(s.snapshot()) == 2 {
					break
				}
				time.Sleep(10 * time.Millisecond)
			}
			snap := s.snapshot()
			So(snap, ShouldHaveLength, 2)
		})
	})
}
