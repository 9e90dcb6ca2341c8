package voice

import (
	"context"
	stderrors "errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Denni-Wild/Subs-bot-sub000/models"
)

func newTestQueue(workers, size int) *Queue {
	q := NewQueue(workers, size)
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	q.logger = quiet
	return q
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
		return Result{}
	}
}

func TestQueueProcessesJobs(t *testing.T) {
	q := newTestQueue(2, 4)
	q.Start(func(_ context.Context, path string) (*models.VoiceTranscript, error) {
		return &models.VoiceTranscript{Text: "text of " + path}, nil
	})
	defer q.Close()

	ch, err := q.Submit(context.Background(), "job-1", "a.ogg")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	res := waitResult(t, ch)
	if res.Err != nil || res.Transcript.Text != "text of a.ogg" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestQueueFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	q := newTestQueue(1, 1)
	q.Start(func(ctx context.Context, _ string) (*models.VoiceTranscript, error) {
		started <- struct{}{}
		<-release
		return &models.VoiceTranscript{}, nil
	})
	defer q.Close()

	first, err := q.Submit(context.Background(), "running", "a")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	<-started

	second, err := q.Submit(context.Background(), "waiting", "b")
	if err != nil {
		t.Fatalf("expected the second job to wait in the queue, got %v", err)
	}
	if _, err := q.Submit(context.Background(), "rejected", "c"); !stderrors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	close(release)
	waitResult(t, first)
	waitResult(t, second)
}

func TestQueueCancel(t *testing.T) {
	started := make(chan struct{})
	q := newTestQueue(1, 1)
	q.Start(func(ctx context.Context, _ string) (*models.VoiceTranscript, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	defer q.Close()

	ch, err := q.Submit(context.Background(), "job", "a")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	<-started

	if !q.Cancel("job") {
		t.Fatal("expected Cancel to find the job")
	}
	if res := waitResult(t, ch); !stderrors.Is(res.Err, context.Canceled) {
		t.Errorf("expected cancellation, got %v", res.Err)
	}
	if q.Cancel("unknown") {
		t.Error("expected Cancel to report unknown jobs")
	}
}

func TestQueueClose(t *testing.T) {
	q := newTestQueue(1, 1)
	q.Start(func(context.Context, string) (*models.VoiceTranscript, error) { return nil, nil })
	q.Close()
	q.Close()

	if _, err := q.Submit(context.Background(), "late", "a"); !stderrors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
}

func TestCheckHungJobs(t *testing.T) {
	q := newTestQueue(1, 2)
	q.activeJobs["old"] = &job{id: "old", startTime: time.Now().Add(-time.Hour)}
	q.activeJobs["new"] = &job{id: "new", startTime: time.Now()}

	if hung := q.checkHungJobs(time.Now()); hung != 1 {
		t.Errorf("expected 1 hung job, got %d", hung)
	}
}
