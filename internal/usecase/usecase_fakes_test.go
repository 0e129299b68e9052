package usecase

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/casefunnel/lead-intake/pkg/logger"
)

func init() {
	logger.Log = zap.NewNop()
}

// fakeCompletion returns a canned output or error from Complete.
type fakeCompletion struct {
	output string
	err    error

	mu      sync.Mutex
	calls   int
	lastSys string
	lastUsr string
}

func (f *fakeCompletion) Complete(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastSys = system
	f.lastUsr = user
	return f.output, f.err
}

// fakeFetcher returns a canned transcript or error.
type fakeFetcher struct {
	transcript string
	err        error
	calls      int
}

func (f *fakeFetcher) FetchTranscript(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.transcript, f.err
}

// recordedEvent is one captured Publish call.
type recordedEvent struct {
	Event   string
	Payload interface{}
}

// fakePublisher records published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakePublisher) Publish(_ context.Context, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{Event: event, Payload: payload})
}

func (f *fakePublisher) published() []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedEvent, len(f.events))
	copy(out, f.events)
	return out
}

// fakeSubmitter records submitted notification tasks, optionally failing.
type fakeSubmitter struct {
	mu    sync.Mutex
	tasks []NotificationTask
	err   error
}

func (f *fakeSubmitter) SubmitTask(task NotificationTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

func (f *fakeSubmitter) submitted() []NotificationTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]NotificationTask, len(f.tasks))
	copy(out, f.tasks)
	return out
}

// sentMail is one captured Send call.
type sentMail struct {
	To      string
	Subject string
	Body    string
}

// fakeSender records emails, optionally failing per recipient.
type fakeSender struct {
	mu     sync.Mutex
	sent   []sentMail
	failTo map[string]error
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failTo[to]; ok {
		return err
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (f *fakeSender) delivered() []sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMail, len(f.sent))
	copy(out, f.sent)
	return out
}
