package lifecyclecmd_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	command "github.com/goliatone/go-command"
	"github.com/goliatone/go-command/dispatcher"
	goerrors "github.com/goliatone/go-errors"
	lifecyclecmd "github.com/goliatone/go-lifecycle/internal/commands/lifecycle"
	"github.com/goliatone/go-lifecycle/internal/domain"
	"github.com/goliatone/go-lifecycle/internal/jobs"
	"github.com/goliatone/go-lifecycle/internal/workflow"
	"github.com/google/uuid"
)

type call struct {
	op     string
	handle uuid.UUID
	when   *time.Time
	source string
}

type fakeLifecycle struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeLifecycle) record(c call) (workflow.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if f.err != nil {
		return workflow.Result{}, f.err
	}
	return workflow.Result{State: domain.WorkflowStateRequestAccepted, InvocationID: "inv-" + c.op}, nil
}

func (f *fakeLifecycle) RequestPublication(_ context.Context, in workflow.RequestInput) (workflow.Result, error) {
	return f.record(call{op: "publish", handle: in.HandleID, when: in.When})
}

func (f *fakeLifecycle) RequestDepublication(_ context.Context, in workflow.RequestInput) (workflow.Result, error) {
	return f.record(call{op: "depublish", handle: in.HandleID, when: in.When})
}

func (f *fakeLifecycle) RequestPublicationWindow(_ context.Context, in workflow.WindowInput) (workflow.Result, error) {
	return f.record(call{op: "window", handle: in.HandleID, when: &in.DepublishAt})
}

func (f *fakeLifecycle) CancelRequest(_ context.Context, id uuid.UUID) (workflow.Result, error) {
	return f.record(call{op: "cancel", handle: id})
}

func (f *fakeLifecycle) Archive(_ context.Context, id uuid.UUID) (workflow.Result, error) {
	return f.record(call{op: "archive", handle: id})
}

func (f *fakeLifecycle) Retry(_ context.Context, id uuid.UUID) (workflow.Result, error) {
	return f.record(call{op: "retry", handle: id})
}

func (f *fakeLifecycle) Restore(_ context.Context, id uuid.UUID, source string) (workflow.Result, error) {
	return f.record(call{op: "restore", handle: id, source: source})
}

type fakePass struct {
	runs int
	err  error
}

func (p *fakePass) Process(context.Context) (jobs.Summary, error) {
	p.runs++
	return jobs.Summary{Due: 1, Executed: 1}, p.err
}

type registry struct {
	handlers []any
}

func (r *registry) RegisterCommand(handler any) error {
	r.handlers = append(r.handlers, handler)
	return nil
}

type outcomes struct {
	mu   sync.Mutex
	seen map[string]int
}

func (o *outcomes) CommandOutcome(cmd, status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.seen == nil {
		o.seen = map[string]int{}
	}
	o.seen[cmd+":"+status]++
}

func TestRequestPublicationHandlerFillsResult(t *testing.T) {
	lc := &fakeLifecycle{}
	handler := lifecyclecmd.NewRequestPublicationHandler(lc, nil)
	handleID := uuid.New()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var result workflow.Result
	msg := lifecyclecmd.RequestPublicationCommand{HandleID: handleID, At: &at}
	msg.Result = &result
	if err := handler.Execute(context.Background(), msg); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(lc.calls) != 1 || lc.calls[0].handle != handleID || !lc.calls[0].when.Equal(at) {
		t.Fatalf("unexpected calls %+v", lc.calls)
	}
	if result.InvocationID != "inv-publish" || result.State != domain.WorkflowStateRequestAccepted {
		t.Fatalf("expected result to be filled, got %+v", result)
	}
}

func TestHandlersRejectMissingHandleID(t *testing.T) {
	lc := &fakeLifecycle{}
	cases := map[string]func() error{
		"publish": func() error {
			return lifecyclecmd.NewRequestPublicationHandler(lc, nil).Execute(context.Background(), lifecyclecmd.RequestPublicationCommand{})
		},
		"depublish": func() error {
			return lifecyclecmd.NewRequestDepublicationHandler(lc, nil).Execute(context.Background(), lifecyclecmd.RequestDepublicationCommand{})
		},
		"cancel": func() error {
			return lifecyclecmd.NewCancelRequestHandler(lc, nil).Execute(context.Background(), lifecyclecmd.CancelRequestCommand{})
		},
		"archive": func() error {
			return lifecyclecmd.NewArchiveHandler(lc, nil).Execute(context.Background(), lifecyclecmd.ArchiveCommand{})
		},
		"retry": func() error {
			return lifecyclecmd.NewRetryHandler(lc, nil).Execute(context.Background(), lifecyclecmd.RetryCommand{})
		},
		"restore": func() error {
			return lifecyclecmd.NewRestoreHandler(lc, nil).Execute(context.Background(), lifecyclecmd.RestoreCommand{HandleID: uuid.New()})
		},
	}
	for name, run := range cases {
		err := run()
		if !goerrors.IsCategory(err, goerrors.CategoryValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
	if len(lc.calls) != 0 {
		t.Fatalf("expected no interpreter calls, got %+v", lc.calls)
	}
}

func TestRequestWindowValidatesOrdering(t *testing.T) {
	publishAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		msg  lifecyclecmd.RequestWindowCommand
		ok   bool
	}{
		{"missing depublish", lifecyclecmd.RequestWindowCommand{HandleID: uuid.New(), PublishAt: &publishAt}, false},
		{"inverted", lifecyclecmd.RequestWindowCommand{HandleID: uuid.New(), PublishAt: &publishAt, DepublishAt: publishAt.Add(-time.Hour)}, false},
		{"equal", lifecyclecmd.RequestWindowCommand{HandleID: uuid.New(), PublishAt: &publishAt, DepublishAt: publishAt}, false},
		{"ordered", lifecyclecmd.RequestWindowCommand{HandleID: uuid.New(), PublishAt: &publishAt, DepublishAt: publishAt.Add(time.Hour)}, true},
		{"immediate publish", lifecyclecmd.RequestWindowCommand{HandleID: uuid.New(), DepublishAt: publishAt}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid message, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestHandlerMapsConflictToValidationCategory(t *testing.T) {
	lc := &fakeLifecycle{err: &domain.ConflictError{HandleID: "h", Pending: domain.RequestPublish, Attempted: domain.RequestDepublish}}
	handler := lifecyclecmd.NewRequestDepublicationHandler(lc, nil)

	err := handler.Execute(context.Background(), lifecyclecmd.RequestDepublicationCommand{HandleID: uuid.New()})
	if !goerrors.IsCategory(err, goerrors.CategoryValidation) {
		t.Fatalf("expected validation category for conflict, got %v", err)
	}

	lc.err = &domain.ActionFailure{Action: "depublish", HandleID: "h", Err: errors.New("store offline")}
	err = handler.Execute(context.Background(), lifecyclecmd.RequestDepublicationCommand{HandleID: uuid.New()})
	if !goerrors.IsCategory(err, goerrors.CategoryCommand) {
		t.Fatalf("expected command category for action failure, got %v", err)
	}
}

func TestRegisterLifecycleCommandsWiresRegistryAndCron(t *testing.T) {
	lc := &fakeLifecycle{}
	pass := &fakePass{}
	reg := &registry{}
	observer := &outcomes{}
	var cronExpressions []string
	var cronHandlers []func() error

	set, err := lifecyclecmd.RegisterLifecycleCommands(lc, pass, nil, lifecyclecmd.Options{
		Registry: reg,
		Cron: func(cfg command.HandlerConfig, handler any) error {
			cronExpressions = append(cronExpressions, cfg.Expression)
			if fn, ok := handler.(func() error); ok {
				cronHandlers = append(cronHandlers, fn)
			}
			return nil
		},
		DispatchCron: "@every 30s",
		Observer:     observer,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(reg.handlers) != 8 {
		t.Fatalf("expected 8 registered handlers, got %d", len(reg.handlers))
	}
	if len(cronExpressions) != 1 || cronExpressions[0] != "@every 30s" {
		t.Fatalf("expected process-due cron registration, got %v", cronExpressions)
	}
	if len(cronHandlers) != 1 {
		t.Fatalf("expected cron handler func, got %d", len(cronHandlers))
	}
	if err := cronHandlers[0](); err != nil {
		t.Fatalf("cron handler: %v", err)
	}
	if pass.runs != 1 {
		t.Fatalf("expected one dispatcher pass, got %d", pass.runs)
	}

	if err := set.Archive.Execute(context.Background(), lifecyclecmd.ArchiveCommand{HandleID: uuid.New()}); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if observer.seen["lifecycle.handle.archive:success"] != 1 {
		t.Fatalf("expected archive outcome to be observed, got %v", observer.seen)
	}
}

func TestRegisterWithoutPassOmitsProcessDue(t *testing.T) {
	set, err := lifecyclecmd.RegisterLifecycleCommands(&fakeLifecycle{}, nil, nil, lifecyclecmd.Options{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if set.ProcessDue != nil || len(set.All()) != 7 {
		t.Fatalf("expected process-due to be omitted, got %d handlers", len(set.All()))
	}
	if _, err := lifecyclecmd.RegisterLifecycleCommands(nil, nil, nil, lifecyclecmd.Options{}); err == nil {
		t.Fatalf("expected error without interpreter")
	}
}

func TestProcessDueHandlerWrapsPassErrors(t *testing.T) {
	pass := &fakePass{err: errors.New("database locked")}
	handler := lifecyclecmd.NewProcessDueHandler(pass, nil, lifecyclecmd.ProcessDueWithTimeout(time.Second))
	err := handler.Execute(context.Background(), lifecyclecmd.ProcessDueCommand{})
	if !goerrors.IsCategory(err, goerrors.CategoryCommand) {
		t.Fatalf("expected command category, got %v", err)
	}
	if handler.CronOptions().Expression != "@every 1m" {
		t.Fatalf("unexpected default cron expression %q", handler.CronOptions().Expression)
	}
}

func TestDispatcherRoutesRestoreCommand(t *testing.T) {
	lc := &fakeLifecycle{}
	handler := lifecyclecmd.NewRestoreHandler(lc, nil)

	sub := dispatcher.SubscribeCommand[lifecyclecmd.RestoreCommand](handler)
	t.Cleanup(sub.Unsubscribe)

	handleID := uuid.New()
	if err := dispatcher.Dispatch(context.Background(), lifecyclecmd.RestoreCommand{HandleID: handleID, Source: " /docs/a/v1 "}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(lc.calls) != 1 || lc.calls[0].op != "restore" || lc.calls[0].source != "/docs/a/v1" {
		t.Fatalf("unexpected calls %+v", lc.calls)
	}
}
