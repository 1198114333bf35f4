package command

import (
	"context"
	"errors"
	"testing"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-transcript-intake/core"
	"github.com/goliatone/go-transcript-intake/renewal"
)

type stubProcessor struct {
	requestID string
	batch     core.DeliveryBatch
}

func (s *stubProcessor) Handle(_ context.Context, requestID string, batch core.DeliveryBatch) []core.NotificationResult {
	s.requestID = requestID
	s.batch = batch
	results := make([]core.NotificationResult, len(batch.Value))
	for i := range batch.Value {
		results[i] = core.SkippedResult(batch.Value[i].ResourceID(), core.ReasonNotTranscript)
	}
	return results
}

type stubRenewer struct {
	outcome renewal.Outcome
	err     error
	calls   int
}

func (s *stubRenewer) Tick(context.Context) (renewal.Outcome, error) {
	s.calls++
	return s.outcome, s.err
}

func TestProcessDeliveryCommand_StoresResults(t *testing.T) {
	processor := &stubProcessor{}
	cmd := NewProcessDeliveryCommand(processor)
	collector := gocmd.NewResult[core.DeliveryResponse]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, ProcessDeliveryMessage{
		RequestID: "req-1",
		Batch: core.DeliveryBatch{Value: []core.Notification{
			{ResourceData: core.ResourceData{ODataType: "#Microsoft.Graph.chatMessage", ID: "a"}},
			{ResourceData: core.ResourceData{ODataType: "#Microsoft.Graph.chatMessage", ID: "b"}},
		}},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if processor.requestID != "req-1" {
		t.Fatalf("expected request id to be forwarded")
	}
	response, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if len(response.Results) != 2 || response.Results[1].ResourceID != "b" {
		t.Fatalf("unexpected results %+v", response.Results)
	}
}

func TestProcessDeliveryCommand_ValidationIsRich(t *testing.T) {
	err := NewProcessDeliveryCommand(&stubProcessor{}).Execute(context.Background(), ProcessDeliveryMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation || rich.TextCode != core.ErrorBadInput {
		t.Fatalf("unexpected envelope %q %q", rich.Category, rich.TextCode)
	}
}

func TestRenewSubscriptionCommand(t *testing.T) {
	t.Run("stores outcome", func(t *testing.T) {
		renewer := &stubRenewer{outcome: renewal.Outcome{RequestID: "req-9", Attempts: 1}}
		collector := gocmd.NewResult[renewal.Outcome]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)

		if err := NewRenewSubscriptionCommand(renewer).Execute(ctx, RenewSubscriptionMessage{Trigger: TriggerOnce}); err != nil {
			t.Fatalf("execute: %v", err)
		}
		outcome, ok := collector.Load()
		if !ok || outcome.RequestID != "req-9" {
			t.Fatalf("expected outcome stored, got %+v", outcome)
		}
	})

	t.Run("returns tick error", func(t *testing.T) {
		renewer := &stubRenewer{err: errors.New("provider down")}
		err := NewRenewSubscriptionCommand(renewer).Execute(context.Background(), RenewSubscriptionMessage{Trigger: TriggerSchedule})
		if err == nil || renewer.calls != 1 {
			t.Fatalf("expected tick error to surface")
		}
	})

	t.Run("rejects unknown trigger", func(t *testing.T) {
		renewer := &stubRenewer{}
		if err := NewRenewSubscriptionCommand(renewer).Execute(context.Background(), RenewSubscriptionMessage{Trigger: "cron"}); err == nil {
			t.Fatalf("expected validation error")
		}
		if renewer.calls != 0 {
			t.Fatalf("expected no tick on invalid message")
		}
	})
}

func TestCommands_NilDependencyIsRich(t *testing.T) {
	var cmd *RenewSubscriptionCommand
	err := cmd.Execute(context.Background(), RenewSubscriptionMessage{Trigger: TriggerManual})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal go-errors envelope, got %v", err)
	}
}
