package activity

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/repository/memstore"
)

func TestRecorder_Record(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	if err := store.Teams().Create(ctx, &model.Team{ID: "team-1", OwnerID: "emp-1", Name: "Acme", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("failed to create team: %v", err)
	}
	r := NewRecorder(store.Teams(), store.Activity())

	r.Record(ctx, Entry{
		EmployerID:    "emp-1",
		ActorID:       "emp-1",
		Action:        model.ActionStageChanged,
		Description:   "Moved to Interview",
		ApplicationID: "app-1",
	})

	logs, err := store.Activity().ListByTeam(ctx, "team-1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(logs))
	}
	got := logs[0]
	if got.Action != model.ActionStageChanged || *got.ApplicationID != "app-1" || got.JobID != nil {
		t.Errorf("unexpected entry: %+v", got)
	}
}

// TestRecorder_NoTeam はチームを持たない雇用者では何も記録しないことを検証する。
func TestRecorder_NoTeam(t *testing.T) {
	store := memstore.New()
	r := NewRecorder(store.Teams(), store.Activity())

	r.Record(context.Background(), Entry{EmployerID: "emp-1", Action: model.ActionJobPosted})

	var nilRecorder *Recorder
	nilRecorder.Record(context.Background(), Entry{EmployerID: "emp-1"})
}
