package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/permission"
)

// History は応募のステージ履歴を新しい順に返す。
func (e *Engine) History(ctx context.Context, actorID, applicationID string) ([]*model.StageHistory, error) {
	app, _, err := e.applicationForActor(ctx, actorID, applicationID, model.CapView)
	if err != nil {
		return nil, err
	}
	entries, err := e.applications.ListHistory(ctx, app.ID)
	if err != nil {
		return nil, fmt.Errorf("ステージ履歴の取得に失敗しました: %w", err)
	}
	return entries, nil
}

// StageDuration は1つのステージに滞在した期間。
type StageDuration struct {
	StageName string
	EnteredAt time.Time
	LeftAt    *time.Time // 現在滞在中ならnil
	Duration  time.Duration
}

// StageDurations は履歴からステージごとの滞在期間を計算する。
// 順序はChangedAtではなくSeqで決める。最後のステージはnowまでの期間とし、負の期間は0にする。
func StageDurations(entries []*model.StageHistory, now time.Time) []StageDuration {
	sorted := make([]*model.StageHistory, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	out := make([]StageDuration, 0, len(sorted))
	for i, h := range sorted {
		d := StageDuration{StageName: h.StageName, EnteredAt: h.ChangedAt}
		end := now
		if i+1 < len(sorted) {
			left := sorted[i+1].ChangedAt
			d.LeftAt = &left
			end = left
		}
		d.Duration = end.Sub(h.ChangedAt)
		if d.Duration < 0 {
			d.Duration = 0
		}
		out = append(out, d)
	}
	return out
}

// Column はボードの1列。
type Column struct {
	Stage        *model.Stage
	Applications []*model.Application
}

// Board は求人の応募をステージごとに並べたもの。
type Board struct {
	Job      *model.JobPosting
	Columns  []Column
	Unstaged []*model.Application // ステージ未割り当ての応募
}

// Board は求人の応募をステージ列に振り分けて返す。
func (e *Engine) Board(ctx context.Context, actorID, jobID string) (*Board, error) {
	job, err := e.jobForActor(ctx, actorID, jobID)
	if err != nil {
		return nil, err
	}
	stages, err := e.EnsureDefaultStages(ctx, job.OwnerID)
	if err != nil {
		return nil, err
	}
	apps, err := e.applications.ListByJob(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("応募の取得に失敗しました: %w", err)
	}

	board := &Board{Job: job, Columns: make([]Column, len(stages))}
	index := make(map[string]int, len(stages))
	for i, st := range stages {
		board.Columns[i] = Column{Stage: st, Applications: []*model.Application{}}
		index[st.ID] = i
	}
	for _, app := range apps {
		if app.StageID != nil {
			if i, ok := index[*app.StageID]; ok {
				board.Columns[i].Applications = append(board.Columns[i].Applications, app)
				continue
			}
		}
		board.Unstaged = append(board.Unstaged, app)
	}
	return board, nil
}

// StageCount はステージごとの応募件数。
type StageCount struct {
	StageID   string
	StageName string
	Count     int
}

// Analytics は求人単位の集計。
type Analytics struct {
	JobID              string
	TotalApplications  int
	ByStage            []StageCount
	ByStatus           map[model.LegacyStatus]int
	AverageRating      *float64
	AverageTimeInStage map[string]time.Duration // ステージ名ごとの平均滞在期間
}

// Analytics は求人の応募をステージ・状態・評価・滞在期間で集計する。
func (e *Engine) Analytics(ctx context.Context, actorID, jobID string) (*Analytics, error) {
	job, err := e.jobForActor(ctx, actorID, jobID)
	if err != nil {
		return nil, err
	}
	board, err := e.Board(ctx, actorID, job.ID)
	if err != nil {
		return nil, err
	}

	a := &Analytics{
		JobID:              job.ID,
		ByStatus:           map[model.LegacyStatus]int{},
		AverageTimeInStage: map[string]time.Duration{},
	}
	var all []*model.Application
	for _, col := range board.Columns {
		a.ByStage = append(a.ByStage, StageCount{StageID: col.Stage.ID, StageName: col.Stage.Name, Count: len(col.Applications)})
		all = append(all, col.Applications...)
	}
	all = append(all, board.Unstaged...)
	a.TotalApplications = len(all)

	var ratings []*model.Rating
	for _, app := range all {
		a.ByStatus[app.Status]++
		rs, err := e.ratings.ListByApplication(ctx, app.ID)
		if err != nil {
			return nil, fmt.Errorf("評価の取得に失敗しました: %w", err)
		}
		ratings = append(ratings, rs...)
	}
	if avg, ok := model.AverageRating(ratings); ok {
		a.AverageRating = &avg
	}

	history, err := e.applications.ListHistoryByJob(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("ステージ履歴の取得に失敗しました: %w", err)
	}
	byApp := map[string][]*model.StageHistory{}
	for _, h := range history {
		byApp[h.ApplicationID] = append(byApp[h.ApplicationID], h)
	}
	now := e.now()
	totals := map[string]time.Duration{}
	counts := map[string]int{}
	for _, entries := range byApp {
		for _, d := range StageDurations(entries, now) {
			totals[d.StageName] += d.Duration
			counts[d.StageName]++
		}
	}
	for name, total := range totals {
		a.AverageTimeInStage[name] = total / time.Duration(counts[name])
	}
	return a, nil
}

func (e *Engine) jobForActor(ctx context.Context, actorID, jobID string) (*model.JobPosting, error) {
	job, err := e.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("求人の取得に失敗しました: %w", err)
	}
	if job == nil {
		return nil, model.NewNotFoundError("求人")
	}
	set, err := e.resolver.ForJob(ctx, actorID, job)
	if err != nil {
		return nil, err
	}
	if err := permission.Authorize(set, model.CapView, "求人"); err != nil {
		return nil, err
	}
	return job, nil
}
