package review

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/repository"
)

const maxCommentLength = 2000

// RatingInput は評価の入力。補助評価はnilなら未評価。
type RatingInput struct {
	Overall       int
	Technical     *int
	Communication *int
	CultureFit    *int
	Comment       string
}

// RatingSummary は応募の評価一覧と総合評価の平均。
type RatingSummary struct {
	Ratings []*model.Rating
	Average *float64 // 評価がなければnil
}

// Rate は評価者ごとに1件の評価を作成または更新する。
// 同じ評価者の同時送信でも1件に収まるよう、ストレージの原子的なupsertを使う。
func (s *Service) Rate(ctx context.Context, actorID, applicationID string, in RatingInput) (*model.Rating, error) {
	t, err := s.authorize(ctx, actorID, applicationID, model.CapReview)
	if err != nil {
		return nil, err
	}
	if err := validateRating(in); err != nil {
		return nil, err
	}

	now := s.now()
	saved, err := s.ratings.Upsert(ctx, &model.Rating{
		ID:            uuid.New().String(),
		ApplicationID: t.app.ID,
		RaterID:       actorID,
		Overall:       in.Overall,
		Technical:     in.Technical,
		Communication: in.Communication,
		CultureFit:    in.CultureFit,
		Comment:       s.sanitizer.Text(in.Comment),
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewNotFoundError("応募")
		}
		return nil, fmt.Errorf("評価の保存に失敗しました: %w", err)
	}
	s.record(ctx, t, actorID, model.ActionRatingAdded, fmt.Sprintf("Rated %d/5", saved.Overall))
	return saved, nil
}

// Ratings は応募の評価と平均を返す。
func (s *Service) Ratings(ctx context.Context, actorID, applicationID string) (*RatingSummary, error) {
	t, err := s.authorize(ctx, actorID, applicationID, model.CapView)
	if err != nil {
		return nil, err
	}
	ratings, err := s.ratings.ListByApplication(ctx, t.app.ID)
	if err != nil {
		return nil, fmt.Errorf("評価の取得に失敗しました: %w", err)
	}
	summary := &RatingSummary{Ratings: ratings}
	if avg, ok := model.AverageRating(ratings); ok {
		summary.Average = &avg
	}
	return summary, nil
}

func validateRating(in RatingInput) error {
	if !inScale(in.Overall) {
		return model.NewInvalidInputError("総合評価は1〜5で指定してください")
	}
	subScores := []struct {
		name  string
		value *int
	}{
		{"技術", in.Technical},
		{"コミュニケーション", in.Communication},
		{"カルチャーフィット", in.CultureFit},
	}
	for _, sc := range subScores {
		if sc.value != nil && !inScale(*sc.value) {
			return model.NewInvalidInputError(sc.name + "の評価は1〜5で指定してください")
		}
	}
	if utf8.RuneCountInString(in.Comment) > maxCommentLength {
		return model.NewInvalidInputError(fmt.Sprintf("コメントは%d文字以内で入力してください", maxCommentLength))
	}
	return nil
}

func inScale(v int) bool { return v >= 1 && v <= 5 }
