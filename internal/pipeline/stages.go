package pipeline

import (
	"strings"

	"github.com/hitoshi/jobboard/internal/model"
)

// 既定ステージ名
const (
	StageApplied   = "Applied"
	StageScreening = "Screening"
	StageInterview = "Interview"
	StageOffer     = "Offer"
	StageHired     = "Hired"
	StageRejected  = "Rejected"
)

type stageDef struct {
	name  string
	color string
}

var defaultStages = []stageDef{
	{StageApplied, "#6c757d"},
	{StageScreening, "#17a2b8"},
	{StageInterview, "#ffc107"},
	{StageOffer, "#28a745"},
	{StageHired, "#007bff"},
	{StageRejected, "#dc3545"},
}

// DefaultStageColor は色を指定せずに作成したステージの色。
const DefaultStageColor = "#6c757d"

// DefaultStages は雇用者に初期投入する6つのステージを表示順で返す。IDは呼び出し側で採番する。
func DefaultStages(employerID string) []*model.Stage {
	out := make([]*model.Stage, len(defaultStages))
	for i, d := range defaultStages {
		out[i] = &model.Stage{
			EmployerID: employerID,
			Name:       d.name,
			Color:      d.color,
			Order:      i,
		}
	}
	return out
}

// LegacyStatusFor はステージ名から応募の粗い状態を導出する。
// 大文字小文字と前後の空白は無視する。対応のない独自ステージはfalseを返し、状態を変えない。
func LegacyStatusFor(stageName string) (model.LegacyStatus, bool) {
	switch normalize(stageName) {
	case "applied":
		return model.StatusPending, true
	case "screening", "interview":
		return model.StatusReviewed, true
	case "offer", "hired":
		return model.StatusAccepted, true
	case "rejected":
		return model.StatusRejected, true
	default:
		return "", false
	}
}

// NotificationTypeFor はステージ名から応募者への通知種別を選ぶ。
func NotificationTypeFor(stageName string) model.NotificationType {
	switch normalize(stageName) {
	case "interview":
		return model.NotifyInterviewScheduled
	case "offer":
		return model.NotifyOfferReceived
	case "rejected":
		return model.NotifyApplicationRejected
	default:
		return model.NotifyStageChange
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
