// Package memstore はrepositoryパッケージの各インターフェースをメモリ上で実装する。
// PostgreSQLのスキーマと同じ一意制約・参照制約を持ち、サービス層のテストに使う。
package memstore

import (
	"sort"
	"strings"
	"sync"

	"github.com/hitoshi/jobboard/internal/model"
)

// Store は全リポジトリで共有するメモリ上のデータ。
// 1つのミューテックスで全テーブルを保護し、各操作はトランザクション相当に原子的になる。
type Store struct {
	mu sync.Mutex

	seq int64

	accounts      map[string]*model.Account
	identities    map[string]*model.Identity
	sessions      map[string]*model.Session
	phones        map[string]*model.PhoneVerification
	emails        map[string]*model.EmailVerification
	jobs          map[string]*row[model.JobPosting]
	savedJobs     map[string]*row[model.SavedJob]
	applications  map[string]*row[model.Application]
	history       []*model.StageHistory
	stages        map[string]*row[model.Stage]
	notes         map[string]*row[model.Note]
	ratings       map[string]*row[model.Rating]
	tags          map[string]*row[model.Tag]
	tagAssigns    map[string]*row[model.TagAssignment]
	templates     map[string]*row[model.EmailTemplate]
	emailLogs     map[string]*row[model.EmailLog]
	notifications map[string]*row[model.Notification]
	messages      map[string]*row[model.Message]
	teams         map[string]*model.Team
	members       map[string]*row[model.TeamMember]
	invitations   map[string]*row[model.TeamInvitation]
	activity      []*model.ActivityLog
}

// row は挿入順を保持する。created_at が同じ行の並びを安定させるのに使う。
type row[T any] struct {
	seq int64
	v   *T
}

// New は空のStoreを生成する。
func New() *Store {
	return &Store{
		accounts:      make(map[string]*model.Account),
		identities:    make(map[string]*model.Identity),
		sessions:      make(map[string]*model.Session),
		phones:        make(map[string]*model.PhoneVerification),
		emails:        make(map[string]*model.EmailVerification),
		jobs:          make(map[string]*row[model.JobPosting]),
		savedJobs:     make(map[string]*row[model.SavedJob]),
		applications:  make(map[string]*row[model.Application]),
		stages:        make(map[string]*row[model.Stage]),
		notes:         make(map[string]*row[model.Note]),
		ratings:       make(map[string]*row[model.Rating]),
		tags:          make(map[string]*row[model.Tag]),
		tagAssigns:    make(map[string]*row[model.TagAssignment]),
		templates:     make(map[string]*row[model.EmailTemplate]),
		emailLogs:     make(map[string]*row[model.EmailLog]),
		notifications: make(map[string]*row[model.Notification]),
		messages:      make(map[string]*row[model.Message]),
		teams:         make(map[string]*model.Team),
		members:       make(map[string]*row[model.TeamMember]),
		invitations:   make(map[string]*row[model.TeamInvitation]),
	}
}

func (s *Store) next() int64 {
	s.seq++
	return s.seq
}

func wrap[T any](s *Store, v *T) *row[T] {
	return &row[T]{seq: s.next(), v: v}
}

// collect はmapの値のうちkeepを満たすものをlessで整列してコピーを返す。
// lessで決まらない場合は挿入順。
func collect[T any](m map[string]*row[T], keep func(*T) bool, less func(a, b *T) int) []*T {
	rows := make([]*row[T], 0, len(m))
	for _, r := range m {
		if keep(r.v) {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if less != nil {
			if c := less(rows[i].v, rows[j].v); c != 0 {
				return c < 0
			}
		}
		return rows[i].seq < rows[j].seq
	})
	out := make([]*T, len(rows))
	for i, r := range rows {
		c := *r.v
		out[i] = &c
	}
	return out
}

func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func pairKey(a, b string) string {
	return a + "\x00" + b
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Accounts はAccountRepositoryを返す。
func (s *Store) Accounts() *AccountRepo { return &AccountRepo{s} }

// Identities はIdentityRepositoryを返す。
func (s *Store) Identities() *IdentityRepo { return &IdentityRepo{s} }

// Sessions はSessionRepositoryを返す。
func (s *Store) Sessions() *SessionRepo { return &SessionRepo{s} }

// Verifications はVerificationRepositoryを返す。
func (s *Store) Verifications() *VerificationRepo { return &VerificationRepo{s} }

// Jobs はJobRepositoryを返す。
func (s *Store) Jobs() *JobRepo { return &JobRepo{s} }

// SavedJobs はSavedJobRepositoryを返す。
func (s *Store) SavedJobs() *SavedJobRepo { return &SavedJobRepo{s} }

// Applications はApplicationRepositoryを返す。
func (s *Store) Applications() *ApplicationRepo { return &ApplicationRepo{s} }

// Stages はStageRepositoryを返す。
func (s *Store) Stages() *StageRepo { return &StageRepo{s} }

// Notes はNoteRepositoryを返す。
func (s *Store) Notes() *NoteRepo { return &NoteRepo{s} }

// Ratings はRatingRepositoryを返す。
func (s *Store) Ratings() *RatingRepo { return &RatingRepo{s} }

// Tags はTagRepositoryを返す。
func (s *Store) Tags() *TagRepo { return &TagRepo{s} }

// Templates はTemplateRepositoryを返す。
func (s *Store) Templates() *TemplateRepo { return &TemplateRepo{s} }

// EmailLogs はEmailLogRepositoryを返す。
func (s *Store) EmailLogs() *EmailLogRepo { return &EmailLogRepo{s} }

// Notifications はNotificationRepositoryを返す。
func (s *Store) Notifications() *NotificationRepo { return &NotificationRepo{s} }

// Messages はMessageRepositoryを返す。
func (s *Store) Messages() *MessageRepo { return &MessageRepo{s} }

// Teams はTeamRepositoryを返す。
func (s *Store) Teams() *TeamRepo { return &TeamRepo{s} }

// Invitations はInvitationRepositoryを返す。
func (s *Store) Invitations() *InvitationRepo { return &InvitationRepo{s} }

// Activity はActivityRepositoryを返す。
func (s *Store) Activity() *ActivityRepo { return &ActivityRepo{s} }

// EmailLogSnapshot はテスト用に送信ログを作成順で返す。
func (s *Store) EmailLogSnapshot() []*model.EmailLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return collect(s.emailLogs, func(*model.EmailLog) bool { return true }, nil)
}
