package handler

import (
	"time"

	"github.com/hitoshi/jobboard/internal/job"
	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/pipeline"
	"github.com/hitoshi/jobboard/internal/review"
)

// --- レスポンス型 ---

type profileResponse struct {
	Headline    string `json:"headline,omitempty"`
	Skills      string `json:"skills,omitempty"`
	Location    string `json:"location,omitempty"`
	ResumeRef   string `json:"resume_ref,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	Description string `json:"description,omitempty"`
	AgencyName  string `json:"agency_name,omitempty"`
	Website     string `json:"website,omitempty"`
}

type accountResponse struct {
	ID        string          `json:"id"`
	Email     string          `json:"email"`
	Name      string          `json:"name"`
	Role      string          `json:"role"`
	Approved  bool            `json:"approved"`
	Profile   profileResponse `json:"profile"`
	CreatedAt time.Time       `json:"created_at"`
}

type jobResponse struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	Salary      string     `json:"salary"`
	IsActive    bool       `json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type jobSummaryResponse struct {
	jobResponse
	ApplicationCount int `json:"application_count"`
}

type applicationResponse struct {
	ID          string    `json:"id"`
	JobID       string    `json:"job_id"`
	ApplicantID string    `json:"applicant_id"`
	CoverLetter string    `json:"cover_letter"`
	HasResume   bool      `json:"has_custom_resume"`
	Status      string    `json:"status"`
	StageID     *string   `json:"stage_id"`
	AppliedAt   time.Time `json:"applied_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type stageResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Order int    `json:"order"`
}

type historyResponse struct {
	ID        string    `json:"id"`
	StageID   *string   `json:"stage_id"`
	StageName string    `json:"stage_name"`
	ChangedBy *string   `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
	Notes     string    `json:"notes"`
}

type noteResponse struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	IsPrivate bool      `json:"is_private"`
	CreatedAt time.Time `json:"created_at"`
}

type ratingResponse struct {
	ID            string    `json:"id"`
	RaterID       string    `json:"rater_id"`
	Overall       int       `json:"overall"`
	Technical     *int      `json:"technical"`
	Communication *int      `json:"communication"`
	CultureFit    *int      `json:"culture_fit"`
	Comment       string    `json:"comment"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type tagResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type messageResponse struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Content     string    `json:"content"`
	IsRead      bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}

type templateResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	IsActive  bool      `json:"is_active"`
	UpdatedAt time.Time `json:"updated_at"`
}

type notificationResponse struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	Link          string    `json:"link"`
	IsRead        bool      `json:"is_read"`
	ApplicationID *string   `json:"application_id,omitempty"`
	JobID         *string   `json:"job_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type teamResponse struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
	Role    string `json:"role,omitempty"`
}

type memberResponse struct {
	UserID   string    `json:"user_id"`
	Role     string    `json:"role"`
	IsActive bool      `json:"is_active"`
	JoinedAt time.Time `json:"joined_at"`
}

type invitationResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type activityResponse struct {
	ID            string    `json:"id"`
	ActorID       *string   `json:"actor_id"`
	Action        string    `json:"action"`
	Description   string    `json:"description"`
	ApplicationID *string   `json:"application_id,omitempty"`
	JobID         *string   `json:"job_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type verificationStatusResponse struct {
	PhoneVerified bool   `json:"phone_verified"`
	EmailVerified bool   `json:"email_verified"`
	Phone         string `json:"phone,omitempty"`
	Level         string `json:"level"`
}

// --- 変換 ---

func toAccountResponse(a *model.Account) accountResponse {
	resp := accountResponse{
		ID:        a.ID,
		Email:     a.Email,
		Name:      a.Name,
		Role:      string(a.Role),
		Approved:  a.Approved,
		CreatedAt: a.CreatedAt,
	}
	switch p := a.Profile.(type) {
	case *model.JobSeekerProfile:
		resp.Profile = profileResponse{
			Headline:    p.Headline,
			Skills:      p.Skills,
			Location:    p.Location,
			ResumeRef:   p.ResumeRef,
			LinkedInURL: p.LinkedInURL,
		}
	case *model.EmployerProfile:
		resp.Profile = profileResponse{CompanyName: p.CompanyName, Description: p.Description, Website: p.Website}
	case *model.RecruiterProfile:
		resp.Profile = profileResponse{AgencyName: p.AgencyName, Website: p.Website}
	}
	return resp
}

func toJobResponse(j *model.JobPosting) jobResponse {
	return jobResponse{
		ID:          j.ID,
		OwnerID:     j.OwnerID,
		Title:       j.Title,
		Company:     j.Company,
		Description: j.Description,
		Location:    j.Location,
		Salary:      j.Salary,
		IsActive:    j.IsActive,
		ExpiresAt:   j.ExpiresAt,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

func toJobResponses(jobs []*model.JobPosting) []jobResponse {
	out := make([]jobResponse, len(jobs))
	for i, j := range jobs {
		out[i] = toJobResponse(j)
	}
	return out
}

func toJobSummaryResponses(summaries []*model.JobSummary) []jobSummaryResponse {
	out := make([]jobSummaryResponse, len(summaries))
	for i, s := range summaries {
		out[i] = jobSummaryResponse{jobResponse: toJobResponse(s.Job), ApplicationCount: s.ApplicationCount}
	}
	return out
}

func toApplicationResponse(a *model.Application) applicationResponse {
	return applicationResponse{
		ID:          a.ID,
		JobID:       a.JobID,
		ApplicantID: a.ApplicantID,
		CoverLetter: a.CoverLetter,
		HasResume:   a.ResumeRef != nil,
		Status:      string(a.Status),
		StageID:     a.StageID,
		AppliedAt:   a.AppliedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func toApplicationResponses(apps []*model.Application) []applicationResponse {
	out := make([]applicationResponse, len(apps))
	for i, a := range apps {
		out[i] = toApplicationResponse(a)
	}
	return out
}

func toStageResponse(s *model.Stage) stageResponse {
	return stageResponse{ID: s.ID, Name: s.Name, Color: s.Color, Order: s.Order}
}

func toStageResponses(stages []*model.Stage) []stageResponse {
	out := make([]stageResponse, len(stages))
	for i, s := range stages {
		out[i] = toStageResponse(s)
	}
	return out
}

func toHistoryResponse(h *model.StageHistory) historyResponse {
	return historyResponse{
		ID:        h.ID,
		StageID:   h.StageID,
		StageName: h.StageName,
		ChangedBy: h.ChangedBy,
		ChangedAt: h.ChangedAt,
		Notes:     h.Notes,
	}
}

func toNoteResponse(n *model.Note) noteResponse {
	return noteResponse{ID: n.ID, AuthorID: n.AuthorID, Content: n.Content, IsPrivate: n.IsPrivate, CreatedAt: n.CreatedAt}
}

func toRatingResponse(r *model.Rating) ratingResponse {
	return ratingResponse{
		ID:            r.ID,
		RaterID:       r.RaterID,
		Overall:       r.Overall,
		Technical:     r.Technical,
		Communication: r.Communication,
		CultureFit:    r.CultureFit,
		Comment:       r.Comment,
		UpdatedAt:     r.UpdatedAt,
	}
}

func toTagResponses(tags []*model.Tag) []tagResponse {
	out := make([]tagResponse, len(tags))
	for i, t := range tags {
		out[i] = tagResponse{ID: t.ID, Name: t.Name, Color: t.Color}
	}
	return out
}

func toMessageResponse(m *model.Message) messageResponse {
	return messageResponse{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Content:     m.Content,
		IsRead:      m.IsRead,
		CreatedAt:   m.CreatedAt,
	}
}

func toTemplateResponse(t *model.EmailTemplate) templateResponse {
	return templateResponse{
		ID:        t.ID,
		Name:      t.Name,
		Type:      string(t.Type),
		Subject:   t.Subject,
		Body:      t.Body,
		IsActive:  t.IsActive,
		UpdatedAt: t.UpdatedAt,
	}
}

func toNotificationResponse(n *model.Notification) notificationResponse {
	return notificationResponse{
		ID:            n.ID,
		Type:          string(n.Type),
		Title:         n.Title,
		Message:       n.Message,
		Link:          n.Link,
		IsRead:        n.IsRead,
		ApplicationID: n.ApplicationID,
		JobID:         n.JobID,
		CreatedAt:     n.CreatedAt,
	}
}

func toInvitationResponse(i *model.TeamInvitation) invitationResponse {
	return invitationResponse{
		ID:        i.ID,
		Email:     i.Email,
		Role:      string(i.Role),
		Status:    string(i.Status),
		ExpiresAt: i.ExpiresAt,
		CreatedAt: i.CreatedAt,
	}
}

func toActivityResponse(l *model.ActivityLog) activityResponse {
	return activityResponse{
		ID:            l.ID,
		ActorID:       l.ActorID,
		Action:        string(l.Action),
		Description:   l.Description,
		ApplicationID: l.ApplicationID,
		JobID:         l.JobID,
		CreatedAt:     l.CreatedAt,
	}
}

// --- 集計系 ---

type columnResponse struct {
	Stage        stageResponse         `json:"stage"`
	Applications []applicationResponse `json:"applications"`
}

type boardResponse struct {
	Job      jobResponse           `json:"job"`
	Columns  []columnResponse      `json:"columns"`
	Unstaged []applicationResponse `json:"unstaged"`
}

func toBoardResponse(b *pipeline.Board) boardResponse {
	resp := boardResponse{
		Job:      toJobResponse(b.Job),
		Columns:  make([]columnResponse, len(b.Columns)),
		Unstaged: toApplicationResponses(b.Unstaged),
	}
	for i, c := range b.Columns {
		resp.Columns[i] = columnResponse{Stage: toStageResponse(c.Stage), Applications: toApplicationResponses(c.Applications)}
	}
	return resp
}

type stageCountResponse struct {
	StageID   string `json:"stage_id"`
	StageName string `json:"stage_name"`
	Count     int    `json:"count"`
}

type analyticsResponse struct {
	JobID               string               `json:"job_id"`
	TotalApplications   int                  `json:"total_applications"`
	ByStage             []stageCountResponse `json:"by_stage"`
	ByStatus            map[string]int       `json:"by_status"`
	AverageRating       *float64             `json:"average_rating"`
	AverageHoursInStage map[string]float64   `json:"average_hours_in_stage"`
}

func toAnalyticsResponse(a *pipeline.Analytics) analyticsResponse {
	resp := analyticsResponse{
		JobID:               a.JobID,
		TotalApplications:   a.TotalApplications,
		ByStage:             make([]stageCountResponse, len(a.ByStage)),
		ByStatus:            make(map[string]int, len(a.ByStatus)),
		AverageRating:       a.AverageRating,
		AverageHoursInStage: make(map[string]float64, len(a.AverageTimeInStage)),
	}
	for i, c := range a.ByStage {
		resp.ByStage[i] = stageCountResponse{StageID: c.StageID, StageName: c.StageName, Count: c.Count}
	}
	for status, n := range a.ByStatus {
		resp.ByStatus[string(status)] = n
	}
	for name, d := range a.AverageTimeInStage {
		resp.AverageHoursInStage[name] = d.Hours()
	}
	return resp
}

type ratingSummaryResponse struct {
	Ratings []ratingResponse `json:"ratings"`
	Average *float64         `json:"average"`
}

func toRatingSummaryResponse(s *review.RatingSummary) ratingSummaryResponse {
	resp := ratingSummaryResponse{Ratings: make([]ratingResponse, len(s.Ratings)), Average: s.Average}
	for i, r := range s.Ratings {
		resp.Ratings[i] = toRatingResponse(r)
	}
	return resp
}

// jobInputRequest は求人の作成・更新リクエスト。
type jobInputRequest struct {
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	Salary      string     `json:"salary"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

func (r jobInputRequest) toInput() job.Input {
	return job.Input{
		Title:       r.Title,
		Company:     r.Company,
		Description: r.Description,
		Location:    r.Location,
		Salary:      r.Salary,
		ExpiresAt:   r.ExpiresAt,
	}
}
