package notify

import "github.com/hitoshi/jobboard/internal/model"

type templateDef struct {
	name    string
	kind    model.TemplateType
	subject string
	body    string
}

var defaultTemplates = []templateDef{
	{
		name:    "Application Received",
		kind:    model.TemplateApplicationReceived,
		subject: "Application Received - {{job_title}} at {{company_name}}",
		body: `Dear {{applicant_name}},

Thank you for applying for the {{job_title}} position at {{company_name}}.

We have received your application and our team will review it shortly. If your qualifications match our requirements, we will contact you to discuss the next steps.

Thank you for your interest in joining our team.

Best regards,
{{company_name}} Hiring Team`,
	},
	{
		name:    "Interview Invitation",
		kind:    model.TemplateInterviewInvite,
		subject: "Interview Invitation - {{job_title}} at {{company_name}}",
		body: `Dear {{applicant_name}},

Congratulations! After reviewing your application for the {{job_title}} position, we would like to invite you for an interview.

Please reply to this email with your availability for the coming week, and we will schedule a convenient time.

We look forward to speaking with you.

Best regards,
{{company_name}} Hiring Team`,
	},
	{
		name:    "Job Offer",
		kind:    model.TemplateOffer,
		subject: "Job Offer - {{job_title}} at {{company_name}}",
		body: `Dear {{applicant_name}},

We are pleased to extend an offer for the {{job_title}} position at {{company_name}}.

We were impressed with your qualifications and believe you would be a valuable addition to our team. Please find the offer details attached.

Please let us know your decision within the next 5 business days.

Best regards,
{{company_name}} Hiring Team`,
	},
	{
		name:    "Application Update",
		kind:    model.TemplateStageChange,
		subject: "Application Update - {{job_title}} at {{company_name}}",
		body: `Dear {{applicant_name}},

We wanted to update you on the status of your application for the {{job_title}} position at {{company_name}}.

Your application has been moved to the {{stage_name}} stage of our hiring process.

We will be in touch with more information soon.

Best regards,
{{company_name}} Hiring Team`,
	},
	{
		name:    "Application Rejected",
		kind:    model.TemplateRejection,
		subject: "Application Status - {{job_title}} at {{company_name}}",
		body: `Dear {{applicant_name}},

Thank you for your interest in the {{job_title}} position at {{company_name}} and for taking the time to apply.

After careful consideration, we have decided to move forward with other candidates whose qualifications more closely match our current needs.

We encourage you to apply for future openings that match your skills and experience. We wish you the best in your job search.

Best regards,
{{company_name}} Hiring Team`,
	},
}

// DefaultTemplates は雇用者に初期投入する5件のテンプレートを返す。IDは呼び出し側で採番する。
func DefaultTemplates(employerID string) []*model.EmailTemplate {
	out := make([]*model.EmailTemplate, len(defaultTemplates))
	for i, d := range defaultTemplates {
		out[i] = &model.EmailTemplate{
			EmployerID: employerID,
			Name:       d.name,
			Type:       d.kind,
			Subject:    d.subject,
			Body:       d.body,
			IsActive:   true,
		}
	}
	return out
}

// TemplateTypeFor は通知種別に対応するテンプレート用途を返す。
func TemplateTypeFor(kind model.NotificationType) model.TemplateType {
	switch kind {
	case model.NotifyInterviewScheduled:
		return model.TemplateInterviewInvite
	case model.NotifyOfferReceived:
		return model.TemplateOffer
	case model.NotifyApplicationRejected:
		return model.TemplateRejection
	case model.NotifyApplicationReceived:
		return model.TemplateApplicationReceived
	default:
		return model.TemplateStageChange
	}
}
