package email

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/garyjia/vendor-lifecycle/internal/domain/entity"
)

type messageTemplate struct {
	subject *template.Template
	body    *template.Template
}

// templateSource is keyed by notification template kind; both parts see the notification's variables
var templateSource = map[string][2]string{
	entity.TemplateRegistered: {
		"Vendor registration started: {{.reference_id}}",
		`Dear {{.contact_name}},

A vendor registration has been opened for {{.vendor_name}} under reference {{.reference_id}}.
Please complete the company profile and submit it for review.
`,
	},
	entity.TemplateSubmitted: {
		"Vendor registration submitted: {{.reference_id}}",
		`Registration {{.reference_id}} for {{.vendor_name}} has been submitted for review.
`,
	},
	entity.TemplateResubmitted: {
		"Vendor registration resubmitted: {{.reference_id}}",
		`Registration {{.reference_id}} for {{.vendor_name}} has been resubmitted after corrections (submission {{.submission_count}}).
`,
	},
	entity.TemplateSentBack: {
		"Action required on vendor registration {{.reference_id}}",
		`Dear {{.contact_name}},

Your registration {{.reference_id}} has been sent back for corrections.
{{if .comments}}
Reviewer comments:

{{.comments}}
{{end}}
Please update the profile and resubmit.
`,
	},
	entity.TemplateVerified: {
		"Vendor registration verified: {{.reference_id}}",
		`Registration {{.reference_id}} for {{.vendor_name}} has been verified and is awaiting approval.
The registration will be valid until {{.expiry_date}} once approved.
`,
	},
	entity.TemplateApproved: {
		"Vendor registration approved: {{.vendor_code}}",
		`Dear {{.contact_name}},

Registration {{.reference_id}} for {{.vendor_name}} has been approved.
Your vendor code is {{.vendor_code}}, valid until {{.expiry_date}}.
`,
	},
	entity.TemplateRejected: {
		"Vendor registration rejected: {{.reference_id}}",
		`Dear {{.contact_name}},

Registration {{.reference_id}} for {{.vendor_name}} has been rejected.
`,
	},
	entity.TemplateBlocked: {
		"Vendor {{.vendor_code}} blocked",
		`Vendor {{.vendor_code}} ({{.vendor_name}}) has been blocked.
`,
	},
	entity.TemplateSuspended: {
		"Vendor {{.vendor_code}} suspended",
		`Vendor {{.vendor_code}} ({{.vendor_name}}) has been suspended.
`,
	},
	entity.TemplateActivated: {
		"Vendor {{.vendor_code}} activated",
		`Vendor {{.vendor_code}} ({{.vendor_name}}) is active again.
`,
	},
	entity.TemplateReinitiated: {
		"Vendor renewal opened: {{.new_reference_id}}",
		`A renewal of vendor {{.vendor_code}} ({{.vendor_name}}) has been opened under reference {{.new_reference_id}}.
{{if .expiry_date}}The current registration expires on {{.expiry_date}}.
{{end}}Please review the copied profile and submit it.
`,
	},
}

func parseTemplates() (map[string]messageTemplate, error) {
	templates := make(map[string]messageTemplate, len(templateSource))
	for kind, src := range templateSource {
		subject, err := template.New(kind + ".subject").Option("missingkey=zero").Parse(src[0])
		if err != nil {
			return nil, fmt.Errorf("failed to parse subject template %s: %w", kind, err)
		}
		body, err := template.New(kind + ".body").Option("missingkey=zero").Parse(src[1])
		if err != nil {
			return nil, fmt.Errorf("failed to parse body template %s: %w", kind, err)
		}
		templates[kind] = messageTemplate{subject: subject, body: body}
	}
	return templates, nil
}

func (t messageTemplate) render(vars map[string]string) (string, string, error) {
	if vars == nil {
		vars = map[string]string{}
	}

	var subject, body strings.Builder
	if err := t.subject.Execute(&subject, vars); err != nil {
		return "", "", fmt.Errorf("failed to render subject: %w", err)
	}
	if err := t.body.Execute(&body, vars); err != nil {
		return "", "", fmt.Errorf("failed to render body: %w", err)
	}
	return strings.TrimSpace(subject.String()), body.String(), nil
}
