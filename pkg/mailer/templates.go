package mailer

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

type emailTemplate struct {
	subject *template.Template
	body    *template.Template
}

// Message is a rendered email.
type Message struct {
	Subject string
	Body    string
}

var templateSources = map[string][2]string{
	"submission.created": {
		"New submission for project #{{.project_id}}",
		"Version {{.version}} of a document was uploaded for project #{{.project_id}} and is waiting for your review.",
	},
	"submission.approved": {
		"Submission approved for project #{{.project_id}}",
		"Your supervisor approved version {{.version}} of your submission.{{with .feedback}}\n\nFeedback: {{.}}{{end}}",
	},
	"submission.revision_requested": {
		"Revision requested for project #{{.project_id}}",
		"Your supervisor requested a revision of version {{.version}}.{{with .feedback}}\n\nFeedback: {{.}}{{end}}",
	},
	"submission.locked": {
		"Submission locked for evaluation (project #{{.project_id}})",
		"Version {{.version}} is now final and locked for committee evaluation.{{if .auto_locked}} It was locked automatically when deadline #{{.deadline_id}} passed.{{end}}",
	},
	"evaluation.started": {
		"Evaluation started for project #{{.project_id}}",
		"The committee has started evaluating your submission.",
	},
	"evaluation.finalized": {
		"Evaluation complete for project #{{.project_id}}",
		"All committee marks are final.{{with .average}} Committee average: {{.}}.{{end}}",
	},
	"deadline.missed": {
		"Deadline missed for project #{{.project_id}}",
		"No submission was received before the deadline of {{.due_at}}.",
	},
	"result.released": {
		"Final result released for project #{{.project_id}}",
		"The final result of your project is available. Total score: {{.total_score}}.",
	},
}

const (
	fallbackSubject = "Update on project #{{.project_id}}"
	fallbackBody    = "Your final-year project has an update. Sign in to see the details."
)

// Renderer turns notification events into email text.
type Renderer struct {
	templates map[string]emailTemplate
	fallback  emailTemplate
}

// NewRenderer parses the built-in event templates.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]emailTemplate, len(templateSources))}
	for name, source := range templateSources {
		parsed, err := parseTemplate(name, source[0], source[1])
		if err != nil {
			return nil, err
		}
		r.templates[name] = parsed
	}

	fallback, err := parseTemplate("fallback", fallbackSubject, fallbackBody)
	if err != nil {
		return nil, err
	}
	r.fallback = fallback
	return r, nil
}

func parseTemplate(name, subject, body string) (emailTemplate, error) {
	subjectTmpl, err := template.New(name + ".subject").Option("missingkey=zero").Parse(subject)
	if err != nil {
		return emailTemplate{}, fmt.Errorf("parse %s subject: %w", name, err)
	}
	bodyTmpl, err := template.New(name + ".body").Option("missingkey=zero").Parse(body)
	if err != nil {
		return emailTemplate{}, fmt.Errorf("parse %s body: %w", name, err)
	}
	return emailTemplate{subject: subjectTmpl, body: bodyTmpl}, nil
}

// Render executes the template registered for name, falling back to a generic message.
func (r *Renderer) Render(name string, data map[string]interface{}) (Message, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		tmpl = r.fallback
	}

	var subject, body bytes.Buffer
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := tmpl.body.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("render %s body: %w", name, err)
	}

	return Message{
		Subject: strings.TrimSpace(strings.ReplaceAll(subject.String(), "<no value>", "")),
		Body:    strings.TrimSpace(strings.ReplaceAll(body.String(), "<no value>", "")),
	}, nil
}
