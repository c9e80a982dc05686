package mail

import (
	"errors"
	"log"
	"strings"
	"testing"
)

type captureMailer struct {
	to      string
	subject string
	body    string
	err     error
}

func (m *captureMailer) Send(to, subject, htmlBody string) error {
	m.to, m.subject, m.body = to, subject, htmlBody
	return m.err
}

func TestVerificationMailCarriesTokenLink(t *testing.T) {
	m := &captureMailer{}
	svc := Service{Mailer: m, FrontendURL: "https://app.example.com"}
	svc.Send(KindVerification, "user@example.com", Vars{Token: "tok123"})
	if m.to != "user@example.com" {
		t.Fatalf("sent to %q", m.to)
	}
	if m.subject != "Email Verification" {
		t.Fatalf("subject %q", m.subject)
	}
	if !strings.Contains(m.body, "https://app.example.com/verify-email?token=tok123") {
		t.Fatalf("body missing verification link:\n%s", m.body)
	}
}

func TestPasswordResetMail(t *testing.T) {
	m := &captureMailer{}
	svc := Service{Mailer: m, FrontendURL: "https://app.example.com"}
	svc.Send(KindPasswordReset, "user@example.com", Vars{Token: "rst456"})
	if !strings.Contains(m.body, "/reset-password?token=rst456") {
		t.Fatalf("body missing reset link:\n%s", m.body)
	}
	if !strings.Contains(m.body, "expire in 10 minutes") {
		t.Fatalf("body missing expiry note:\n%s", m.body)
	}
}

func TestTaskStatusSubjects(t *testing.T) {
	cases := map[string]string{
		"completed":    "Task Completed",
		"in_progress":  "Task Status Update",
		"under_review": "Task Ready for Review",
		"other":        "Task Status Update",
	}
	for status, want := range cases {
		m := &captureMailer{}
		svc := Service{Mailer: m, FrontendURL: "https://app.example.com"}
		svc.Send(KindTaskStatusUpdate, "user@example.com", Vars{TaskID: "t1", TaskTitle: "Deploy", TaskStatus: status})
		if m.subject != want {
			t.Errorf("status %s: subject %q, want %q", status, m.subject, want)
		}
	}
}

func TestTaskAssignmentMailLinksTask(t *testing.T) {
	m := &captureMailer{}
	svc := Service{Mailer: m, FrontendURL: "https://app.example.com"}
	svc.Send(KindTaskAssignment, "user@example.com", Vars{TaskID: "t42", TaskTitle: "Audit", DueDate: "2024-02-01", Priority: "high"})
	if !strings.Contains(m.body, "/tasks/t42") {
		t.Fatalf("body missing task link:\n%s", m.body)
	}
	if !strings.Contains(m.body, "Audit") || !strings.Contains(m.body, "high") {
		t.Fatalf("body missing task details:\n%s", m.body)
	}
}

func TestSendSwallowsDeliveryErrors(t *testing.T) {
	var buf strings.Builder
	m := &captureMailer{err: errors.New("smtp down")}
	svc := Service{Mailer: m, FrontendURL: "https://app.example.com", Logger: log.New(&buf, "", 0)}
	svc.Send(KindWelcome, "user@example.com", Vars{Name: "Sam"})
	if !strings.Contains(buf.String(), "smtp down") {
		t.Fatalf("expected logged delivery failure, got %q", buf.String())
	}
}

func TestSendWithoutMailerIsNoop(t *testing.T) {
	// Must not panic; mail is optional.
	Service{}.Send(KindWelcome, "user@example.com", Vars{Name: "Sam"})
}
