package mail

import "fmt"

// Vars are the template variables for a message.
type Vars struct {
	Name       string
	Token      string
	TaskID     string
	TaskTitle  string
	TaskDesc   string
	TaskStatus string
	DueDate    string
	Priority   string
}

func render(kind Kind, frontendURL string, v Vars) (subject, body string, err error) {
	switch kind {
	case KindVerification:
		url := fmt.Sprintf("%s/verify-email?token=%s", frontendURL, v.Token)
		return "Email Verification", wrap(
			"Verify Your Email Address",
			"Thank you for registering! Please click the button below to verify your email address.",
			button(url, "Verify Email")+
				para("If you didn't create an account, you can safely ignore this email.")+
				linkFallback(url)), nil
	case KindPasswordReset:
		url := fmt.Sprintf("%s/reset-password?token=%s", frontendURL, v.Token)
		return "Password Reset Request", wrap(
			"Reset Your Password",
			"You requested a password reset. Click the button below to create a new password.",
			button(url, "Reset Password")+
				para("If you didn't request this, you can safely ignore this email.")+
				para("This link will expire in 10 minutes.")+
				linkFallback(url)), nil
	case KindTaskAssignment:
		url := fmt.Sprintf("%s/tasks/%s", frontendURL, v.TaskID)
		return "New Task Assignment", wrap(
			"New Task Assigned",
			"",
			taskCard(v.TaskTitle, v.TaskDesc, "Due Date", v.DueDate, "Priority", v.Priority)+
				button(url, "View Task")), nil
	case KindTaskStatusUpdate:
		url := fmt.Sprintf("%s/tasks/%s", frontendURL, v.TaskID)
		subject, heading, line := statusCopy(v.TaskStatus)
		return subject, wrap(
			heading,
			line,
			taskCard(v.TaskTitle, v.TaskDesc, "Status", v.TaskStatus, "", "")+
				button(url, "View Task")), nil
	case KindWelcome:
		return "Welcome to Taskbase", wrap(
			"Welcome to Taskbase!",
			fmt.Sprintf("Hi %s, we're excited to have you on board! Our platform will help you manage tasks efficiently and collaborate with your team seamlessly.", v.Name),
			button(frontendURL+"/dashboard", "Get Started")+
				para("If you have any questions, feel free to reach out to our support team.")), nil
	}
	return "", "", fmt.Errorf("unknown mail kind %q", kind)
}

func statusCopy(status string) (subject, heading, line string) {
	switch status {
	case "completed":
		return "Task Completed", "Task Marked as Complete", "A task you're involved with has been marked as complete."
	case "in_progress":
		return "Task Status Update", "Task In Progress", "A task you're involved with has been started."
	case "under_review":
		return "Task Ready for Review", "Task Needs Review", "A task is ready for your review."
	default:
		return "Task Status Update", "Task Status Changed", "A task you're involved with has been updated."
	}
}

func wrap(heading, intro, inner string) string {
	out := `<div style="max-width: 600px; margin: 0 auto; padding: 20px; font-family: Arial, sans-serif;">` +
		fmt.Sprintf(`<h2 style="color: #000; text-align: center;">%s</h2>`, heading)
	if intro != "" {
		out += para(intro)
	}
	return out + inner + `</div>`
}

func para(text string) string {
	return fmt.Sprintf(`<p style="color: #666; line-height: 1.6;">%s</p>`, text)
}

func button(url, label string) string {
	return fmt.Sprintf(`<div style="text-align: center; margin: 30px 0;"><a href="%s" style="background-color: #000; color: #fff; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">%s</a></div>`, url, label)
}

func linkFallback(url string) string {
	return para(fmt.Sprintf(`If the button doesn't work, copy and paste this link into your browser:<br><a href="%s" style="color: #000; word-break: break-all;">%s</a>`, url, url))
}

func taskCard(title, desc, k1, v1, k2, v2 string) string {
	out := `<div style="background-color: #f9f9f9; padding: 20px; border-radius: 5px; margin: 20px 0;">` +
		fmt.Sprintf(`<h3 style="color: #000; margin: 0 0 10px 0;">%s</h3>`, title)
	if desc != "" {
		out += fmt.Sprintf(`<p style="color: #666; margin: 0 0 10px 0;">%s</p>`, desc)
	}
	if k1 != "" && v1 != "" {
		out += fmt.Sprintf(`<p style="color: #666; margin: 0;"><strong>%s:</strong> %s</p>`, k1, v1)
	}
	if k2 != "" && v2 != "" {
		out += fmt.Sprintf(`<p style="color: #666; margin: 0;"><strong>%s:</strong> %s</p>`, k2, v2)
	}
	return out + `</div>`
}
