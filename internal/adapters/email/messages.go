package email

import (
	"bytes"
	"fmt"
	"html/template"
)

var actionTemplate = template.Must(template.New("action").Parse(`<!DOCTYPE html>
<html lang="uk"><body style="font-family: sans-serif">
<p>{{.Intro}}</p>
<p><a href="{{.Link}}">{{.Button}}</a></p>
<p style="color:#666">Якщо ви не робили цього запиту, просто проігноруйте цей лист.</p>
</body></html>`))

type action struct {
	Intro  string
	Link   string
	Button string
}

func actionRequest(to, subject string, a action) (SendRequest, error) {
	var buf bytes.Buffer
	if err := actionTemplate.Execute(&buf, a); err != nil {
		return SendRequest{}, fmt.Errorf("render email: %w", err)
	}
	return SendRequest{
		To:      []string{to},
		Subject: subject,
		HTML:    buf.String(),
		Text:    a.Intro + "\n" + a.Link,
	}, nil
}

// ConfirmationEmail asks a new user to confirm their address.
func ConfirmationEmail(to, link string) (SendRequest, error) {
	return actionRequest(to, "Підтвердження реєстрації", action{
		Intro:  "Дякуємо за реєстрацію. Підтвердіть свою електронну адресу:",
		Link:   link,
		Button: "Підтвердити email",
	})
}

// PasswordResetEmail carries the link to the update-password page.
func PasswordResetEmail(to, link string) (SendRequest, error) {
	return actionRequest(to, "Відновлення пароля", action{
		Intro:  "Ми отримали запит на відновлення пароля. Щоб встановити новий пароль, перейдіть за посиланням:",
		Link:   link,
		Button: "Встановити новий пароль",
	})
}
