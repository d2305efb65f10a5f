// internal/workers/solvency/send-rating-notification/templates.go
package sendratingnotification

import (
	"bytes"
	htmltemplate "html/template"
	"text/template"

	"solvency-workers/internal/solvency"
)

const emailSubject = "Assessment Complete! Your solvency rating is ready"

var textBody = template.Must(template.New("text").Parse(`Assessment Complete!

Overall Rating: {{.OverallRating}}

Credit Score:    {{.CreditScore}}
Employment:      {{.EmploymentScore}}
Income:          {{.IncomeScore}}
Debt Ratio:      {{.DebtRatioScore}}
Payment History: {{.PaymentHistoryScore}}

Based on your assessment, you're ready to proceed with your application.
`))

var htmlBody = htmltemplate.Must(htmltemplate.New("html").Parse(`<h3>Assessment Complete!</h3>
<p><strong>Overall Rating: {{.OverallRating}}</strong></p>
<table>
<tr><td>Credit Score</td><td>{{.CreditScore}}</td></tr>
<tr><td>Employment</td><td>{{.EmploymentScore}}</td></tr>
<tr><td>Income</td><td>{{.IncomeScore}}</td></tr>
<tr><td>Debt Ratio</td><td>{{.DebtRatioScore}}</td></tr>
<tr><td>Payment History</td><td>{{.PaymentHistoryScore}}</td></tr>
</table>
<p>Based on your assessment, you're ready to proceed with your application.</p>
`))

func renderEmail(r solvency.Rating) (text, html string, err error) {
	var tb, hb bytes.Buffer
	if err := textBody.Execute(&tb, r); err != nil {
		return "", "", err
	}
	if err := htmlBody.Execute(&hb, r); err != nil {
		return "", "", err
	}
	return tb.String(), hb.String(), nil
}
