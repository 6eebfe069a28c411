package batch

import (
	"fmt"
	"net/mail"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kymoh/elimu/core"
)

// Reporter delivers one operator-facing summary per run. Delivery failures
// are logged only: the run has already completed and must not be failed by a
// reporting-channel outage.
type Reporter struct {
	mailSvc  core.EmailService
	chatSvc  core.ChatService // optional
	logger   core.Logger
	operator mail.Address
	appName  string
}

func NewReporter(mailSvc core.EmailService, chatSvc core.ChatService, logger core.Logger, operator mail.Address, appName string) *Reporter {
	return &Reporter{
		mailSvc:  mailSvc,
		chatSvc:  chatSvc,
		logger:   logger,
		operator: operator,
		appName:  appName,
	}
}

// Send formats and dispatches the summary via email and, when configured,
// chat. It never returns an error.
func (rp *Reporter) Send(sum RunSummary) {
	elapsed := sum.Elapsed.Round(time.Millisecond).String()
	memory := humanize.Bytes(sum.MemoryUsed)

	err := rp.mailSvc.SendMessage(&core.EmailMessage{
		To:           []mail.Address{rp.operator},
		Subject:      fmt.Sprintf("%s: %s run finished (%d ok / %d failed)", rp.appName, sum.Job, sum.Succeeded, sum.Failed),
		TemplateName: "run-report",
		TemplateData: struct {
			Summary RunSummary
			Elapsed string
			Memory  string
		}{sum, elapsed, memory},
	})
	if err != nil {
		rp.logger.Error(fmt.Sprintf("emailing run report for %s: %v", sum.Job, err), err)
	}

	if rp.chatSvc != nil {
		text := fmt.Sprintf("*%s* `%s`: %d succeeded, %d failed in %s (mem %s)",
			rp.appName, sum.Job, sum.Succeeded, sum.Failed, elapsed, memory)
		if err := rp.chatSvc.PostMessage(text); err != nil {
			rp.logger.Error(fmt.Sprintf("posting run report for %s: %v", sum.Job, err), err)
		}
	}
}
