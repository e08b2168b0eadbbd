package notifications

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/sirupsen/logrus"

	shoutrrrTypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/nicholas-fedor/versiontower/pkg/notifications/templates"
	"github.com/nicholas-fedor/versiontower/pkg/types"
)

// LocalLog is a logrus logger that does not send entries as notifications.
var LocalLog = logrus.WithField("notify", "no")

// initialEntriesCapacity is the initial capacity of a cycle's captured log entries.
const initialEntriesCapacity = 10

// router sends a rendered message to every configured service.
type router interface {
	Send(message string, params *shoutrrrTypes.Params) []error
}

// shoutrrrTypeNotifier implements the Notifier and logrus.Hook interfaces.
type shoutrrrTypeNotifier struct {
	Urls           []string
	Router         router
	entries        []*logrus.Entry
	logLevel       logrus.Level
	template       *template.Template
	messages       chan string
	done           chan bool
	legacyTemplate bool
	params         *shoutrrrTypes.Params
	data           StaticData
	receiving      bool
	delay          time.Duration
}

// GetScheme extracts the scheme part of a Shoutrrr URL.
// It returns "invalid" if no scheme is found.
func GetScheme(url string) string {
	schemeEnd := strings.Index(url, ":")
	if schemeEnd <= 0 {
		return "invalid"
	}

	return url[:schemeEnd]
}

// GetNames returns the service names derived from the URL schemes.
func (n *shoutrrrTypeNotifier) GetNames() []string {
	names := make([]string, len(n.Urls))
	for i, u := range n.Urls {
		names[i] = GetScheme(u)
	}

	return names
}

// GetURLs returns the configured service URLs.
func (n *shoutrrrTypeNotifier) GetURLs() []string {
	return n.Urls
}

// AddLogHook registers the notifier as a logrus hook and starts the sender.
func (n *shoutrrrTypeNotifier) AddLogHook() {
	if n.receiving {
		return
	}

	n.receiving = true
	logrus.AddHook(n)

	go sendNotifications(n)
}

// createNotifier builds a notifier for the given service URLs.
//
// An unusable template string falls back to the default template. Shoutrrr's
// own logs go to stdout when requested, otherwise to logrus at trace level.
func createNotifier(
	urls []string,
	level logrus.Level,
	tplString string,
	legacy bool,
	data StaticData,
	stdout bool,
	delay time.Duration,
) *shoutrrrTypeNotifier {
	tpl, err := getShoutrrrTemplate(tplString, legacy)
	if err != nil {
		logrus.WithError(err).Error("Could not use configured notification template, using default template")

		tpl, _ = getShoutrrrTemplate("", legacy)
	}

	var logger shoutrrrTypes.StdLogger
	if stdout {
		logger = log.New(os.Stdout, ``, 0)
	} else {
		logger = log.New(logrus.StandardLogger().WriterLevel(logrus.TraceLevel), "Shoutrrr: ", 0)
	}

	sender, err := shoutrrr.NewSender(logger, urls...)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize Shoutrrr notifications")
	}

	params := &shoutrrrTypes.Params{}
	if data.Title != "" {
		params.SetTitle(data.Title)
	}

	return &shoutrrrTypeNotifier{
		Urls:           urls,
		Router:         sender,
		messages:       make(chan string, 1),
		done:           make(chan bool),
		logLevel:       level,
		template:       tpl,
		legacyTemplate: legacy,
		data:           data,
		params:         params,
		delay:          delay,
	}
}

// sendNotifications delivers queued messages until the queue is closed.
func sendNotifications(notifier *shoutrrrTypeNotifier) {
	for msg := range notifier.messages {
		time.Sleep(notifier.delay)

		errs := notifier.Router.Send(msg, notifier.params)

		for i, err := range errs {
			if err != nil {
				LocalLog.WithFields(logrus.Fields{
					"service": GetScheme(notifier.Urls[i]),
					"index":   i,
				}).WithError(err).Error("Failed to send shoutrrr notification")
			}
		}
	}

	notifier.done <- true
}

// buildMessage renders the notification message for data.
func (n *shoutrrrTypeNotifier) buildMessage(data Data) (string, error) {
	var body bytes.Buffer

	var templateData any = data
	if n.legacyTemplate {
		templateData = data.Entries
	}

	if err := n.template.Execute(&body, templateData); err != nil {
		return "", fmt.Errorf("failed to execute notification template: %w", err)
	}

	return body.String(), nil
}

// sendEntries queues a message built from entries and report. Empty messages are dropped.
func (n *shoutrrrTypeNotifier) sendEntries(entries []*logrus.Entry, report types.Report) {
	msg, err := n.buildMessage(Data{n.data, entries, report})
	if err != nil {
		LocalLog.WithError(err).Error("Notification template error")

		return
	}

	if strings.TrimSpace(msg) == "" {
		LocalLog.Debug("Skipping notification due to empty message")

		return
	}

	n.messages <- msg
}

// StartNotification begins capturing log entries for the cycle's notification.
func (n *shoutrrrTypeNotifier) StartNotification() {
	if n.entries == nil {
		n.entries = make([]*logrus.Entry, 0, initialEntriesCapacity)
	}
}

// SendNotification sends the captured entries together with the cycle's report.
func (n *shoutrrrTypeNotifier) SendNotification(report types.Report) {
	n.sendEntries(n.entries, report)
	n.entries = nil
}

// Close stops queuing and waits until all queued messages are sent.
func (n *shoutrrrTypeNotifier) Close() {
	close(n.messages)

	if !n.receiving {
		return
	}

	LocalLog.Info("Waiting for the notification goroutine to finish")

	<-n.done
}

// Levels returns the log levels that trigger notifications.
func (n *shoutrrrTypeNotifier) Levels() []logrus.Level {
	return logrus.AllLevels[:n.logLevel+1]
}

// Fire captures a log entry during a cycle or sends it immediately outside one.
func (n *shoutrrrTypeNotifier) Fire(entry *logrus.Entry) error {
	if entry.Data["notify"] == "no" {
		return nil
	}

	if n.entries != nil {
		n.entries = append(n.entries, entry)
	} else {
		n.sendEntries([]*logrus.Entry{entry}, nil)
	}

	return nil
}

// getShoutrrrTemplate resolves a built-in template name or parses tplString.
// An empty string selects the default template for the mode.
func getShoutrrrTemplate(tplString string, legacy bool) (*template.Template, error) {
	tplBase := template.New("").Funcs(templates.Funcs)

	if builtin, found := commonTemplates[tplString]; found {
		logrus.WithField(`template`, tplString).Debug(`Using common template`)
		tplString = builtin
	}

	if tplString == "" {
		defaultKey := `default`
		if legacy {
			defaultKey = `default-legacy`
		}

		return template.Must(tplBase.Parse(commonTemplates[defaultKey])), nil
	}

	tpl, err := tplBase.Parse(tplString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse notification template string: %w", err)
	}

	return tpl, nil
}
