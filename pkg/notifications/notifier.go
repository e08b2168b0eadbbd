package notifications

import (
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nicholas-fedor/versiontower/pkg/types"
)

// NewNotifier creates a Notifier from the command's notification flags.
//
// It returns nil when no notification URL is configured.
func NewNotifier(c *cobra.Command) types.Notifier {
	flag := c.PersistentFlags()

	urls, _ := flag.GetStringArray("notification-url")
	if len(urls) == 0 {
		logrus.Debug("No notification URLs configured")

		return nil
	}

	level, _ := flag.GetString("notifications-level")
	clog := logrus.WithField("level", level)

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		clog.WithError(err).Fatal("Invalid notifications log level")
	}

	reportTemplate, _ := flag.GetBool("notification-report")
	stdout, _ := flag.GetBool("notification-log-stdout")
	tplString, _ := flag.GetString("notification-template")

	data := GetTemplateData(c)
	delay := GetDelay(c)

	clog.WithFields(logrus.Fields{
		"services":    len(urls),
		"template":    tplString,
		"skip_report": !reportTemplate,
		"stdout":      stdout,
		"delay":       delay,
		"hostname":    data.Host,
		"title":       data.Title,
	}).Debug("Creating notifier with configuration")

	return createNotifier(urls, logLevel, tplString, !reportTemplate, data, stdout, delay)
}

// GetDelay returns the configured delay before each notification is sent.
func GetDelay(c *cobra.Command) time.Duration {
	delay, _ := c.PersistentFlags().GetInt("notifications-delay")
	if delay > 0 {
		return time.Duration(delay) * time.Second
	}

	return 0
}

// GetTitle formats the title based on the passed hostname and tag.
func GetTitle(hostname string, tag string) string {
	titleBuilder := strings.Builder{}
	if tag != "" {
		titleBuilder.WriteRune('[')
		titleBuilder.WriteString(tag)
		titleBuilder.WriteRune(']')
		titleBuilder.WriteRune(' ')
	}

	titleBuilder.WriteString("Image versions")

	if hostname != "" {
		titleBuilder.WriteString(" on ")
		titleBuilder.WriteString(hostname)
	}

	return titleBuilder.String()
}

// GetTemplateData populates the static notification data from flags and environment.
func GetTemplateData(c *cobra.Command) StaticData {
	flag := c.PersistentFlags()

	hostname, _ := flag.GetString("notifications-hostname")
	if hostname == "" {
		hostname, _ = os.Hostname()
	}

	title := ""

	if skip, _ := flag.GetBool("notification-skip-title"); !skip {
		tag, _ := flag.GetString("notification-title-tag")
		title = GetTitle(hostname, tag)
	}

	logrus.WithFields(logrus.Fields{
		"hostname": hostname,
		"title":    title,
	}).Debug("Populated template data")

	return StaticData{
		Host:  hostname,
		Title: title,
	}
}
