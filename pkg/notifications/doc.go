// Package notifications sends version check reports through Shoutrrr services.
//
// Reports are rendered with text/template. Built-in templates are selected by
// name ("default", "porcelain.v1.summary-no-log", "json.v1"); any other
// non-empty value is parsed as a custom template. In legacy mode the template
// receives the log entries captured during a cycle instead of the report.
//
// Key components:
//   - NewNotifier: Builds a notifier from the command's notification flags.
//   - Data: The template data model (title, host, log entries, report).
//   - templates.Funcs: Helper functions available to templates.
//
// Usage example:
//
//	notifier := notifications.NewNotifier(cmd)
//	if notifier != nil {
//	    notifier.AddLogHook()
//	    notifier.StartNotification()
//	    notifier.SendNotification(report)
//	}
package notifications
