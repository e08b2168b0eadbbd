package notifications

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	shoutrrrTypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/nicholas-fedor/versiontower/pkg/session"
	"github.com/nicholas-fedor/versiontower/pkg/types"
	"github.com/nicholas-fedor/versiontower/pkg/version"
)

// recordingRouter captures sent messages.
type recordingRouter struct {
	mu       sync.Mutex
	messages []string
	titles   []string
}

func (r *recordingRouter) Send(message string, params *shoutrrrTypes.Params) []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = append(r.messages, message)

	r.titles = append(r.titles, (*params)["title"])

	return nil
}

func (r *recordingRouter) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.messages...)
}

func mockReport(results ...version.Result) types.Report {
	progress := session.Progress{}
	for _, result := range results {
		progress.AddResult(result)
	}

	return progress.Report()
}

func staleResult(name string) version.Result {
	return version.Result{
		Image: types.LocalImageRef{Name: name, Repository: "acme/" + name, Tag: "1.0"},
		Info: types.VersionInfo{
			Name:           name + " Docker Image",
			CurrentVersion: "1.0 (aaaaaa)",
			LatestVersion:  "1.1 (bbbbbb)",
			State:          types.VersionStale,
		},
	}
}

func freshResult(name string) version.Result {
	return version.Result{
		Image: types.LocalImageRef{Name: name, Repository: "acme/" + name, Tag: "2.0"},
		Info: types.VersionInfo{
			Name:           name + " Docker Image",
			CurrentVersion: "2.0 (cccccc)",
			LatestVersion:  "2.0",
			State:          types.VersionFresh,
		},
	}
}

func failedResult(name string) version.Result {
	return version.Result{
		Image: types.LocalImageRef{Name: name, Repository: "acme/" + name, Tag: "3.0"},
		Err:   errors.New("registry unavailable"),
	}
}

func render(tplString string, legacy bool, data Data) string {
	tpl, err := getShoutrrrTemplate(tplString, legacy)
	gomega.ExpectWithOffset(1, err).NotTo(gomega.HaveOccurred())

	notifier := &shoutrrrTypeNotifier{template: tpl, legacyTemplate: legacy}

	msg, err := notifier.buildMessage(data)
	gomega.ExpectWithOffset(1, err).NotTo(gomega.HaveOccurred())

	return msg
}

var _ = ginkgo.Describe("Shoutrrr", func() {
	var logBuffer *gbytes.Buffer

	ginkgo.BeforeEach(func() {
		logBuffer = gbytes.NewBuffer()
		logrus.SetOutput(logBuffer)
		logrus.SetLevel(logrus.TraceLevel)
		logrus.SetFormatter(&logrus.TextFormatter{
			DisableColors:    true,
			DisableTimestamp: true,
		})
	})

	ginkgo.AfterEach(func() {
		logrus.SetOutput(ginkgo.GinkgoWriter)
		logrus.SetLevel(logrus.InfoLevel)
	})

	ginkgo.Describe("the default template", func() {
		ginkgo.It("lists stale and failed images", func() {
			data := Data{Report: mockReport(staleResult("web"), freshResult("db"), failedResult("queue"))}

			expected := `3 Scanned, 1 Stale, 0 Unknown, 1 Failed
- web (acme/web): 1.0 (aaaaaa) → 1.1 (bbbbbb)
- queue (acme/queue): Failed: registry unavailable`
			gomega.Expect(render("", false, data)).To(gomega.Equal(expected))
		})

		ginkgo.It("renders nothing when every image is fresh", func() {
			data := Data{Report: mockReport(freshResult("db"), freshResult("api"))}
			gomega.Expect(render("", false, data)).To(gomega.BeEmpty())
		})

		ginkgo.It("renders log entries without a report", func() {
			data := Data{Entries: []*logrus.Entry{{Message: "first"}, {Message: "second"}}}
			gomega.Expect(render("", false, data)).To(gomega.Equal("first\nsecond\n"))
		})
	})

	ginkgo.When("passing a common template name", func() {
		ginkgo.It("formats using that template", func() {
			data := Data{Report: mockReport(staleResult("web"), freshResult("db"))}

			expected := `web (acme/web:1.0): Stale 1.1 (bbbbbb)
db (acme/db:2.0): Fresh 2.0
`
			gomega.Expect(render(`porcelain.v1.summary-no-log`, false, data)).To(gomega.Equal(expected))
		})

		ginkgo.It("reports when no containers matched", func() {
			data := Data{Report: mockReport()}
			gomega.Expect(render(`porcelain.v1.summary-no-log`, false, data)).
				To(gomega.Equal("no containers matched filter"))
		})

		ginkgo.It("renders the JSON template", func() {
			data := Data{
				StaticData: StaticData{Title: "Image versions on mock", Host: "mock"},
				Report:     mockReport(staleResult("web")),
			}

			var decoded map[string]any
			gomega.Expect(json.Unmarshal([]byte(render(`json.v1`, false, data)), &decoded)).To(gomega.Succeed())
			gomega.Expect(decoded).To(gomega.HaveKeyWithValue("host", "mock"))

			report, ok := decoded["report"].(map[string]any)
			gomega.Expect(ok).To(gomega.BeTrue())

			stale, ok := report["stale"].([]any)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(stale).To(gomega.HaveLen(1))
			gomega.Expect(stale[0]).To(gomega.HaveKeyWithValue("container", "web"))
			gomega.Expect(stale[0]).To(gomega.HaveKeyWithValue("image", "acme/web:1.0"))
		})
	})

	ginkgo.When("using legacy templates", func() {
		ginkgo.It("formats entries with the default legacy template", func() {
			entries := []*logrus.Entry{
				{Message: "foo bar"},
				{Message: "Found newer image", Data: logrus.Fields{"container": "web", "newest_version": "1.1"}},
			}

			gomega.Expect(render("", true, Data{Entries: entries})).
				To(gomega.Equal("foo bar\nFound newer image for web: 1.1"))
		})

		ginkgo.It("formats entries with a custom template", func() {
			tplString := `{{range .}}{{.Level}}: {{.Message}}{{println}}{{end}}`
			entries := []*logrus.Entry{{Level: logrus.InfoLevel, Message: "foo bar"}}

			gomega.Expect(render(tplString, true, Data{Entries: entries})).To(gomega.Equal("info: foo bar\n"))
		})
	})

	ginkgo.When("given an invalid custom template", func() {
		ginkgo.It("falls back to the default template", func() {
			notifier := createNotifier(nil, logrus.TraceLevel, `{{ intentionalSyntaxError`, false, StaticData{}, false, 0)
			gomega.Eventually(logBuffer).Should(gbytes.Say("Could not use configured notification template"))

			msg, err := notifier.buildMessage(Data{Report: mockReport(staleResult("web"))})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(msg).To(gomega.HavePrefix("1 Scanned, 1 Stale"))
		})
	})

	ginkgo.When("adding a log hook", func() {
		ginkgo.It("is only added once", func() {
			level := logrus.TraceLevel
			notifier := createNotifier(nil, level, "", true, StaticData{}, false, 0)
			notifier.Router = &recordingRouter{}

			hooksBefore := len(logrus.StandardLogger().Hooks[level])
			notifier.AddLogHook()
			hooksAfter := len(logrus.StandardLogger().Hooks[level])
			gomega.Expect(hooksAfter).To(gomega.BeNumerically(">", hooksBefore))

			notifier.AddLogHook()
			gomega.Expect(len(logrus.StandardLogger().Hooks[level])).To(gomega.Equal(hooksAfter))

			logrus.StandardLogger().ReplaceHooks(make(logrus.LevelHooks))
		})
	})

	ginkgo.When("sending a cycle report", func() {
		ginkgo.It("delivers the rendered message with the title", func() {
			router := &recordingRouter{}
			notifier := createNotifier(
				[]string{"logger://"},
				logrus.InfoLevel,
				"",
				false,
				StaticData{Title: GetTitle("mock", "prod"), Host: "mock"},
				false,
				time.Millisecond,
			)
			notifier.Router = router

			go sendNotifications(notifier)

			notifier.StartNotification()
			notifier.SendNotification(mockReport(staleResult("web")))
			close(notifier.messages)
			gomega.Eventually(notifier.done).Should(gomega.Receive())

			gomega.Expect(router.Messages()).To(gomega.HaveLen(1))
			gomega.Expect(router.Messages()[0]).To(gomega.ContainSubstring("web (acme/web)"))
			gomega.Expect(router.titles).To(gomega.ConsistOf("[prod] Image versions on mock"))
		})

		ginkgo.It("skips empty messages", func() {
			router := &recordingRouter{}
			notifier := createNotifier(nil, logrus.InfoLevel, "", false, StaticData{}, false, 0)
			notifier.Router = router

			notifier.SendNotification(mockReport(freshResult("db")))
			gomega.Expect(notifier.messages).To(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("GetScheme", func() {
		ginkgo.It("extracts the service name", func() {
			gomega.Expect(GetScheme("discord://token@id")).To(gomega.Equal("discord"))
			gomega.Expect(GetScheme("no-scheme")).To(gomega.Equal("invalid"))
		})
	})

	ginkgo.Describe("NewNotifier", func() {
		ginkgo.It("returns nil without notification URLs", func() {
			cmd := new(cobra.Command)
			cmd.PersistentFlags().StringArray("notification-url", nil, "")

			gomega.Expect(NewNotifier(cmd)).To(gomega.BeNil())
		})
	})
})
