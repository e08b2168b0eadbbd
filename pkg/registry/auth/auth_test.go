package auth_test

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/nicholas-fedor/versiontower/pkg/registry/auth"
	"github.com/nicholas-fedor/versiontower/pkg/types"
)

// countingObserver records registry requests.
type countingObserver struct {
	mu       sync.Mutex
	requests map[string][]int
}

func (o *countingObserver) RegistryRequest(endpoint string, statusCode int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.requests == nil {
		o.requests = map[string][]int{}
	}

	o.requests[endpoint] = append(o.requests[endpoint], statusCode)
}

func (o *countingObserver) CacheLookup(string) {}

var _ = ginkgo.Describe("Client", func() {
	var (
		server   *ghttp.Server
		client   *auth.Client
		observer *countingObserver
		ctx      context.Context
	)

	ginkgo.BeforeEach(func() {
		server = ghttp.NewServer()
		observer = &countingObserver{}
		ctx = context.Background()
		client = auth.NewClient(auth.Options{
			Realm:     server.URL() + "/token",
			Service:   "registry.example",
			UserAgent: "versiontower-test",
			Observer:  observer,
		})
	})

	ginkgo.AfterEach(func() {
		server.Close()
	})

	ginkgo.It("requests a pull-scope token for the repository", func() {
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodGet, "/token",
				"scope=repository%3Aacme%2Fapp%3Apull&service=registry.example"),
			ghttp.VerifyHeaderKV("User-Agent", "versiontower-test"),
			ghttp.RespondWithJSONEncoded(http.StatusOK, types.TokenResponse{Token: "t0k3n"}),
		))

		token, err := client.GetToken(ctx, "acme/app")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(token).To(gomega.Equal("t0k3n"))
		gomega.Expect(observer.requests["token"]).To(gomega.Equal([]int{http.StatusOK}))
	})

	ginkgo.It("accepts access_token when token is absent", func() {
		server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"access_token":"from-oauth"}`))

		token, err := client.GetToken(ctx, "acme/app")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(token).To(gomega.Equal("from-oauth"))
	})

	ginkgo.It("sends basic credentials when configured", func() {
		client = auth.NewClient(auth.Options{
			Realm:       server.URL() + "/token",
			Credentials: &types.RegistryCredentials{Username: "acme", Password: "s3cr3t"},
		})

		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyBasicAuth("acme", "s3cr3t"),
			ghttp.RespondWith(http.StatusOK, `{"token":"private"}`),
		))

		token, err := client.GetToken(ctx, "acme/private")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(token).To(gomega.Equal("private"))
	})

	ginkgo.It("memoises tokens per repository", func() {
		server.AppendHandlers(
			ghttp.RespondWith(http.StatusOK, `{"token":"first"}`),
			ghttp.RespondWith(http.StatusOK, `{"token":"second"}`),
		)

		first, err := client.GetToken(ctx, "acme/app")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		again, err := client.GetToken(ctx, "acme/app")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(again).To(gomega.Equal(first))

		other, err := client.GetToken(ctx, "acme/other")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(other).To(gomega.Equal("second"))
		gomega.Expect(server.ReceivedRequests()).To(gomega.HaveLen(2))
	})

	ginkgo.DescribeTable("fails with ErrAuthFailure",
		func(handler http.HandlerFunc) {
			server.AppendHandlers(handler)

			_, err := client.GetToken(ctx, "acme/app")
			gomega.Expect(err).To(gomega.MatchError(auth.ErrAuthFailure))
		},
		ginkgo.Entry("on a non-2xx status", ghttp.RespondWith(http.StatusUnauthorized, `{"details":"nope"}`)),
		ginkgo.Entry("on an undecodable body", ghttp.RespondWith(http.StatusOK, `<html>`)),
		ginkgo.Entry("when the token is empty", ghttp.RespondWith(http.StatusOK, `{"token":""}`)),
	)

	ginkgo.It("fails when the endpoint is unreachable", func() {
		unreachable := server.URL() + "/token"
		server.Close()

		client = auth.NewClient(auth.Options{Realm: unreachable, Observer: observer})

		_, err := client.GetToken(ctx, "acme/app")
		gomega.Expect(err).To(gomega.MatchError(auth.ErrAuthFailure))
		gomega.Expect(observer.requests["token"]).To(gomega.Equal([]int{0}))
	})

	ginkgo.It("remembers a failed exchange for the rest of the cycle", func() {
		server.AppendHandlers(
			ghttp.RespondWith(http.StatusInternalServerError, nil),
			ghttp.RespondWith(http.StatusOK, `{"token":"late"}`),
		)

		_, err := client.GetToken(ctx, "acme/app")
		gomega.Expect(err).To(gomega.HaveOccurred())

		_, err = client.GetToken(ctx, "acme/app")
		gomega.Expect(err).To(gomega.MatchError(auth.ErrAuthFailure))
		gomega.Expect(server.ReceivedRequests()).To(gomega.HaveLen(1))
	})

	ginkgo.It("retries a failed exchange after Reset", func() {
		server.AppendHandlers(
			ghttp.RespondWith(http.StatusServiceUnavailable, nil),
			ghttp.RespondWith(http.StatusOK, `{"token":"recovered"}`),
		)

		_, err := client.GetToken(ctx, "acme/app")
		gomega.Expect(err).To(gomega.MatchError(auth.ErrAuthFailure))

		client.Reset()

		token, err := client.GetToken(ctx, "acme/app")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(token).To(gomega.Equal("recovered"))
		gomega.Expect(server.ReceivedRequests()).To(gomega.HaveLen(2))
	})

	ginkgo.Describe("memo lifetime", func() {
		var clock time.Time

		ginkgo.BeforeEach(func() {
			clock = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
			client.SetClock(func() time.Time { return clock })
		})

		ginkgo.It("retries a failed exchange once FailureTTL has passed", func() {
			server.AppendHandlers(
				ghttp.RespondWith(http.StatusServiceUnavailable, nil),
				ghttp.RespondWith(http.StatusOK, `{"token":"later"}`),
			)

			_, err := client.GetToken(ctx, "acme/app")
			gomega.Expect(err).To(gomega.HaveOccurred())

			clock = clock.Add(auth.FailureTTL - time.Second)
			_, err = client.GetToken(ctx, "acme/app")
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(server.ReceivedRequests()).To(gomega.HaveLen(1))

			clock = clock.Add(2 * time.Second)
			token, err := client.GetToken(ctx, "acme/app")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(token).To(gomega.Equal("later"))
		})

		ginkgo.It("expires tokens issued without expires_in after DefaultTokenTTL", func() {
			server.AppendHandlers(
				ghttp.RespondWith(http.StatusOK, `{"token":"first"}`),
				ghttp.RespondWith(http.StatusOK, `{"token":"second"}`),
			)

			first, err := client.GetToken(ctx, "acme/app")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(first).To(gomega.Equal("first"))

			clock = clock.Add(auth.DefaultTokenTTL + time.Second)

			second, err := client.GetToken(ctx, "acme/app")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(second).To(gomega.Equal("second"))
		})

		ginkgo.It("honours expires_in", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"token":"long","expires_in":300}`))

			_, err := client.GetToken(ctx, "acme/app")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			clock = clock.Add(299 * time.Second)

			token, err := client.GetToken(ctx, "acme/app")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(token).To(gomega.Equal("long"))
			gomega.Expect(server.ReceivedRequests()).To(gomega.HaveLen(1))
		})
	})

	ginkgo.Describe("TokenURL", func() {
		ginkgo.It("uses the Docker Hub defaults", func() {
			tokenURL, err := auth.NewClient(auth.Options{}).TokenURL("library/nginx")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(tokenURL.Scheme + "://" + tokenURL.Host + tokenURL.Path).To(gomega.Equal(auth.DefaultRealm))
			gomega.Expect(tokenURL.Query()).To(gomega.Equal(url.Values{
				"service": []string{auth.DefaultService},
				"scope":   []string{"repository:library/nginx:pull"},
			}))
		})
	})
})
