package tags_test

import (
	"context"
	"net/http"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/nicholas-fedor/versiontower/pkg/registry/tags"
	"github.com/nicholas-fedor/versiontower/pkg/types"
)

func drain(ctx context.Context, it types.TagIterator) ([]string, error) {
	var names []string

	for {
		tag, err := it.Next(ctx)
		if err != nil {
			return names, err
		}

		if tag == nil {
			return names, nil
		}

		names = append(names, tag.Name)
	}
}

func strPtr(s string) *string { return &s }

var _ = ginkgo.Describe("Lister", func() {
	var (
		server *ghttp.Server
		lister *tags.Lister
		ctx    context.Context
	)

	ginkgo.BeforeEach(func() {
		server = ghttp.NewServer()
		ctx = context.Background()
		lister = tags.NewLister(tags.Options{HubURL: server.URL(), UserAgent: "versiontower-test"})
	})

	ginkgo.AfterEach(func() {
		server.Close()
	})

	ginkgo.It("builds the Docker Hub listing URL ordered by last update", func() {
		gomega.Expect(tags.NewLister(tags.Options{}).FirstPageURL("library/nginx")).To(gomega.Equal(
			"https://hub.docker.com/v2/repositories/library/nginx/tags/?ordering=last_updated&page_size=100"))
	})

	ginkgo.It("does not request anything until the first tag is needed", func() {
		lister.Enumerate("acme/app")
		gomega.Expect(server.ReceivedRequests()).To(gomega.BeEmpty())
	})

	ginkgo.It("follows next cursors and stops at a nil cursor", func() {
		second := server.URL() + "/v2/repositories/acme/app/tags/?page=2"

		server.AppendHandlers(
			ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodGet, "/v2/repositories/acme/app/tags/",
					"page_size=100&ordering=last_updated"),
				ghttp.VerifyHeaderKV("User-Agent", "versiontower-test"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, types.TagListPage{
					Count: 3,
					Next:  strPtr(second),
					Results: []types.TagInfo{
						{Name: "1.5.0", LastUpdated: "2024-05-02T00:00:00Z"},
						{Name: "latest", LastUpdated: "2024-05-02T00:00:00Z"},
					},
				}),
			),
			ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodGet, "/v2/repositories/acme/app/tags/", "page=2"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, types.TagListPage{
					Results: []types.TagInfo{{Name: "1.4.0", LastUpdated: "2024-04-01T00:00:00Z"}},
				}),
			),
		)

		it := lister.Enumerate("acme/app")

		names, err := drain(ctx, it)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(names).To(gomega.Equal([]string{"1.5.0", "latest", "1.4.0"}))

		// Exhausted for good, without refetching.
		tag, err := it.Next(ctx)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(tag).To(gomega.BeNil())
		gomega.Expect(server.ReceivedRequests()).To(gomega.HaveLen(2))
	})

	ginkgo.It("yields nothing for a repository without tags", func() {
		server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"count":0,"next":null,"results":[]}`))

		tag, err := lister.Enumerate("acme/empty").Next(ctx)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(tag).To(gomega.BeNil())
	})

	ginkgo.It("orders each page newest-first", func() {
		server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"next":null,"results":[
			{"name":"old","last_updated":"2023-01-01T00:00:00Z"},
			{"name":"undated","last_updated":""},
			{"name":"new","last_updated":"2024-01-01T00:00:00.5Z"},
			{"name":"newer","last_updated":"2024-01-01T00:00:01Z"}
		]}`))

		names, err := drain(ctx, lister.Enumerate("acme/app"))
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(names).To(gomega.Equal([]string{"newer", "new", "old", "undated"}))
	})

	ginkgo.It("fails with ErrRegistryUnavailable on a non-2xx listing and stays failed", func() {
		server.AppendHandlers(ghttp.RespondWith(http.StatusServiceUnavailable, nil))

		it := lister.Enumerate("acme/app")

		_, err := it.Next(ctx)
		gomega.Expect(err).To(gomega.MatchError(tags.ErrRegistryUnavailable))

		_, err = it.Next(ctx)
		gomega.Expect(err).To(gomega.MatchError(tags.ErrRegistryUnavailable))
		gomega.Expect(server.ReceivedRequests()).To(gomega.HaveLen(1))
	})

	ginkgo.It("returns buffered tags before failing on the next page", func() {
		server.AppendHandlers(
			ghttp.RespondWithJSONEncoded(http.StatusOK, types.TagListPage{
				Next:    strPtr(server.URL() + "/next"),
				Results: []types.TagInfo{{Name: "1.0.0"}},
			}),
			ghttp.RespondWith(http.StatusTooManyRequests, nil),
		)

		names, err := drain(ctx, lister.Enumerate("acme/app"))
		gomega.Expect(names).To(gomega.Equal([]string{"1.0.0"}))
		gomega.Expect(err).To(gomega.MatchError(tags.ErrRegistryUnavailable))
	})

	ginkgo.It("keeps enumerators independent", func() {
		page := `{"next":null,"results":[{"name":"a"},{"name":"b"}]}`
		server.AppendHandlers(
			ghttp.RespondWith(http.StatusOK, page),
			ghttp.RespondWith(http.StatusOK, page),
		)

		first := lister.Enumerate("acme/app")
		tag, err := first.Next(ctx)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(tag.Name).To(gomega.Equal("a"))

		names, err := drain(ctx, lister.Enumerate("acme/app"))
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(names).To(gomega.Equal([]string{"a", "b"}))
	})
})
