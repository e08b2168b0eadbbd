package cache_test

import (
	"encoding/json"
	"sync"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/spf13/afero"

	"github.com/nicholas-fedor/versiontower/pkg/registry/cache"
)

// lookupRecorder records cache lookup results.
type lookupRecorder struct {
	mu      sync.Mutex
	results []string
}

func (r *lookupRecorder) CacheLookup(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.results = append(r.results, result)
}

func (r *lookupRecorder) RegistryRequest(string, int) {}

// countingStore wraps a store and counts loads.
type countingStore struct {
	cache.Store
	loads int
}

func (s *countingStore) Load(key cache.Key) ([]byte, bool, error) {
	s.loads++

	return s.Store.Load(key)
}

func ptr(s string) *string { return &s }

const manifestBody = `{"schemaVersion":2,"config":{"digest":"sha256:aaaa11"}}`

var _ = ginkgo.Describe("Cache", func() {
	var (
		key      cache.Key
		store    *countingStore
		recorder *lookupRecorder
		c        *cache.Cache
	)

	ginkgo.BeforeEach(func() {
		key = cache.Key{Repository: "acme/app", Tag: "1.4.0", Variant: "v2"}
		store = &countingStore{Store: cache.NewMemoryStore()}
		recorder = &lookupRecorder{}
		c = cache.New(store, recorder)
	})

	ginkgo.It("misses without touching the store when no date is known", func() {
		gomega.Expect(c.Put(key, []byte(manifestBody), "D1")).To(gomega.Succeed())

		result, payload := c.Get(key, nil)
		gomega.Expect(result).To(gomega.Equal(cache.Miss))
		gomega.Expect(payload).To(gomega.BeNil())
		gomega.Expect(store.loads).To(gomega.BeZero())
	})

	ginkgo.It("serves a positive entry with the injected creation date", func() {
		gomega.Expect(c.Put(key, []byte(manifestBody), "D1")).To(gomega.Succeed())

		result, payload := c.Get(key, ptr("D1"))
		gomega.Expect(result).To(gomega.Equal(cache.HitValid))

		var decoded map[string]any
		gomega.Expect(json.Unmarshal(payload, &decoded)).To(gomega.Succeed())
		gomega.Expect(decoded).To(gomega.HaveKeyWithValue("creation_date", "D1"))
		gomega.Expect(decoded).To(gomega.HaveKeyWithValue("schemaVersion", float64(2)))
		gomega.Expect(recorder.results).To(gomega.Equal([]string{"hit"}))
	})

	ginkgo.It("serves a negative entry", func() {
		gomega.Expect(c.Put(key, nil, "D1")).To(gomega.Succeed())

		result, payload := c.Get(key, ptr("D1"))
		gomega.Expect(result).To(gomega.Equal(cache.HitNegative))
		gomega.Expect(payload).To(gomega.BeNil())
	})

	ginkgo.It("deletes a stale entry from both tiers", func() {
		gomega.Expect(c.Put(key, []byte(manifestBody), "D1")).To(gomega.Succeed())

		result, _ := c.Get(key, ptr("D2"))
		gomega.Expect(result).To(gomega.Equal(cache.Miss))

		_, ok, err := store.Load(key)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(ok).To(gomega.BeFalse())

		result, _ = c.Get(key, ptr("D1"))
		gomega.Expect(result).To(gomega.Equal(cache.Miss))
		gomega.Expect(recorder.results).To(gomega.Equal([]string{"stale", "miss"}))
	})

	ginkgo.It("invalidates a negative entry once the date changes", func() {
		gomega.Expect(c.Put(key, nil, "D1")).To(gomega.Succeed())

		result, _ := c.Get(key, ptr("D2"))
		gomega.Expect(result).To(gomega.Equal(cache.Miss))
	})

	ginkgo.It("falls back to the durable tier for a new cache instance", func() {
		gomega.Expect(c.Put(key, []byte(manifestBody), "D1")).To(gomega.Succeed())

		fresh := cache.New(store, nil)
		result, payload := fresh.Get(key, ptr("D1"))
		gomega.Expect(result).To(gomega.Equal(cache.HitValid))
		gomega.Expect(payload).NotTo(gomega.BeEmpty())
		gomega.Expect(store.loads).To(gomega.Equal(1))

		// Served from memory now.
		fresh.Get(key, ptr("D1"))
		gomega.Expect(store.loads).To(gomega.Equal(1))
	})

	ginkgo.It("evicts the least recently used entry from memory", func() {
		bounded := cache.NewSized(store, nil, 2)
		other := cache.Key{Repository: "acme/app", Tag: "1.5.0", Variant: "v2"}
		third := cache.Key{Repository: "acme/app", Tag: "1.6.0", Variant: "v2"}

		gomega.Expect(bounded.Put(key, []byte(manifestBody), "D1")).To(gomega.Succeed())
		gomega.Expect(bounded.Put(other, []byte(manifestBody), "D1")).To(gomega.Succeed())
		gomega.Expect(bounded.Put(third, []byte(manifestBody), "D1")).To(gomega.Succeed())

		result, _ := bounded.Get(third, ptr("D1"))
		gomega.Expect(result).To(gomega.Equal(cache.HitValid))
		gomega.Expect(store.loads).To(gomega.BeZero())

		result, _ = bounded.Get(key, ptr("D1"))
		gomega.Expect(result).To(gomega.Equal(cache.HitValid))
		gomega.Expect(store.loads).To(gomega.Equal(1))
	})

	ginkgo.It("keeps a bounded memory tier without a durable store", func() {
		memoryOnly := cache.NewSized(nil, nil, 1)
		other := cache.Key{Repository: "acme/app", Tag: "1.5.0", Variant: "v2"}

		gomega.Expect(memoryOnly.Put(key, []byte(manifestBody), "D1")).To(gomega.Succeed())

		result, _ := memoryOnly.Get(key, ptr("D1"))
		gomega.Expect(result).To(gomega.Equal(cache.HitValid))

		gomega.Expect(memoryOnly.Put(other, nil, "D1")).To(gomega.Succeed())

		result, _ = memoryOnly.Get(key, ptr("D1"))
		gomega.Expect(result).To(gomega.Equal(cache.Miss))
	})

	ginkgo.It("discards unreadable durable entries", func() {
		gomega.Expect(store.Save(key, []byte("not json"))).To(gomega.Succeed())

		result, _ := c.Get(key, ptr("D1"))
		gomega.Expect(result).To(gomega.Equal(cache.Miss))

		_, ok, _ := store.Load(key)
		gomega.Expect(ok).To(gomega.BeFalse())
	})

	ginkgo.It("rejects positive bodies that are not JSON objects", func() {
		gomega.Expect(c.Put(key, []byte(`[1,2]`), "D1")).NotTo(gomega.Succeed())
	})

	ginkgo.It("distinguishes lookup results by name", func() {
		gomega.Expect(cache.Miss.String()).To(gomega.Equal("miss"))
		gomega.Expect(cache.HitValid.String()).To(gomega.Equal("hit"))
		gomega.Expect(cache.HitNegative.String()).To(gomega.Equal("negative_hit"))
	})
})

var _ = ginkgo.Describe("FileStore", func() {
	var (
		fsys  afero.Fs
		store *cache.FileStore
		key   cache.Key
	)

	ginkgo.BeforeEach(func() {
		fsys = afero.NewMemMapFs()
		store = cache.NewFileStore(fsys, "/var/cache/versiontower")
		key = cache.Key{
			Repository: "library/nginx",
			Tag:        "1.27",
			Variant:    "vnd.docker.distribution.manifest.v2+json",
		}
	})

	ginkgo.It("lays entries out per repository, tag and variant", func() {
		file, err := store.Path(key)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(file).To(gomega.Equal(
			"/var/cache/versiontower/manifests/library/nginx/1.27/vnd.docker.distribution.manifest.v2+json.json"))
	})

	ginkgo.It("saves, loads and deletes entries", func() {
		gomega.Expect(store.Save(key, []byte(`{"a":1}`))).To(gomega.Succeed())

		payload, ok, err := store.Load(key)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(string(payload)).To(gomega.Equal(`{"a":1}`))

		gomega.Expect(store.Delete(key)).To(gomega.Succeed())
		gomega.Expect(store.Delete(key)).To(gomega.Succeed())

		_, ok, err = store.Load(key)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(ok).To(gomega.BeFalse())
	})

	ginkgo.It("replaces entries whole and leaves no temporary files", func() {
		gomega.Expect(store.Save(key, []byte(`{"first":true,"padding":"xxxxxxxxxxxx"}`))).To(gomega.Succeed())
		gomega.Expect(store.Save(key, []byte(`{"second":true}`))).To(gomega.Succeed())

		payload, _, err := store.Load(key)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(string(payload)).To(gomega.Equal(`{"second":true}`))

		file, _ := store.Path(key)
		entries, err := afero.ReadDir(fsys, "/var/cache/versiontower/manifests/library/nginx/1.27")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(entries).To(gomega.HaveLen(1))
		gomega.Expect(file).To(gomega.HaveSuffix(entries[0].Name()))
	})

	ginkgo.DescribeTable("rejects keys that escape the cache root",
		func(k cache.Key) {
			_, err := store.Path(k)
			gomega.Expect(err).To(gomega.HaveOccurred())
		},
		ginkgo.Entry("parent tag", cache.Key{Repository: "acme/app", Tag: "..", Variant: "v2"}),
		ginkgo.Entry("slash in tag", cache.Key{Repository: "acme/app", Tag: "a/b", Variant: "v2"}),
		ginkgo.Entry("parent repository segment", cache.Key{Repository: "acme/../../etc", Tag: "x", Variant: "v2"}),
		ginkgo.Entry("empty repository", cache.Key{Tag: "x", Variant: "v2"}),
	)

	ginkgo.It("backs a Cache across instances", func() {
		first := cache.New(store, nil)
		gomega.Expect(first.Put(key, nil, "2024-05-01T00:00:00Z")).To(gomega.Succeed())

		second := cache.New(cache.NewFileStore(fsys, "/var/cache/versiontower"), nil)
		result, _ := second.Get(key, ptr("2024-05-01T00:00:00Z"))
		gomega.Expect(result).To(gomega.Equal(cache.HitNegative))
	})
})
