package registry

import (
	"os"
	"path/filepath"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

var _ = ginkgo.Describe("Registry credential helpers", func() {
	ginkgo.BeforeEach(func() {
		ginkgo.GinkgoT().Setenv("REPO_USER", "")
		ginkgo.GinkgoT().Setenv("REPO_PASS", "")
	})

	ginkgo.Describe("EnvCredentials", func() {
		ginkgo.It("should return repo credentials from env when set", func() {
			ginkgo.GinkgoT().Setenv("REPO_USER", "versiontower-user")
			ginkgo.GinkgoT().Setenv("REPO_PASS", "versiontower-pass")

			creds, err := EnvCredentials()
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(creds.Username).To(gomega.Equal("versiontower-user"))
			gomega.Expect(creds.Password).To(gomega.Equal("versiontower-pass"))
		})

		ginkgo.It("should return an error if repo envs are unset", func() {
			_, err := EnvCredentials()
			gomega.Expect(err).To(gomega.MatchError(errUnsetRegAuthVars))
		})
	})

	ginkgo.Describe("ConfigCredentials", func() {
		ginkgo.It("should return an error if file is not present", func() {
			ginkgo.GinkgoT().Setenv("DOCKER_CONFIG", "/dev/null/should-fail")

			_, err := ConfigCredentials("acme/app")
			gomega.Expect(err).To(gomega.HaveOccurred())
		})

		ginkgo.It("should read credentials for the image's registry", func() {
			dir := ginkgo.GinkgoT().TempDir()
			config := `{"auths":{"https://index.docker.io/v1/":{"auth":"YWNtZTpzM2NyM3Q="}}}`
			gomega.Expect(os.WriteFile(filepath.Join(dir, "config.json"), []byte(config), 0o600)).To(gomega.Succeed())
			ginkgo.GinkgoT().Setenv("DOCKER_CONFIG", dir)

			creds, err := ConfigCredentials("acme/app")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(creds).NotTo(gomega.BeNil())
			gomega.Expect(creds.Username).To(gomega.Equal("acme"))
			gomega.Expect(creds.Password).To(gomega.Equal("s3cr3t"))
		})

		ginkgo.It("should return nothing when the registry has no entry", func() {
			dir := ginkgo.GinkgoT().TempDir()
			gomega.Expect(os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"auths":{}}`), 0o600)).To(gomega.Succeed())
			ginkgo.GinkgoT().Setenv("DOCKER_CONFIG", dir)

			creds, err := ConfigCredentials("ghcr.io/acme/app")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(creds).To(gomega.BeNil())
		})
	})

	ginkgo.Describe("Credentials", func() {
		ginkgo.It("prefers the environment over the config file", func() {
			ginkgo.GinkgoT().Setenv("REPO_USER", "env-user")
			ginkgo.GinkgoT().Setenv("REPO_PASS", "env-pass")
			ginkgo.GinkgoT().Setenv("DOCKER_CONFIG", "/dev/null/should-fail")

			creds, err := Credentials("acme/app")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(creds.Username).To(gomega.Equal("env-user"))
		})
	})
})
