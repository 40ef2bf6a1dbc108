package integration

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/catalog-aggregator/test-integration/catalog-api/helpers"
)

var _ = Describe("Catalog Aggregation", Label("repos"), func() {
	var (
		tempDir      string
		upstream     *helpers.MockSourceServer
		serverHelper *helpers.ServerTestHelper
	)

	startServer := func(sources []string, opts helpers.ConfigOptions) {
		configFile := helpers.WriteConfigYAML(tempDir, sources, opts)

		var err error
		serverHelper, err = helpers.NewServerTestHelper(ctx, configFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)
	}

	BeforeEach(func() {
		tempDir = createTempDir("catalog-test-")

		upstream = helpers.NewMockSourceServerBuilder().
			// A only answers on /apps.json
			WithDocument("/a/apps.json", `{"name":"A","apps":[{"name":"first"},{"name":"second"}]}`).
			// B answers on the bare URL with junk around the document
			WithDocument("/b", "\ufeff<pre>{\"name\":\"B\",\"apps\":[]}</pre>\n").
			// D answers on /repo.json after the earlier suffixes fail
			WithDocument("/d/app.json", `{"name":"D"}`).
			WithDocument("/d/repo.json", `{"name":"D","apps":"x"}`).
			WithHangingPath("/slow").
			Build()
	})

	AfterEach(func() {
		if serverHelper != nil {
			Expect(serverHelper.StopServer()).To(Succeed())
			serverHelper = nil
		}
		upstream.Close()
		cleanupTempDir(tempDir)
	})

	Context("Resolving sources", func() {
		It("should return resolved sources in configuration order and drop the rest", func() {
			sources := []string{
				upstream.URL + "/a",
				upstream.URL + "/b/",
				upstream.URL + "/c",
				upstream.URL + "/d",
			}
			startServer(sources, helpers.ConfigOptions{})

			repos, resp, err := serverHelper.GetRepos()
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))

			Expect(repos).To(HaveLen(3))
			Expect(repos[0].URL).To(Equal(upstream.URL + "/a"))
			Expect(repos[0].Data).To(MatchJSON(`{"name":"A","apps":[{"name":"first"},{"name":"second"}]}`))
			Expect(repos[1].URL).To(Equal(upstream.URL + "/b/"))
			Expect(repos[1].Data).To(MatchJSON(`{"name":"B","apps":[]}`))
			Expect(repos[2].URL).To(Equal(upstream.URL + "/d"))
			Expect(repos[2].Data).To(MatchJSON(`{"name":"D","apps":"x"}`))

			By("trying every suffix of the unresolvable source exactly once")
			for _, suffix := range []string{"", "/apps.json", "/repo.json", "/altstore.php"} {
				Expect(upstream.Hits("/c"+suffix)).To(Equal(1), "suffix %q", suffix)
			}

			By("stopping at the first valid candidate")
			Expect(upstream.Hits("/a/app.json")).To(BeZero())
			Expect(upstream.Hits("/b/apps.json")).To(BeZero())
		})

		It("should give up on a source that never answers", func() {
			sources := []string{upstream.URL + "/slow", upstream.URL + "/a"}
			startServer(sources, helpers.ConfigOptions{
				FetchTimeout: "500ms",
				Suffixes:     []string{"", "/apps.json"},
			})

			start := time.Now()
			repos, resp, err := serverHelper.GetRepos()
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			Expect(repos).To(HaveLen(1))
			Expect(repos[0].URL).To(Equal(upstream.URL + "/a"))
			Expect(time.Since(start)).To(BeNumerically("<", 5*time.Second))
			Expect(upstream.Hits("/slow")).To(Equal(1))
			Expect(upstream.Hits("/slow/apps.json")).To(Equal(1))
		})

		It("should return an empty array when nothing resolves", func() {
			startServer([]string{upstream.URL + "/c"}, helpers.ConfigOptions{Suffixes: []string{""}})

			resp, err := serverHelper.Get("/api/repos")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(MatchJSON(`[]`))
		})
	})

	Context("Caching", func() {
		It("should serve repeated requests from the cache", func() {
			startServer([]string{upstream.URL + "/a", upstream.URL + "/b"}, helpers.ConfigOptions{CacheTTL: "1h"})

			first, _, err := serverHelper.GetRepos()
			Expect(err).NotTo(HaveOccurred())
			hits := upstream.TotalHits()

			second, _, err := serverHelper.GetRepos()
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))
			Expect(upstream.TotalHits()).To(Equal(hits))

			resp, err := serverHelper.Get("/api/info")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(body).To(ContainSubstring(`"resolved":2`))
			Expect(body).To(ContainSubstring(`"cached":true`))
		})

		It("should rebuild the result after the TTL has elapsed", func() {
			startServer([]string{upstream.URL + "/b"}, helpers.ConfigOptions{CacheTTL: "200ms"})

			_, _, err := serverHelper.GetRepos()
			Expect(err).NotTo(HaveOccurred())
			Expect(upstream.Hits("/b")).To(Equal(1))

			time.Sleep(300 * time.Millisecond)

			_, _, err = serverHelper.GetRepos()
			Expect(err).NotTo(HaveOccurred())
			Expect(upstream.Hits("/b")).To(Equal(2))
		})

		It("should run a single aggregation for concurrent cold requests", func() {
			startServer([]string{upstream.URL + "/a", upstream.URL + "/b"}, helpers.ConfigOptions{})

			var wg sync.WaitGroup
			for range 8 {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()

					repos, _, err := serverHelper.GetRepos()
					Expect(err).NotTo(HaveOccurred())
					Expect(repos).To(HaveLen(2))
				}()
			}
			wg.Wait()

			Expect(upstream.Hits("/a/apps.json")).To(Equal(1))
			Expect(upstream.Hits("/b")).To(Equal(1))
		})
	})

	Context("Serving the front-end", func() {
		It("should fall back to index.html for unknown paths", func() {
			staticDir := filepath.Join(tempDir, "public")
			Expect(os.MkdirAll(staticDir, 0750)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(staticDir, "index.html"), []byte("<html>catalog</html>"), 0600)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(staticDir, "app.js"), []byte("console.log(1)"), 0600)).To(Succeed())

			startServer([]string{upstream.URL + "/b"}, helpers.ConfigOptions{StaticDir: staticDir})

			for path, want := range map[string]string{
				"/":            "<html>catalog</html>",
				"/app.js":      "console.log(1)",
				"/some/route":  "<html>catalog</html>",
				"/api/unknown": "<html>catalog</html>",
			} {
				resp, err := serverHelper.Get(path)
				Expect(err).NotTo(HaveOccurred())
				body, err := io.ReadAll(resp.Body)
				resp.Body.Close()
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK), "path %s", path)
				Expect(string(body)).To(Equal(want), "path %s", path)
			}
		})
	})
})
