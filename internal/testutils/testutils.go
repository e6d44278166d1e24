//go:build integration

// Package testutils provides shared test infrastructure for integration tests.
package testutils

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gocloud.dev/blob"
)

// Page is one resource served by a Site.
type Page struct {
	Body []byte

	// RateLimited is the number of requests answered with 429 before Body
	// is served.
	RateLimited int

	// RetryAfter, when set, is sent with every rate-limited response.
	RetryAfter int
}

// Site is a test HTTP server serving fixed pages by path.
type Site struct {
	*httptest.Server

	mu       sync.Mutex
	pages    map[string]*Page
	requests map[string]int
	agents   map[string]bool
}

// StartSite starts a Site serving pages. Unknown paths answer 404.
func StartSite(t *testing.T, pages map[string]*Page) *Site {
	t.Helper()

	s := &Site{
		pages:    pages,
		requests: make(map[string]int),
		agents:   make(map[string]bool),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *Site) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests[r.URL.Path]++
	n := s.requests[r.URL.Path]
	s.agents[r.UserAgent()] = true
	page, ok := s.pages[r.URL.Path]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if n <= page.RateLimited {
		if page.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(page.RetryAfter))
		}
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(page.Body)))
	w.Write(page.Body)
}

// Requests returns how many times path was requested.
func (s *Site) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

// UserAgents returns every User-Agent seen so far.
func (s *Site) UserAgents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.agents))
	for ua := range s.agents {
		out = append(out, ua)
	}
	return out
}

// MinioEnv contains connection information for a Minio test environment.
type MinioEnv struct {
	Container testcontainers.Container
	BucketURL string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Close terminates the Minio container.
func (e *MinioEnv) Close(ctx context.Context) error {
	if e.Container != nil {
		return e.Container.Terminate(ctx)
	}
	return nil
}

// OpenBucket opens a gocloud bucket connection to the Minio environment.
func (e *MinioEnv) OpenBucket(ctx context.Context) (*blob.Bucket, error) {
	return blob.OpenBucket(ctx, e.BucketURL)
}

// StartMinioContainer starts a Minio container with the named buckets
// pre-created. BucketURL points at the first one; URL builds the others.
func StartMinioContainer(t *testing.T, ctx context.Context, buckets ...string) *MinioEnv {
	t.Helper()

	if len(buckets) == 0 {
		t.Fatal("StartMinioContainer: at least one bucket is required")
	}

	const (
		accessKey = "minioadmin"
		secretKey = "minioadmin"
	)

	networkName := fmt.Sprintf("itchy-test-net-%d", time.Now().UnixNano())
	network, err := testcontainers.GenericNetwork(ctx, testcontainers.GenericNetworkRequest{
		NetworkRequest: testcontainers.NetworkRequest{
			Name: networkName,
		},
	})
	if err != nil {
		t.Fatalf("create network: %v", err)
	}
	t.Cleanup(func() { network.Remove(ctx) })

	minioContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Networks:     []string{networkName},
			NetworkAliases: map[string][]string{
				networkName: {"minio"},
			},
			Env: map[string]string{
				"MINIO_ROOT_USER":     accessKey,
				"MINIO_ROOT_PASSWORD": secretKey,
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/ready").WithPort("9000"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start minio container: %v", err)
	}

	for _, b := range buckets {
		makeBucket(t, ctx, networkName, accessKey, secretKey, b)
	}

	host, err := minioContainer.Host(ctx)
	if err != nil {
		t.Fatalf("get container host: %v", err)
	}
	port, err := minioContainer.MappedPort(ctx, "9000")
	if err != nil {
		t.Fatalf("get container port: %v", err)
	}

	env := &MinioEnv{
		Container: minioContainer,
		Endpoint:  fmt.Sprintf("%s:%s", host, port.Port()),
		AccessKey: accessKey,
		SecretKey: secretKey,
	}
	env.BucketURL = env.URL(buckets[0])

	// gocloud's s3blob reads credentials from the environment
	t.Setenv("AWS_ACCESS_KEY_ID", accessKey)
	t.Setenv("AWS_SECRET_ACCESS_KEY", secretKey)

	return env
}

// URL returns the gocloud S3 URL for bucket on this Minio instance.
func (e *MinioEnv) URL(bucket string) string {
	return fmt.Sprintf("s3://%s?endpoint=http://%s&use_path_style=true&disable_https=true&region=us-east-1",
		bucket, e.Endpoint)
}

// makeBucket creates a bucket using a short-lived minio/mc container.
func makeBucket(t *testing.T, ctx context.Context, networkName, accessKey, secretKey, bucketName string) {
	t.Helper()

	mcContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:      "minio/mc:latest",
			Networks:   []string{networkName},
			Entrypoint: []string{"/bin/sh", "-c"},
			Cmd: []string{
				fmt.Sprintf(
					"/usr/bin/mc alias set itchy http://minio:9000 %s %s && "+
						"/usr/bin/mc mb --ignore-existing itchy/%s; "+
						"exit 0",
					accessKey, secretKey, bucketName,
				),
			},
			WaitingFor: wait.ForExit(),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start mc container: %v", err)
	}
	defer mcContainer.Terminate(ctx)
}
