package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/cyphernode-status/internal/config"
	"github.com/JakeFAU/cyphernode-status/internal/progress"
)

const testKeyFile = `kapi_id="000";kapi_key="f6ea3bd2d7ab65ba4b5d2a8e3e2f5a5d";kapi_groups="stats";eval ugroups_${kapi_id}=${kapi_groups}`

func TestRootCommandRegistersSubcommands(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	require.Contains(t, names, "serve")
	require.Contains(t, names, "watch")
	require.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestResolveRuntimeMissing(t *testing.T) {
	t.Parallel()

	_, err := resolveRuntime(context.Background())
	require.ErrorContains(t, err, "runtime not initialized")
}

func TestServeEndToEnd(t *testing.T) {
	var authorized atomic.Int64
	gatekeeper := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			authorized.Add(1)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(gatekeeper.Close)

	keyPath := filepath.Join(t.TempDir(), "keys.properties")
	require.NoError(t, os.WriteFile(keyPath, []byte(testKeyFile), 0o600))

	psrv, conn := newPubSubServer(t)
	createTopic(t, conn, "proj", "progress")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := config.Config{
		Server: config.ServerConfig{Listen: ln.Addr().String(), BaseHref: "/", Title: "Cyphernode status"},
		Gatekeeper: config.GatekeeperConfig{
			KeyFile:   keyPath,
			KeyLabel:  "000",
			StatusURL: gatekeeper.URL + "/v0/getblockchaininfo",
		},
		HTTP:     config.HTTPConfig{TimeoutSeconds: 5},
		Poller:   config.PollerConfig{Enabled: true},
		Progress: config.ProgressConfig{Backlog: 4, SinkTimeoutMs: 1000},
		PubSub:   config.PubSubConfig{ProjectID: "proj", TopicName: "progress"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc, err := newService(ctx, cfg, zap.NewNop(), serviceOptions{
		Registerer:    prometheus.NewRegistry(),
		PubSubOptions: []option.ClientOption{option.WithGRPCConn(conn)},
	})
	require.NoError(t, err)
	require.NotNil(t, svc.poller)
	require.Equal(t, "http://"+ln.Addr().String()+"/verificationprogress", svc.poller.URL())

	done := make(chan error, 1)
	go func() { done <- svc.serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		return svc.view.Snapshot().Style == progress.StyleError
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, progress.TextConnectionError, svc.view.Snapshot().Text)
	require.Positive(t, authorized.Load())

	resp, err := http.Get("http://" + ln.Addr().String() + "/v1/progress")
	require.NoError(t, err)
	var view map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	require.NoError(t, resp.Body.Close())
	require.Equal(t, "error", view["style"])

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}

	msgs := psrv.Messages()
	require.NotEmpty(t, msgs)
	var note map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &note))
	require.Equal(t, string(progress.StageConnectionError), note["stage"])
}

func TestNewServiceRejectsMissingKeyFile(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Server:     config.ServerConfig{Listen: ":0", BaseHref: "/"},
		Gatekeeper: config.GatekeeperConfig{KeyFile: filepath.Join(t.TempDir(), "absent")},
		HTTP:       config.HTTPConfig{TimeoutSeconds: 5},
	}
	_, err := newService(context.Background(), cfg, zap.NewNop(), serviceOptions{})
	require.ErrorContains(t, err, "load gatekeeper keys")
}

func TestNewServiceWithoutPoller(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Server: config.ServerConfig{Listen: ":0", BaseHref: "/"},
		HTTP:   config.HTTPConfig{TimeoutSeconds: 5},
	}
	svc, err := newService(context.Background(), cfg, nil, serviceOptions{})
	require.NoError(t, err)
	require.Nil(t, svc.poller)
	svc.close()
}

func TestWatchCommand(t *testing.T) {
	status := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/node/verificationprogress" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(status.Close)

	stubRuntime(t, config.Config{
		Server:   config.ServerConfig{Listen: ":8080", BaseHref: "/"},
		HTTP:     config.HTTPConfig{TimeoutSeconds: 5},
		Progress: config.ProgressConfig{Backlog: 4, SinkTimeoutMs: 1000},
	})

	out := &syncBuffer{}
	root := newRootCmd()
	root.SetOut(out)
	root.SetArgs([]string{"watch", "--url", status.URL, "--base", "/node/", "--width", "10"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), progress.TextConnectionError)
	}, 5*time.Second, 10*time.Millisecond)
	require.Contains(t, out.String(), "[##########] 100.00%")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchCommandRejectsBadOrigin(t *testing.T) {
	stubRuntime(t, config.Config{
		Server: config.ServerConfig{Listen: ":8080"},
		HTTP:   config.HTTPConfig{TimeoutSeconds: 5},
	})

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"watch", "--url", "not-a-url"})
	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "resolve status url")
}

// --- helpers ---

func stubRuntime(t *testing.T, cfg config.Config) {
	t.Helper()
	orig := newRuntime
	newRuntime = func(string) (*Runtime, error) {
		return &Runtime{Config: cfg, Logger: zap.NewNop()}, nil
	}
	t.Cleanup(func() { newRuntime = orig })
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newPubSubServer(t *testing.T) (*pstest.Server, *grpc.ClientConn) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return srv, conn
}

func createTopic(t *testing.T, conn *grpc.ClientConn, projectID, topic string) {
	t.Helper()
	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, projectID, option.WithGRPCConn(conn))
	require.NoError(t, err)
	_, err = client.CreateTopic(ctx, topic)
	require.NoError(t, err)
}

func TestStatusClientIsTraced(t *testing.T) {
	t.Parallel()

	client := newStatusClient(config.Config{HTTP: config.HTTPConfig{TimeoutSeconds: 3}})
	require.Equal(t, 3*time.Second, client.Timeout)
	require.IsType(t, &otelhttp.Transport{}, client.Transport)
}
