//go:build integration

package integration

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/meigma/devarchive"
	"github.com/meigma/devarchive/registry"
)

var (
	registryOnce sync.Once
	registryAddr string
	registryErr  error
)

// getRegistry returns the shared registry address, starting the container if needed.
func getRegistry(tb testing.TB) string {
	tb.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}

	registryOnce.Do(func() {
		registryAddr, registryErr = startRegistryContainer(context.Background())
	})
	if registryErr != nil {
		tb.Fatalf("start registry container: %v", registryErr)
	}
	return registryAddr
}

func startRegistryContainer(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "registry:2",
		ExposedPorts: []string{"5000/tcp"},
		WaitingFor:   wait.ForHTTP("/v2/").WithPort("5000/tcp").WithStatusCodeMatcher(isOKStatus),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start registry container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve registry host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5000/tcp")
	if err != nil {
		return "", fmt.Errorf("resolve registry port: %w", err)
	}
	return fmt.Sprintf("%s:%s", host, port.Port()), nil
}

func isOKStatus(status int) bool {
	return status >= 200 && status < 300
}

func newTestClient(tb testing.TB) *registry.Client {
	tb.Helper()
	return registry.New(registry.WithPlainHTTP(true))
}

// testRef generates a unique reference for a test to avoid collisions.
func testRef(addr, name, tag string) string {
	return fmt.Sprintf("%s/test/%s:%s", addr, name, tag)
}

// shaderSet is the bytecode stored per device by buildArchive.
var shaderSet = map[devarchive.DeviceType][][]byte{
	devarchive.DeviceVulkan:     {bytes.Repeat([]byte{0x51}, 4096), bytes.Repeat([]byte{0x52}, 33)},
	devarchive.DeviceDirect3D12: {bytes.Repeat([]byte{0x61}, 2048)},
	devarchive.DeviceMetalIOS:   {bytes.Repeat([]byte{0x71}, 512)},
}

func buildArchive(tb testing.TB) []byte {
	tb.Helper()

	b := devarchive.NewBuilder()
	require.NoError(tb, b.AddSignature("Sig", []byte("sig"), map[devarchive.DeviceType][]byte{
		devarchive.DeviceVulkan:     bytes.Repeat([]byte{0x11}, 96),
		devarchive.DeviceDirect3D12: bytes.Repeat([]byte{0x12}, 80),
		devarchive.DeviceMetalIOS:   bytes.Repeat([]byte{0x13}, 40),
	}))
	require.NoError(tb, b.AddPipeline(devarchive.ChunkGraphicsPipelineStates, "Opaque", []byte("opaque"), map[devarchive.DeviceType][]byte{
		devarchive.DeviceVulkan:     bytes.Repeat([]byte{0x21}, 256),
		devarchive.DeviceDirect3D12: bytes.Repeat([]byte{0x22}, 200),
		devarchive.DeviceMetalIOS:   bytes.Repeat([]byte{0x23}, 128),
	}))
	require.NoError(tb, b.AddRenderPass("Main", []byte("main")))
	for _, dev := range devarchive.AllDevices() {
		for _, code := range shaderSet[dev] {
			_, err := b.AddShader(dev, code)
			require.NoError(tb, err)
		}
	}
	b.SetDebugInfo(devarchive.DebugInfo{APIVersion: 255007, GitHash: "integration"})

	data, err := b.Build()
	require.NoError(tb, err)
	return data
}

func openArchive(tb testing.TB, data []byte) *devarchive.Archive {
	tb.Helper()
	a, err := devarchive.Open(devarchive.NewMemorySource(data))
	require.NoError(tb, err)
	return a
}
