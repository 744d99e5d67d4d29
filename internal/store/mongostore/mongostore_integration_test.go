//go:build integration

package mongostore_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kiwari-pos/floorops/internal/store"
	"github.com/kiwari-pos/floorops/internal/store/mongostore"
	"github.com/kiwari-pos/floorops/internal/store/storetest"
)

// TestMongoStore runs the store suite against a single-node replica set,
// which multi-document transactions require.
func TestMongoStore(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			Cmd:          []string{"--replSet", "rs0", "--bind_ip_all"},
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start mongo container: %v", err)
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}()

	initiate := `rs.initiate({_id: "rs0", members: [{_id: 0, host: "localhost:27017"}]})`
	if code, _, err := container.Exec(ctx, []string{"mongosh", "--quiet", "--eval", initiate}); err != nil || code != 0 {
		t.Fatalf("initiate replica set: code=%d err=%v", code, err)
	}
	waitForPrimary(t, ctx, container)

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "27017")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	url := fmt.Sprintf("mongodb://%s:%s/?directConnection=true", host, port.Port())

	n := 0
	storetest.Run(t, func(t *testing.T) store.Store {
		t.Helper()
		n++
		s, err := mongostore.Open(ctx, url, fmt.Sprintf("floor_test_%d", n))
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		t.Cleanup(func() { _ = s.Close(ctx) })
		return s
	})
}

func waitForPrimary(t *testing.T, ctx context.Context, c testcontainers.Container) {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		_, out, err := c.Exec(ctx, []string{"mongosh", "--quiet", "--eval", "db.hello().isWritablePrimary"})
		if err == nil {
			b, _ := io.ReadAll(out)
			if strings.Contains(string(b), "true") {
				return
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatal("replica set never elected a primary")
}
