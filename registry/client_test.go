package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meigma/devarchive/registry"
)

func TestClient_InvalidReference(t *testing.T) {
	t.Parallel()

	client := registry.New(registry.WithPlainHTTP(true), registry.WithUserAgent("test"))
	ctx := context.Background()
	a := testArchive(t)

	tests := []struct {
		name string
		call func() error
	}{
		{name: "push without tag", call: func() error {
			_, err := client.Push(ctx, "localhost:5000/archives", a)
			return err
		}},
		{name: "push by digest", call: func() error {
			_, err := client.Push(ctx, "localhost:5000/archives@sha256:"+
				"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", a)
			return err
		}},
		{name: "pull malformed", call: func() error {
			_, err := client.Pull(ctx, "not a reference")
			return err
		}},
		{name: "open malformed", call: func() error {
			_, err := client.OpenRemote(ctx, "localhost:5000/UPPER:tag")
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.ErrorIs(t, tt.call(), registry.ErrInvalidReference)
		})
	}
}
