package registry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/registry"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/retry"

	"github.com/meigma/devarchive"
	archttp "github.com/meigma/devarchive/http"
)

// Client pushes and pulls archives in remote OCI registries.
type Client struct {
	plainHTTP  bool
	userAgent  string
	credStore  credentials.Store
	authClient *auth.Client
	logger     *slog.Logger
	wrap       func(devarchive.ByteSource) (devarchive.ByteSource, error)
}

// New creates a client. Without a credential option requests are anonymous.
func New(opts ...Option) *Client {
	c := &Client{
		userAgent: "devarchive/2",
	}
	for _, opt := range opts {
		opt(c)
	}

	c.authClient = &auth.Client{
		Client: retry.DefaultClient,
		Cache:  auth.NewCache(),
		Credential: func(ctx context.Context, hostport string) (auth.Credential, error) {
			if c.credStore == nil {
				return auth.EmptyCredential, nil
			}
			return c.credStore.Get(ctx, hostport)
		},
		Header: http.Header{
			"User-Agent": []string{c.userAgent},
		},
	}
	return c
}

func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

func parseRef(ref string) (registry.Reference, error) {
	r, err := registry.ParseReference(ref)
	if err != nil {
		return registry.Reference{}, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	return r, nil
}

// repository creates a Repository sharing the client's token cache.
func (c *Client) repository(ref registry.Reference) (*remote.Repository, error) {
	repo, err := remote.NewRepository(ref.Registry + "/" + ref.Repository)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	repo.PlainHTTP = c.plainHTTP
	repo.Client = c.authClient
	return repo, nil
}

// Push stores a at ref, which must name a tag
// (for example "registry.example.com/game/shaders:v1").
func (c *Client) Push(ctx context.Context, ref string, a *devarchive.Archive, opts ...PushOption) (ocispec.Descriptor, error) {
	r, err := parseRef(ref)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	if r.Reference == "" || r.ValidateReferenceAsDigest() == nil {
		return ocispec.Descriptor{}, fmt.Errorf("%w: reference must include a tag", ErrInvalidReference)
	}
	repo, err := c.repository(r)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	desc, err := Push(ctx, repo, r.Reference, a, opts...)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	c.log().Info("pushed archive", "ref", ref, "digest", desc.Digest)
	return desc, nil
}

// Pull downloads the archive at ref and opens it from memory.
func (c *Client) Pull(ctx context.Context, ref string, opts ...devarchive.Option) (*devarchive.Archive, error) {
	r, repo, err := c.resolveRepository(ref)
	if err != nil {
		return nil, err
	}
	a, err := Pull(ctx, repo, r.Reference, opts...)
	if err != nil {
		return nil, err
	}
	c.log().Debug("pulled archive", "ref", ref)
	return a, nil
}

// OpenRemote opens the archive at ref without downloading it. The archive
// layer is read with HTTP range requests as resources are loaded, and the
// returned archive stays bound to ctx.
func (c *Client) OpenRemote(ctx context.Context, ref string, opts ...devarchive.Option) (*devarchive.Archive, error) {
	r, repo, err := c.resolveRepository(ref)
	if err != nil {
		return nil, err
	}
	_, layer, err := resolveLayer(ctx, repo, r.Reference)
	if err != nil {
		return nil, err
	}

	url := c.blobURL(r, layer)
	src, err := archttp.NewSource(ctx, url,
		archttp.WithClient(&scopedDoer{client: c.authClient, ref: r}),
		archttp.WithLogger(c.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", layer.Digest, err)
	}
	if src.Size() != layer.Size {
		return nil, fmt.Errorf("%w: blob %s has %d bytes, descriptor says %d", ErrSizeMismatch, layer.Digest, src.Size(), layer.Size)
	}

	var bs devarchive.ByteSource = src
	if c.wrap != nil {
		if bs, err = c.wrap(src); err != nil {
			return nil, err
		}
	}
	c.log().Debug("opened remote archive", "ref", ref, "url", url, "size", layer.Size)
	return devarchive.Open(bs, opts...)
}

func (c *Client) resolveRepository(ref string) (registry.Reference, *remote.Repository, error) {
	r, err := parseRef(ref)
	if err != nil {
		return registry.Reference{}, nil, err
	}
	if r.Reference == "" {
		r.Reference = "latest"
	}
	repo, err := c.repository(r)
	if err != nil {
		return registry.Reference{}, nil, err
	}
	return r, repo, nil
}

// blobURL returns <scheme>://<registry>/v2/<repository>/blobs/<digest>.
func (c *Client) blobURL(r registry.Reference, desc ocispec.Descriptor) string {
	scheme := "https"
	if c.plainHTTP {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/v2/%s/blobs/%s", scheme, r.Host(), r.Repository, desc.Digest)
}

// scopedDoer adds the repository pull scope to each request so the auth
// client can exchange credentials for a token covering the blob.
type scopedDoer struct {
	client *auth.Client
	ref    registry.Reference
}

func (d *scopedDoer) Do(req *http.Request) (*http.Response, error) {
	ctx := auth.AppendRepositoryScope(req.Context(), d.ref, auth.ActionPull)
	return d.client.Do(req.Clone(ctx))
}
