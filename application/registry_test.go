package application_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rios0rios0/charmci/application"
	"github.com/rios0rios0/charmci/domain"
	testdoubles "github.com/rios0rios0/charmci/test"
)

func spyFactory(created *[]string) application.ClientFactory {
	return func(url string) (domain.RepositoryClient, error) {
		*created = append(*created, url)
		return &testdoubles.SpyRepositoryClient{RemoteURL: url}, nil
	}
}

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	t.Run("should share one client between components in the same repository", func(t *testing.T) {
		t.Parallel()

		// given
		refs := []domain.CharmRef{
			{Name: "dex-auth", RepoURL: "https://github.com/canonical/repo1", Path: "a", Branch: "main"},
			{Name: "oidc", RepoURL: "https://github.com/canonical/repo2", Path: "b", Branch: "main"},
			{Name: "istio", RepoURL: "https://github.com/canonical/repo1", Path: "c", Branch: "main"},
		}
		var created []string

		// when
		registry, err := application.NewRegistry(refs, nil, spyFactory(&created))

		// then
		require.NoError(t, err)
		assert.Len(t, registry.Components(), 3)
		assert.Len(t, registry.Clients(), 2)
		assert.Len(t, created, 2)

		dex, found := registry.Component("dex-auth")
		require.True(t, found)
		istio, found := registry.Component("istio")
		require.True(t, found)
		assert.Same(t, dex.Client, istio.Client)
	})

	t.Run("should skip blacklisted repositories", func(t *testing.T) {
		t.Parallel()

		// given
		refs := []domain.CharmRef{
			{Name: "dex-auth", RepoURL: "https://github.com/canonical/repo1", Branch: "main"},
			{Name: "oidc", RepoURL: "https://github.com/canonical/blocked", Branch: "main"},
		}
		blacklist := []string{"https://github.com/canonical/blocked"}
		var created []string

		// when
		registry, err := application.NewRegistry(refs, blacklist, spyFactory(&created))

		// then
		require.NoError(t, err)
		assert.Len(t, registry.Components(), 1)
		_, found := registry.Component("oidc")
		assert.False(t, found)
	})

	t.Run("should group repeated application names within one repository", func(t *testing.T) {
		t.Parallel()

		// given
		refs := []domain.CharmRef{
			{Name: "istio", RepoURL: "https://github.com/canonical/repo1", Path: "gateway", Branch: "main"},
			{Name: "istio", RepoURL: "https://github.com/canonical/repo1", Path: "pilot", Branch: "main"},
		}
		var created []string

		// when
		registry, err := application.NewRegistry(refs, nil, spyFactory(&created))

		// then
		require.NoError(t, err)
		component, found := registry.Component("istio")
		require.True(t, found)
		assert.Len(t, component.Refs, 2)
		assert.Len(t, registry.Clients(), 1)
	})

	t.Run("should reject one application name across two repositories", func(t *testing.T) {
		t.Parallel()

		// given
		refs := []domain.CharmRef{
			{Name: "istio", RepoURL: "https://github.com/canonical/repo1", Branch: "main"},
			{Name: "istio", RepoURL: "https://github.com/canonical/repo2", Branch: "main"},
		}
		var created []string

		// when
		_, err := application.NewRegistry(refs, nil, spyFactory(&created))

		// then
		require.Error(t, err)
		assert.Contains(t, err.Error(), "declared in both")
	})
}

func TestRegistry_Snapshot(t *testing.T) {
	t.Parallel()

	t.Run("should round-trip through a snapshot without remote contact", func(t *testing.T) {
		t.Parallel()

		// given
		refs := []domain.CharmRef{
			{Name: "oidc", RepoURL: "https://github.com/canonical/repo2", Path: "b", Branch: "track-1.10"},
			{Name: "dex-auth", RepoURL: "https://github.com/canonical/repo1", Path: "a", Branch: "main"},
			{Name: "istio", RepoURL: "https://github.com/canonical/repo1", Path: "c", Branch: "main"},
		}
		var created []string
		registry, err := application.NewRegistry(refs, nil, spyFactory(&created))
		require.NoError(t, err)

		// when
		var buffer bytes.Buffer
		require.NoError(t, registry.Dump(&buffer))

		var reloadedClients []string
		reloaded, err := application.LoadSnapshot(&buffer, nil, spyFactory(&reloadedClients))

		// then
		require.NoError(t, err)
		assert.Len(t, reloaded.Components(), 3)
		assert.Len(t, reloaded.Clients(), 2)

		for _, original := range registry.Components() {
			component, found := reloaded.Component(original.Name)
			require.True(t, found, "component %s lost in round-trip", original.Name)
			assert.Equal(t, original.Refs, component.Refs)
		}

		for _, client := range reloaded.Clients() {
			spy, ok := client.(*testdoubles.SpyRepositoryClient)
			require.True(t, ok)
			assert.Zero(t, spy.CheckoutCalls)
		}
	})

	t.Run("should dump repositories ordered by url", func(t *testing.T) {
		t.Parallel()

		// given
		refs := []domain.CharmRef{
			{Name: "oidc", RepoURL: "https://github.com/canonical/zeta", Branch: "main"},
			{Name: "dex-auth", RepoURL: "https://github.com/canonical/alpha", Branch: "main"},
		}
		var created []string
		registry, err := application.NewRegistry(refs, nil, spyFactory(&created))
		require.NoError(t, err)

		// when
		var buffer bytes.Buffer
		require.NoError(t, registry.Dump(&buffer))

		// then
		dump := buffer.String()
		assert.Less(t,
			bytes.Index(buffer.Bytes(), []byte("alpha")),
			bytes.Index(buffer.Bytes(), []byte("zeta")),
			"expected alphabetical repository order in:\n%s", dump,
		)
	})

	t.Run("should reject a snapshot with a missing url", func(t *testing.T) {
		t.Parallel()

		// given
		snapshot := bytes.NewBufferString("repositories:\n  - charms:\n      - name: dex-auth\n")
		var created []string

		// when
		_, err := application.LoadSnapshot(snapshot, nil, spyFactory(&created))

		// then
		require.Error(t, err)
	})
}
