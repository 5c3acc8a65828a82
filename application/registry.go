// Package application holds the orchestration layer: the component registry
// built from manifest references and the batch operations running across it.
package application

import (
	"fmt"
	"io"
	"slices"
	"strings"

	logger "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/rios0rios0/charmci/domain"
)

// ClientFactory builds a repository client for a remote URL. Construction
// must be cheap and offline; clients only touch the network when used.
type ClientFactory func(url string) (domain.RepositoryClient, error)

// ManagedComponent is one application under management: its manifest
// references and the client of the repository it lives in. Meta is populated
// lazily by the first operation that needs it.
type ManagedComponent struct {
	Name   string
	Client domain.RepositoryClient
	Refs   []domain.CharmRef
	Meta   *domain.CharmMetadata
}

// RepoURL returns the URL of the repository holding this component.
func (c *ManagedComponent) RepoURL() string {
	return c.Refs[0].RepoURL
}

// Branch returns the base branch the manifest pins this component to.
func (c *ManagedComponent) Branch() string {
	return c.Refs[0].Branch
}

// Registry indexes the managed components by application name. Clients are
// keyed uniquely by repository URL, so components declared in the same
// repository share one client instance.
type Registry struct {
	components map[string]*ManagedComponent
	clients    map[string]domain.RepositoryClient
}

// NewRegistry builds a registry from manifest references. References whose
// repository URL is blacklisted are skipped with a warning. Duplicate
// application names are an error.
func NewRegistry(
	refs []domain.CharmRef,
	blacklist []string,
	factory ClientFactory,
) (*Registry, error) {
	registry := &Registry{
		components: make(map[string]*ManagedComponent),
		clients:    make(map[string]domain.RepositoryClient),
	}

	for _, ref := range refs {
		if slices.Contains(blacklist, ref.RepoURL) {
			logger.Warnf("Skipping blacklisted repository %s (charm %s)", ref.RepoURL, ref.Name)
			continue
		}

		if existing, found := registry.components[ref.Name]; found {
			if existing.RepoURL() != ref.RepoURL {
				return nil, fmt.Errorf(
					"application %q declared in both %q and %q",
					ref.Name, existing.RepoURL(), ref.RepoURL,
				)
			}
			existing.Refs = append(existing.Refs, ref)
			continue
		}

		client, found := registry.clients[ref.RepoURL]
		if !found {
			var err error
			client, err = factory(ref.RepoURL)
			if err != nil {
				return nil, fmt.Errorf("building client for %q: %w", ref.RepoURL, err)
			}
			registry.clients[ref.RepoURL] = client
		}

		registry.components[ref.Name] = &ManagedComponent{
			Name:   ref.Name,
			Client: client,
			Refs:   []domain.CharmRef{ref},
		}
	}

	return registry, nil
}

// Component returns the managed component with the given application name.
func (r *Registry) Component(name string) (*ManagedComponent, bool) {
	component, found := r.components[name]
	return component, found
}

// Components returns the managed components ordered by application name.
func (r *Registry) Components() []*ManagedComponent {
	names := make([]string, 0, len(r.components))
	for name := range r.components {
		names = append(names, name)
	}
	slices.Sort(names)

	components := make([]*ManagedComponent, 0, len(names))
	for _, name := range names {
		components = append(components, r.components[name])
	}
	return components
}

// Clients returns the distinct repository clients ordered by URL.
func (r *Registry) Clients() []domain.RepositoryClient {
	urls := make([]string, 0, len(r.clients))
	for url := range r.clients {
		urls = append(urls, url)
	}
	slices.Sort(urls)

	clients := make([]domain.RepositoryClient, 0, len(urls))
	for _, url := range urls {
		clients = append(clients, r.clients[url])
	}
	return clients
}

// ComponentsOf returns the components living in the given repository,
// ordered by application name.
func (r *Registry) ComponentsOf(url string) []*ManagedComponent {
	var components []*ManagedComponent
	for _, component := range r.Components() {
		if component.RepoURL() == url {
			components = append(components, component)
		}
	}
	return components
}

type snapshotCharm struct {
	Name   string `yaml:"name"`
	Path   string `yaml:"path"`
	Branch string `yaml:"branch"`
}

type snapshotRepository struct {
	URL    string          `yaml:"url"`
	Charms []snapshotCharm `yaml:"charms"`
}

type snapshot struct {
	Repositories []snapshotRepository `yaml:"repositories"`
}

// Dump writes a key-ordered YAML snapshot of the registry: repositories
// sorted by URL, charms sorted by name.
func (r *Registry) Dump(w io.Writer) error {
	var snap snapshot
	for _, client := range r.Clients() {
		repo := snapshotRepository{URL: client.URL()}
		for _, component := range r.ComponentsOf(client.URL()) {
			for _, ref := range component.Refs {
				repo.Charms = append(repo.Charms, snapshotCharm{
					Name:   ref.Name,
					Path:   ref.Path,
					Branch: ref.Branch,
				})
			}
		}
		snap.Repositories = append(snap.Repositories, repo)
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(&snap); err != nil {
		return fmt.Errorf("encoding registry snapshot: %w", err)
	}
	return encoder.Close()
}

// LoadSnapshot reconstructs a registry from a snapshot written by Dump. No
// manifest parsing and no remote contact happen: a dumped registry loads
// back to an equivalent one offline.
func LoadSnapshot(r io.Reader, blacklist []string, factory ClientFactory) (*Registry, error) {
	var snap snapshot
	if err := yaml.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding registry snapshot: %w", err)
	}

	var refs []domain.CharmRef
	for _, repo := range snap.Repositories {
		if strings.TrimSpace(repo.URL) == "" {
			return nil, fmt.Errorf("registry snapshot has a repository without a url")
		}
		for _, charm := range repo.Charms {
			refs = append(refs, domain.CharmRef{
				Name:    charm.Name,
				RepoURL: repo.URL,
				Path:    charm.Path,
				Branch:  charm.Branch,
			})
		}
	}

	return NewRegistry(refs, blacklist, factory)
}
