package cmd

import (
	"fmt"
	"os"

	logger "github.com/sirupsen/logrus"
	"go.uber.org/dig"

	"github.com/rios0rios0/charmci/application"
	"github.com/rios0rios0/charmci/config"
	"github.com/rios0rios0/charmci/domain"
	"github.com/rios0rios0/charmci/infrastructure/imageregistry"
	"github.com/rios0rios0/charmci/infrastructure/manifest"
	"github.com/rios0rios0/charmci/infrastructure/repository"
)

// appContext bundles the wired dependencies a command needs.
type appContext struct {
	Config       *config.Config
	Registry     *application.Registry
	Orchestrator *application.Orchestrator
}

// buildAppContext assembles the dependency graph through a DIG container:
// config at the bottom, then the client factory, the registry, the tag
// lister, and the orchestrator on top.
func buildAppContext() (*appContext, error) {
	container := dig.New()

	providers := []any{
		loadConfig,
		newClientFactory,
		buildRegistry,
		newTagLister,
		newOrchestrator,
	}
	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return nil, fmt.Errorf("registering provider: %w", err)
		}
	}

	var app *appContext
	err := container.Invoke(func(
		cfg *config.Config,
		registry *application.Registry,
		orchestrator *application.Orchestrator,
	) {
		app = &appContext{Config: cfg, Registry: registry, Orchestrator: orchestrator}
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.FindConfigFile()
		if err != nil {
			return nil, fmt.Errorf(
				"no config file found: %w\nSpecify one with --config or create charmci.yaml",
				err,
			)
		}
	}

	logger.Infof("Using config file: %s", path)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newClientFactory(cfg *config.Config) (application.ClientFactory, error) {
	factory, err := repository.NewFactory(cfg)
	if err != nil {
		return nil, err
	}
	return application.ClientFactory(factory), nil
}

// buildRegistry enumerates the managed components, either from the Terraform
// manifests named in the config or from a previously dumped snapshot.
func buildRegistry(cfg *config.Config, factory application.ClientFactory) (*application.Registry, error) {
	if snapshotPath != "" {
		file, err := os.Open(snapshotPath)
		if err != nil {
			return nil, fmt.Errorf("opening snapshot %q: %w", snapshotPath, err)
		}
		defer func() { _ = file.Close() }()

		logger.Infof("Rebuilding registry from snapshot %s", snapshotPath)
		return application.LoadSnapshot(file, cfg.Blacklist, factory)
	}

	var refs []domain.CharmRef
	for _, module := range cfg.Modules {
		parsed, err := manifest.ParseModule(module)
		if err != nil {
			return nil, fmt.Errorf("parsing manifest %q: %w", module, err)
		}
		refs = append(refs, parsed...)
	}

	logger.Infof("Found %d charm references across %d manifests", len(refs), len(cfg.Modules))
	return application.NewRegistry(refs, cfg.Blacklist, factory)
}

func newTagLister(cfg *config.Config) domain.TagLister {
	return imageregistry.NewDockerHub(cfg)
}

func newOrchestrator(
	cfg *config.Config,
	registry *application.Registry,
	tags domain.TagLister,
) *application.Orchestrator {
	return application.NewOrchestrator(cfg, registry, tags, dryRun)
}
