package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rios0rios0/charmci/domain"
)

const (
	metadataFilename   = "metadata.yaml"
	charmcraftFilename = "charmcraft.yaml"
	ociImageType       = "oci-image"
)

// FindMetadataFile returns the name of the metadata file present in dir.
// From charmcraft 2.5 the information lives in charmcraft.yaml; older charms
// keep it in metadata.yaml. metadata.yaml wins when both are present.
func FindMetadataFile(dir string) (string, error) {
	for _, name := range []string{metadataFilename, charmcraftFilename} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return name, nil
		}
	}
	return "", &domain.ParseError{
		File: dir,
		Err: fmt.Errorf(
			"could not find %s or %s", metadataFilename, charmcraftFilename,
		),
	}
}

// ReadCharmMetadata looks for a charm's metadata in dir and parses it.
func ReadCharmMetadata(dir string) (*domain.CharmMetadata, error) {
	name, err := FindMetadataFile(dir)
	if err != nil {
		return nil, err
	}
	if name == metadataFilename {
		return parseMetadataFile(filepath.Join(dir, name))
	}
	return parseCharmcraftFile(filepath.Join(dir, name))
}

// metadataFile mirrors the fields of interest in metadata.yaml.
type metadataFile struct {
	Name      string                  `yaml:"name"`
	Docs      string                  `yaml:"docs"`
	Resources map[string]resourceSpec `yaml:"resources"`
}

type resourceSpec struct {
	Type           string `yaml:"type"`
	UpstreamSource string `yaml:"upstream-source"`
}

// charmcraftFile mirrors the fields of interest in charmcraft.yaml.
type charmcraftFile struct {
	Name      string                  `yaml:"name"`
	Links     charmcraftLinks         `yaml:"links"`
	Resources map[string]resourceSpec `yaml:"resources"`
}

type charmcraftLinks struct {
	Documentation string `yaml:"documentation"`
}

func parseMetadataFile(path string) (*domain.CharmMetadata, error) {
	var parsed metadataFile
	if err := decodeYAMLFile(path, &parsed); err != nil {
		return nil, err
	}
	if parsed.Name == "" {
		return nil, &domain.ParseError{
			File: path,
			Err:  fmt.Errorf("missing required key %q", "name"),
		}
	}

	return &domain.CharmMetadata{
		Name:   parsed.Name,
		Docs:   parsed.Docs,
		Images: imageResources(parsed.Resources),
	}, nil
}

func parseCharmcraftFile(path string) (*domain.CharmMetadata, error) {
	var parsed charmcraftFile
	if err := decodeYAMLFile(path, &parsed); err != nil {
		return nil, err
	}
	if parsed.Name == "" {
		return nil, &domain.ParseError{
			File: path,
			Err:  fmt.Errorf("missing required key %q", "name"),
		}
	}

	return &domain.CharmMetadata{
		Name:   parsed.Name,
		Docs:   parsed.Links.Documentation,
		Images: imageResources(parsed.Resources),
	}, nil
}

func decodeYAMLFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &domain.ParseError{File: path, Err: err}
	}
	if unmarshalErr := yaml.Unmarshal(data, out); unmarshalErr != nil {
		return &domain.ParseError{File: path, Err: unmarshalErr}
	}
	return nil
}

// imageResources extracts the upstream source of every oci-image resource.
func imageResources(resources map[string]resourceSpec) map[string]string {
	images := make(map[string]string)
	for name, res := range resources {
		if res.Type == ociImageType && res.UpstreamSource != "" {
			images[name] = res.UpstreamSource
		}
	}
	return images
}
