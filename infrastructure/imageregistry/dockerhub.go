// Package imageregistry resolves container image references against their
// registry to find the most recent published tag.
package imageregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/go-retryablehttp"
	logger "github.com/sirupsen/logrus"

	"github.com/rios0rios0/charmci/config"
	"github.com/rios0rios0/charmci/domain"
)

const (
	defaultPlatform  = "docker.io"
	defaultNamespace = "library"
	dockerHubAPI     = "https://hub.docker.com/v2/repositories"
	maxTagPages      = 10
)

// ImageRef is a parsed container image reference.
type ImageRef struct {
	Platform  string
	Namespace string
	Name      string
	Tag       string
}

// String renders the reference back in registry/namespace/name:tag form.
func (r ImageRef) String() string {
	ref := fmt.Sprintf("%s/%s/%s", r.Platform, r.Namespace, r.Name)
	if r.Tag != "" {
		ref += ":" + r.Tag
	}
	return ref
}

// ParseImageRef splits an image reference into its parts. A leading element
// containing a dot is taken as the registry host; a single-element path gets
// the library namespace.
func ParseImageRef(image string) (ImageRef, error) {
	ref := ImageRef{Platform: defaultPlatform, Namespace: defaultNamespace}

	rest := image
	if name, tag, found := strings.Cut(image, ":"); found {
		rest = name
		ref.Tag = tag
	}

	parts := strings.Split(rest, "/")
	if len(parts) > 0 && strings.Contains(parts[0], ".") {
		ref.Platform = parts[0]
		parts = parts[1:]
	}

	switch len(parts) {
	case 1:
		ref.Name = parts[0]
	case 2:
		ref.Namespace = parts[0]
		ref.Name = parts[1]
	default:
		return ImageRef{}, &domain.ParseError{
			File: image,
			Err:  fmt.Errorf("expected at most 2 path elements, got %d", len(parts)),
		}
	}

	if ref.Name == "" {
		return ImageRef{}, &domain.ParseError{
			File: image,
			Err:  fmt.Errorf("empty image name"),
		}
	}
	return ref, nil
}

// TagInfo is one published tag as reported by Docker Hub.
type TagInfo struct {
	Name          string
	LastUpdated   time.Time
	Status        string
	Architectures []string
}

// DockerHub lists image tags through the Docker Hub HTTP API. It implements
// domain.TagLister.
type DockerHub struct {
	httpClient *http.Client
	baseURL    string
}

// NewDockerHub builds a Docker Hub client with the configured retry policy.
func NewDockerHub(cfg *config.Config) *DockerHub {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.Retry.Attempts
	retryClient.RetryWaitMin = time.Duration(cfg.Retry.MinWait)
	retryClient.RetryWaitMax = time.Duration(cfg.Retry.MaxWait)
	retryClient.Logger = logger.StandardLogger()

	return &DockerHub{
		httpClient: retryClient.StandardClient(),
		baseURL:    dockerHubAPI,
	}
}

type tagsPage struct {
	Next    string `json:"next"`
	Results []struct {
		Name        string    `json:"name"`
		LastUpdated time.Time `json:"last_updated"`
		TagStatus   string    `json:"tag_status"`
		Images      []struct {
			Architecture string `json:"architecture"`
		} `json:"images"`
	} `json:"results"`
}

// ListTags returns the published tags for the given image reference. Only
// Docker Hub images are supported.
func (d *DockerHub) ListTags(ctx context.Context, ref ImageRef) ([]TagInfo, error) {
	if ref.Platform != defaultPlatform {
		return nil, &domain.RemoteAPIError{
			Op:  "list tags",
			Err: fmt.Errorf("unsupported registry %q", ref.Platform),
		}
	}

	url := fmt.Sprintf("%s/%s/%s/tags/?page_size=100", d.baseURL, ref.Namespace, ref.Name)
	var tags []TagInfo

	for page := 0; url != "" && page < maxTagPages; page++ {
		pageTags, next, err := d.fetchPage(ctx, url)
		if err != nil {
			return nil, err
		}
		tags = append(tags, pageTags...)
		url = next
	}

	return tags, nil
}

func (d *DockerHub) fetchPage(ctx context.Context, url string) ([]TagInfo, string, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", &domain.RemoteAPIError{Op: "list tags", Err: err}
	}

	response, err := d.httpClient.Do(request)
	if err != nil {
		return nil, "", &domain.RemoteAPIError{Op: "list tags", Err: err}
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode != http.StatusOK {
		return nil, "", &domain.RemoteAPIError{
			Op:  "list tags",
			Err: fmt.Errorf("unexpected status %s for %s", response.Status, url),
		}
	}

	var page tagsPage
	if decodeErr := json.NewDecoder(response.Body).Decode(&page); decodeErr != nil {
		return nil, "", &domain.RemoteAPIError{Op: "list tags", Err: decodeErr}
	}

	tags := make([]TagInfo, 0, len(page.Results))
	for _, result := range page.Results {
		architectures := make([]string, 0, len(result.Images))
		for _, image := range result.Images {
			architectures = append(architectures, image.Architecture)
		}
		tags = append(tags, TagInfo{
			Name:          result.Name,
			LastUpdated:   result.LastUpdated,
			Status:        result.TagStatus,
			Architectures: architectures,
		})
	}
	return tags, page.Next, nil
}

// LatestTag returns the highest version-ordered tag published for the image.
// Tags that do not parse as versions (such as "latest") are ignored.
func (d *DockerHub) LatestTag(ctx context.Context, image string) (string, error) {
	ref, err := ParseImageRef(image)
	if err != nil {
		return "", err
	}

	tags, err := d.ListTags(ctx, ref)
	if err != nil {
		return "", err
	}

	var latest *semver.Version
	var latestName string
	for _, tag := range tags {
		version, parseErr := semver.NewVersion(tag.Name)
		if parseErr != nil {
			logger.Debugf("Ignoring unparsable tag %q for %s", tag.Name, image)
			continue
		}
		if latest == nil || version.GreaterThan(latest) {
			latest = version
			latestName = tag.Name
		}
	}

	if latest == nil {
		return "", &domain.RemoteAPIError{
			Op:  "latest tag",
			Err: fmt.Errorf("no version-ordered tags published for %s", image),
		}
	}
	return latestName, nil
}
