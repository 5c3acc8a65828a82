package imageregistry

import "net/http"

// NewDockerHubAt builds a client against an arbitrary API endpoint.
func NewDockerHubAt(httpClient *http.Client, baseURL string) *DockerHub {
	return &DockerHub{httpClient: httpClient, baseURL: baseURL}
}
