package repository

import (
	"github.com/go-git/go-git/v5"

	"github.com/rios0rios0/charmci/config"
)

var RepositoryFullName = repositoryFullName

// NewWithCheckout builds a client around an already-open local repository,
// skipping clone and remote configuration.
func NewWithCheckout(basePath string, creds config.Credentials, repo *git.Repository) *Client {
	return &Client{basePath: basePath, creds: creds, repo: repo}
}
