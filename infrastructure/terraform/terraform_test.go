package terraform_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rios0rios0/charmci/domain"
	"github.com/rios0rios0/charmci/infrastructure/terraform"
)

func TestSetVariableDefault(t *testing.T) {
	t.Parallel()

	t.Run("should rewrite the default of the named variable", func(t *testing.T) {
		t.Parallel()

		// given
		src := []byte(`
variable "app_name" {
  description = "Application name"
  type        = string
  default     = "dex-auth"
}

variable "channel" {
  description = "Charm channel"
  type        = string
  default     = "latest/edge"
}
`)

		// when
		updated, err := terraform.SetVariableDefault("channel", "1.10/stable")(src)

		// then
		require.NoError(t, err)
		assert.Contains(t, string(updated), `"1.10/stable"`)
		assert.NotContains(t, string(updated), `"latest/edge"`)
		// the other variable is untouched
		assert.Contains(t, string(updated), `"dex-auth"`)
	})

	t.Run("should fail when the variable is not declared", func(t *testing.T) {
		t.Parallel()

		// given
		src := []byte(`
variable "app_name" {
  default = "dex-auth"
}
`)

		// when
		_, err := terraform.SetVariableDefault("channel", "1.10/stable")(src)

		// then
		var parseErr *domain.ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Contains(t, err.Error(), `variable "channel" not found`)
	})

	t.Run("should fail with ParseError for unparsable HCL", func(t *testing.T) {
		t.Parallel()

		// given
		src := []byte(`variable "channel" {`)

		// when
		_, err := terraform.SetVariableDefault("channel", "x")(src)

		// then
		var parseErr *domain.ParseError
		require.ErrorAs(t, err, &parseErr)
	})
}

func TestSetRequiredProviderVersions(t *testing.T) {
	t.Parallel()

	versionsTF := []byte(`
terraform {
  required_version = ">= 1.6"

  required_providers {
    juju = {
      source  = "juju/juju"
      version = ">= 0.10.1"
    }
    random = {
      source  = "hashicorp/random"
      version = "~> 3.6"
    }
  }
}
`)

	t.Run("should rewrite the version constraint of the requested provider", func(t *testing.T) {
		t.Parallel()

		// given
		versions := map[string]string{"juju": ">= 0.14.0"}

		// when
		updated, err := terraform.SetRequiredProviderVersions(versions)(versionsTF)

		// then
		require.NoError(t, err)
		assert.Contains(t, string(updated), ">= 0.14.0")
		assert.NotContains(t, string(updated), ">= 0.10.1")
		// untouched provider keeps its constraint
		assert.Contains(t, string(updated), "~> 3.6")
		// source and required_version survive the rewrite
		assert.Contains(t, string(updated), "juju/juju")
		assert.Contains(t, string(updated), ">= 1.6")
	})

	t.Run("should leave providers alone that are not declared in the file", func(t *testing.T) {
		t.Parallel()

		// given
		versions := map[string]string{"aws": ">= 5.0"}

		// when
		updated, err := terraform.SetRequiredProviderVersions(versions)(versionsTF)

		// then
		require.NoError(t, err)
		assert.Contains(t, string(updated), ">= 0.10.1")
		assert.NotContains(t, string(updated), "aws")
	})

	t.Run("should be a no-op for an empty version map", func(t *testing.T) {
		t.Parallel()

		// when
		updated, err := terraform.SetRequiredProviderVersions(nil)(versionsTF)

		// then
		require.NoError(t, err)
		assert.Equal(t, versionsTF, updated)
	})

	t.Run("should fail when the file has no required_providers block", func(t *testing.T) {
		t.Parallel()

		// given
		src := []byte(`
terraform {
  required_version = ">= 1.6"
}
`)

		// when
		_, err := terraform.SetRequiredProviderVersions(map[string]string{
			"juju": ">= 0.14.0",
		})(src)

		// then
		var parseErr *domain.ParseError
		require.ErrorAs(t, err, &parseErr)
	})
}

func TestApplicationNames(t *testing.T) {
	t.Parallel()

	t.Run("should list charm names of juju_application resources", func(t *testing.T) {
		t.Parallel()

		// given
		src := []byte(`
resource "juju_application" "dex_auth" {
  model = var.model_name

  charm {
    name    = "dex-auth"
    channel = var.channel
  }
}

resource "juju_application" "oidc" {
  charm {
    name = "oidc-gatekeeper"
  }
}

resource "random_id" "suffix" {
  byte_length = 4
}
`)

		// when
		names, err := terraform.ApplicationNames(src)

		// then
		require.NoError(t, err)
		assert.Equal(t, []string{"dex-auth", "oidc-gatekeeper"}, names)
	})

	t.Run("should return no names when the file declares no applications", func(t *testing.T) {
		t.Parallel()

		// given
		src := []byte(`
resource "random_id" "suffix" {
  byte_length = 4
}
`)

		// when
		names, err := terraform.ApplicationNames(src)

		// then
		require.NoError(t, err)
		assert.Empty(t, names)
	})
}
