// Package terraform rewrites the version-pinning fields of a charm's
// Terraform module, preserving the surrounding file layout. All edits are
// pure content transforms so they compose with the repository client's
// staged file updates.
package terraform

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"github.com/rios0rios0/charmci/domain"
)

// SetVariableDefault returns a transform that rewrites the default of the
// named variable block, e.g. pinning the "channel" variable to a release
// track.
func SetVariableDefault(variable, value string) func([]byte) ([]byte, error) {
	return func(src []byte) ([]byte, error) {
		file, err := parseForWrite(src)
		if err != nil {
			return nil, err
		}

		for _, block := range file.Body().Blocks() {
			if block.Type() != "variable" {
				continue
			}
			labels := block.Labels()
			if len(labels) == 0 || labels[0] != variable {
				continue
			}
			block.Body().SetAttributeValue("default", cty.StringVal(value))
			return hclwrite.Format(file.Bytes()), nil
		}

		return nil, &domain.ParseError{
			Err: fmt.Errorf("variable %q not found", variable),
		}
	}
}

// SetRequiredProviderVersions returns a transform that rewrites the version
// constraints declared in the terraform.required_providers block. Providers
// requested but not declared are left alone.
func SetRequiredProviderVersions(versions map[string]string) func([]byte) ([]byte, error) {
	return func(src []byte) ([]byte, error) {
		if len(versions) == 0 {
			return src, nil
		}

		file, err := parseForWrite(src)
		if err != nil {
			return nil, err
		}

		current, err := readRequiredProviders(src)
		if err != nil {
			return nil, err
		}

		providersBody := findRequiredProvidersBody(file)
		if providersBody == nil {
			return nil, &domain.ParseError{
				Err: fmt.Errorf("no terraform.required_providers block"),
			}
		}

		for name, constraint := range versions {
			existing, declared := current[name]
			if !declared {
				continue
			}
			updated := make(map[string]cty.Value, len(existing)+1)
			for key, val := range existing {
				updated[key] = val
			}
			updated["version"] = cty.StringVal(constraint)
			providersBody.SetAttributeValue(name, cty.ObjectVal(updated))
		}

		return hclwrite.Format(file.Bytes()), nil
	}
}

// ApplicationNames lists the charm names of every juju_application resource
// declared in the given file content.
func ApplicationNames(src []byte) ([]string, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, "main.tf")
	if diags.HasErrors() {
		return nil, &domain.ParseError{Err: diags}
	}

	bodyContent, _, partialDiags := file.Body.PartialContent(&hcl.BodySchema{
		Blocks: []hcl.BlockHeaderSchema{
			{Type: "resource", LabelNames: []string{"type", "name"}},
		},
	})
	if partialDiags.HasErrors() {
		return nil, &domain.ParseError{Err: partialDiags}
	}

	var names []string
	for _, block := range bodyContent.Blocks {
		if len(block.Labels) < 2 || block.Labels[0] != "juju_application" {
			continue
		}
		charmContent, _, charmDiags := block.Body.PartialContent(&hcl.BodySchema{
			Blocks: []hcl.BlockHeaderSchema{{Type: "charm"}},
		})
		if charmDiags.HasErrors() {
			continue
		}
		for _, charmBlock := range charmContent.Blocks {
			attrs, _ := charmBlock.Body.JustAttributes()
			nameAttr, hasName := attrs["name"]
			if !hasName {
				continue
			}
			val, valDiags := nameAttr.Expr.Value(&hcl.EvalContext{})
			if valDiags.HasErrors() || val.Type() != cty.String {
				continue
			}
			names = append(names, val.AsString())
		}
	}

	return names, nil
}

func parseForWrite(src []byte) (*hclwrite.File, error) {
	file, diags := hclwrite.ParseConfig(src, "", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, &domain.ParseError{Err: diags}
	}
	return file, nil
}

// findRequiredProvidersBody walks the write AST down to the
// terraform.required_providers block body.
func findRequiredProvidersBody(file *hclwrite.File) *hclwrite.Body {
	for _, block := range file.Body().Blocks() {
		if block.Type() != "terraform" {
			continue
		}
		for _, inner := range block.Body().Blocks() {
			if inner.Type() == "required_providers" {
				return inner.Body()
			}
		}
	}
	return nil
}

// readRequiredProviders evaluates the literal provider objects declared in
// the terraform.required_providers block, keyed by provider name.
func readRequiredProviders(src []byte) (map[string]map[string]cty.Value, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, "versions.tf")
	if diags.HasErrors() {
		return nil, &domain.ParseError{Err: diags}
	}

	bodyContent, _, partialDiags := file.Body.PartialContent(&hcl.BodySchema{
		Blocks: []hcl.BlockHeaderSchema{{Type: "terraform"}},
	})
	if partialDiags.HasErrors() {
		return nil, &domain.ParseError{Err: partialDiags}
	}

	providers := make(map[string]map[string]cty.Value)
	for _, tfBlock := range bodyContent.Blocks {
		inner, _, innerDiags := tfBlock.Body.PartialContent(&hcl.BodySchema{
			Blocks: []hcl.BlockHeaderSchema{{Type: "required_providers"}},
		})
		if innerDiags.HasErrors() {
			continue
		}
		for _, provBlock := range inner.Blocks {
			attrs, _ := provBlock.Body.JustAttributes()
			for name, attr := range attrs {
				val, valDiags := attr.Expr.Value(&hcl.EvalContext{})
				if valDiags.HasErrors() || !val.Type().IsObjectType() {
					continue
				}
				fields := make(map[string]cty.Value)
				for key, field := range val.AsValueMap() {
					fields[key] = field
				}
				providers[name] = fields
			}
		}
	}

	return providers, nil
}
