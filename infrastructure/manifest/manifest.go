// Package manifest reads the declarative Terraform manifests that enumerate
// the managed charm ecosystem, and the per-charm metadata files.
package manifest

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/rios0rios0/charmci/domain"
)

// sourcePattern matches remote module sources of the form
// "https://github.com/org/repo//terraform/module?ref=branch".
var sourcePattern = regexp.MustCompile(`^(https?://.+?)//(.+?)\?ref=(.+)$`)

// ParseModule parses a Terraform manifest file and returns one CharmRef per
// module block with a remote git source. Module blocks with local sources
// are ignored. A remote source missing its subpath or ref is a ParseError:
// a partial manifest is never used.
func ParseModule(filename string) ([]domain.CharmRef, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, &domain.ParseError{File: filename, Err: err}
	}

	refs, parseErr := parseModuleBytes(data, filename)
	if parseErr != nil {
		return nil, parseErr
	}
	return refs, nil
}

func parseModuleBytes(data []byte, filename string) ([]domain.CharmRef, error) {
	parser := hclparse.NewParser()

	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, &domain.ParseError{File: filename, Err: diags}
	}

	bodyContent, _, partialDiags := file.Body.PartialContent(&hcl.BodySchema{
		Blocks: []hcl.BlockHeaderSchema{
			{Type: "module", LabelNames: []string{"name"}},
		},
	})
	if partialDiags.HasErrors() {
		return nil, &domain.ParseError{File: filename, Err: partialDiags}
	}

	var refs []domain.CharmRef
	for _, block := range bodyContent.Blocks {
		if block.Type != "module" || len(block.Labels) == 0 {
			continue
		}
		name := block.Labels[0]

		attrs, _ := block.Body.JustAttributes()
		sourceAttr, hasSource := attrs["source"]
		if !hasSource {
			return nil, &domain.ParseError{
				File: filename,
				Err:  fmt.Errorf("module %q has no source attribute", name),
			}
		}

		sourceVal, sourceDiags := sourceAttr.Expr.Value(&hcl.EvalContext{})
		if sourceDiags.HasErrors() || sourceVal.Type() != cty.String {
			return nil, &domain.ParseError{
				File: filename,
				Err:  fmt.Errorf("module %q has a non-literal source", name),
			}
		}

		source := sourceVal.AsString()
		if !strings.HasPrefix(source, "http") {
			// Local module, not a managed component.
			continue
		}

		match := sourcePattern.FindStringSubmatch(source)
		if match == nil {
			return nil, &domain.ParseError{
				File: filename,
				Err: fmt.Errorf(
					"module %q source %q is missing its subpath or ref", name, source,
				),
			}
		}

		refs = append(refs, domain.CharmRef{
			Name:    name,
			RepoURL: match[1],
			Path:    match[2],
			Branch:  match[3],
		})
	}

	return refs, nil
}
