package deploy

import (
	"context"
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/template"

	"github.com/google/go-containerregistry/pkg/name"
)

//go:embed templates/*.tmpl
var builtinTemplates embed.FS

// Kind selects what to render
type Kind string

const (
	KindDockerfile     Kind = "dockerfile"
	KindTaskDefinition Kind = "task-definition"
)

var kinds = map[Kind]struct {
	template string
	output   string
}{
	KindDockerfile:     {template: "Dockerfile.tmpl", output: "Dockerfile"},
	KindTaskDefinition: {template: "task-definition.json.tmpl", output: "task-definition.json"},
}

// DefaultOutput returns the file a kind is rendered to when no output is given
func DefaultOutput(kind Kind) (string, error) {
	k, ok := kinds[kind]
	if !ok {
		return "", fmt.Errorf("unknown kind %q", kind)
	}
	return k.output, nil
}

// Identity reports the account and region deployments target
type Identity interface {
	AccountID(ctx context.Context) (string, error)
	Region() string
}

// RenderOptions configure a render
type RenderOptions struct {
	Kind Kind
	// TemplatePath overrides the built-in template for Kind
	TemplatePath string
	Repository   string
	Tag          string
}

// TemplateData resolves the values available to templates: account_id,
// region_name and, when a repository is given, image_uri
func TemplateData(ctx context.Context, id Identity, repository, tag string) (map[string]string, error) {
	account, err := id.AccountID(ctx)
	if err != nil {
		return nil, err
	}
	data := map[string]string{
		"account_id":  account,
		"region_name": id.Region(),
		"image_uri":   "",
	}
	if repository != "" {
		uri, err := ImageURI(account, id.Region(), repository, tag)
		if err != nil {
			return nil, err
		}
		data["image_uri"] = uri
	}
	return data, nil
}

// ImageURI returns the ECR image reference for repository:tag
func ImageURI(account, region, repository, tag string) (string, error) {
	if tag == "" {
		tag = "latest"
	}
	ref, err := name.NewTag(fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com/%s:%s", account, region, repository, tag))
	if err != nil {
		return "", fmt.Errorf("invalid image reference: %w", err)
	}
	return ref.Name(), nil
}

// Render writes the template for opts, filled with the caller's identity, to w
func Render(ctx context.Context, id Identity, opts RenderOptions, w io.Writer) error {
	tmpl, err := loadTemplate(opts)
	if err != nil {
		return err
	}
	data, err := TemplateData(ctx, id, opts.Repository, opts.Tag)
	if err != nil {
		return err
	}
	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", tmpl.Name(), err)
	}
	return nil
}

func loadTemplate(opts RenderOptions) (*template.Template, error) {
	if opts.TemplatePath != "" {
		src, err := os.ReadFile(opts.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read template: %w", err)
		}
		return parse(filepath.Base(opts.TemplatePath), string(src))
	}

	k, ok := kinds[opts.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", opts.Kind)
	}
	src, err := builtinTemplates.ReadFile("templates/" + k.template)
	if err != nil {
		return nil, err
	}
	return parse(k.template, string(src))
}

func parse(name, src string) (*template.Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return tmpl, nil
}
