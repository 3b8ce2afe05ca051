package generate

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"text/template"

	"github.com/jonwraymond/sampleops/sampling"
)

// Built-in template IDs.
const (
	TemplateDockerfile   = "dockerfile"
	TemplateK8sManifests = "k8s-manifests"
)

// Template renders a prompt for one kind of artifact.
type Template struct {
	// ID names the template and becomes Request.TemplateID.
	ID string

	// Description is a one-line summary for listings.
	Description string

	// Text is a text/template body executed with the merged variables.
	Text string

	// Required lists variables that must be present and non-empty.
	Required []string

	// Defaults fill variables the caller does not supply.
	Defaults map[string]any

	// Params are the sampling parameters of rendered requests. Zero
	// fields are filled by the Generator's defaults.
	Params sampling.Params

	// Validate checks sampled output. Nil accepts anything non-empty.
	Validate func(artifact string) error
}

type compiled struct {
	Template
	tmpl *template.Template
}

// Templates is a registry of prompt templates.
type Templates struct {
	mu        sync.RWMutex
	templates map[string]*compiled
}

// NewTemplates returns an empty registry.
func NewTemplates() *Templates {
	return &Templates{templates: make(map[string]*compiled)}
}

// DefaultTemplates returns a registry with the built-in templates.
func DefaultTemplates() *Templates {
	t := NewTemplates()
	for _, tmpl := range builtinTemplates() {
		if err := t.Register(tmpl); err != nil {
			panic(err)
		}
	}
	return t
}

// Register compiles and adds a template.
func (t *Templates) Register(tmpl Template) error {
	id := strings.TrimSpace(tmpl.ID)
	if id == "" || strings.TrimSpace(tmpl.Text) == "" {
		return fmt.Errorf("%w: id and text are required", ErrInvalidTemplate)
	}

	parsed, err := template.New(id).Option("missingkey=zero").Parse(tmpl.Text)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, id, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.templates[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTemplate, id)
	}
	tmpl.ID = id
	t.templates[id] = &compiled{Template: tmpl, tmpl: parsed}
	return nil
}

// Get returns the template registered under id.
func (t *Templates) Get(id string) (Template, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.templates[id]
	if !ok {
		return Template{}, false
	}
	return c.Template, true
}

// IDs returns the registered template IDs, sorted.
func (t *Templates) IDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Sorted(maps.Keys(t.templates))
}

// Render builds a request from template id and vars. Defaults are merged
// under vars before the required check.
func (t *Templates) Render(id string, vars map[string]any) (sampling.Request, error) {
	t.mu.RLock()
	c, ok := t.templates[id]
	t.mu.RUnlock()
	if !ok {
		return sampling.Request{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, id)
	}

	merged := maps.Clone(c.Defaults)
	if merged == nil {
		merged = make(map[string]any, len(vars))
	}
	maps.Copy(merged, vars)

	var missing []string
	for _, name := range c.Required {
		if v, ok := merged[name]; !ok || v == nil || fmt.Sprint(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return sampling.Request{}, fmt.Errorf("%w: %s", ErrMissingVariable, strings.Join(missing, ", "))
	}

	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, merged); err != nil {
		return sampling.Request{}, fmt.Errorf("generate: render template %q: %w", id, err)
	}

	return sampling.Request{
		Prompt:     strings.TrimSpace(buf.String()),
		Params:     c.Params,
		TemplateID: id,
		Variables:  merged,
	}, nil
}

// validator returns the output check for id, if any.
func (t *Templates) validator(id string) func(string) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if c, ok := t.templates[id]; ok {
		return c.Validate
	}
	return nil
}

const dockerfileText = `Generate a production-ready Dockerfile for a {{.language}} application{{with .app_name}} named {{.}}{{end}}.
{{- with .base_image}}
Use the base image {{.}}.
{{- end}}
{{- with .runtime}}
Target runtime version {{.}}.
{{- end}}
{{- with .port}}
Expose port {{.}}.
{{- end}}
{{- with .entrypoint}}
Start the application with: {{.}}
{{- end}}
{{- if .healthcheck}}
Include a HEALTHCHECK instruction.
{{- end}}
Use a minimal base image, run as a non-root user and order layers for build cache reuse.
Return only the Dockerfile content without commentary.`

const k8sManifestsText = `Generate Kubernetes manifests for the application {{.app_name}} using the container image {{.image}}.
Create a Deployment with {{.replicas}} replica(s) in namespace {{.namespace}}.
{{- with .port}}
The container listens on port {{.}}; add a ClusterIP Service exposing it.
{{- end}}
{{- with .ingress_host}}
Add an Ingress routing host {{.}} to the Service.
{{- end}}
{{- with .resources}}
Resource requests and limits: {{.}}.
{{- end}}
Set readiness and liveness probes and a restrictive securityContext.
Return only YAML documents separated by ---, without commentary.`

func builtinTemplates() []Template {
	return []Template{
		{
			ID:          TemplateDockerfile,
			Description: "Dockerfile for an application",
			Text:        dockerfileText,
			Required:    []string{"language"},
			Params:      sampling.Params{Temperature: 0.2, MaxTokens: 1500},
			Validate:    ValidateDockerfile,
		},
		{
			ID:          TemplateK8sManifests,
			Description: "Kubernetes Deployment, Service and Ingress manifests",
			Text:        k8sManifestsText,
			Required:    []string{"app_name", "image"},
			Defaults:    map[string]any{"replicas": 1, "namespace": "default"},
			Params:      sampling.Params{Temperature: 0.2, MaxTokens: 3000},
			Validate:    ValidateManifests,
		},
	}
}
