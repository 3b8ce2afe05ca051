package generate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/sampleops/sampling"
)

// CleanArtifact trims whitespace and strips a surrounding Markdown code
// fence such as "```dockerfile ... ```".
func CleanArtifact(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	_, body, found := strings.Cut(s, "\n")
	if !found {
		return ""
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}

// ValidateDockerfile checks that the first instruction after leading ARGs is
// FROM.
func ValidateDockerfile(artifact string) error {
	sc := bufio.NewScanner(strings.NewReader(artifact))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keyword, _, _ := strings.Cut(line, " ")
		switch strings.ToUpper(keyword) {
		case "ARG":
			continue
		case "FROM":
			return nil
		default:
			return fmt.Errorf("%w: expected FROM instruction, found %q", ErrInvalidDockerfile, keyword)
		}
	}
	return ErrEmptyArtifact
}

// ValidateManifests checks that every YAML document decodes and carries
// apiVersion, kind and metadata.name.
func ValidateManifests(artifact string) error {
	dec := yaml.NewDecoder(strings.NewReader(artifact))
	docs := 0
	for n := 1; ; n++ {
		var doc map[string]any
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: expected YAML format in document %d: %v", ErrInvalidManifest, n, err)
		}
		if doc == nil {
			continue
		}
		docs++

		var missing []string
		for _, field := range []string{"apiVersion", "kind"} {
			if s, _ := doc[field].(string); s == "" {
				missing = append(missing, "field '"+field+"'")
			}
		}
		meta, _ := doc["metadata"].(map[string]any)
		if name, _ := meta["name"].(string); name == "" {
			missing = append(missing, "field 'metadata.name'")
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: document %d is missing required %s", ErrInvalidManifest, n, strings.Join(missing, ", "))
		}
	}
	if docs == 0 {
		return ErrEmptyArtifact
	}
	return nil
}

// validating cleans sampled output and turns validation failures into
// sampling failures that keep the output as partial result.
func validating(next sampling.Sampler, templates *Templates) sampling.Sampler {
	return sampling.SamplerFunc(func(ctx context.Context, req sampling.Request) (sampling.Response, error) {
		resp, err := next.Sample(ctx, req)
		if err != nil {
			return resp, err
		}

		text, ok := resp.Artifact.(string)
		if !ok {
			return resp, nil
		}
		text = CleanArtifact(text)
		resp.Artifact = text

		var invalid error
		if check := templates.validator(req.TemplateID); check != nil {
			invalid = check(text)
		} else if text == "" {
			invalid = ErrEmptyArtifact
		}
		if invalid != nil {
			return sampling.Response{}, &sampling.Error{
				Partial:    text,
				TokensUsed: resp.TokensUsed,
				Model:      resp.Model,
				Err:        invalid,
			}
		}
		return resp, nil
	})
}
