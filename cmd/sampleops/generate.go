package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/sampleops/generate"
	"github.com/jonwraymond/sampleops/recovery"
	"github.com/jonwraymond/sampleops/sampling"
)

type generateOptions struct {
	templateID  string
	prompt      string
	vars        map[string]string
	temperature float64
	maxTokens   int
	model       string
	asJSON      bool
}

func newGenerateCmd(configPath *string) *cobra.Command {
	var opts generateOptions

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one artifact and print it",
		Example: `  sampleops generate --template dockerfile --var language=go --var port=8080
  sampleops generate --template k8s-manifests --var app_name=api --var image=ghcr.io/acme/api:1.0
  sampleops generate --prompt "Write a .dockerignore for a node project"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, *configPath)
			if err != nil {
				return err
			}
			cfg.Observe.Metrics.Enabled = false

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			vars := make(map[string]any, len(opts.vars))
			for k, v := range opts.vars {
				vars[k] = v
			}

			var req sampling.Request
			switch {
			case opts.templateID != "" && opts.prompt != "":
				return errors.New("--template and --prompt are mutually exclusive")
			case opts.templateID != "":
				req, err = a.generator.Render(opts.templateID, vars)
				if err != nil {
					return err
				}
			case opts.prompt != "":
				req = sampling.Request{
					Prompt:    opts.prompt,
					Params:    sampling.Params{Temperature: cfg.Sampler.Temperature},
					Variables: vars,
				}
			default:
				return errors.New("one of --template or --prompt is required")
			}

			p := req.Params
			if cmd.Flags().Changed("temperature") {
				p.Temperature = opts.temperature
			}
			if opts.maxTokens > 0 {
				p.MaxTokens = opts.maxTokens
			}
			if opts.model != "" {
				p.Model = opts.model
			}
			req = req.WithParams(p)

			res, genErr := a.generator.Generate(ctx, req)
			if opts.asJSON {
				if err := writeResultJSON(cmd.OutOrStdout(), res, genErr); err != nil {
					return err
				}
				return genErr
			}
			if res != nil && res.Recovery != nil {
				printTrail(cmd.ErrOrStderr(), res.Recovery)
			}
			if genErr != nil {
				return genErr
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), sampling.ArtifactString(res.Artifact))
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.templateID, "template", "t", "", "template ID (see GET /v1/templates)")
	f.StringVarP(&opts.prompt, "prompt", "p", "", "free-form prompt instead of a template")
	f.StringToStringVar(&opts.vars, "var", nil, "template variable as key=value (repeatable)")
	f.Float64Var(&opts.temperature, "temperature", 0, "sampling temperature override")
	f.IntVar(&opts.maxTokens, "max-tokens", 0, "max tokens override")
	f.StringVar(&opts.model, "model", "", "model override")
	f.BoolVar(&opts.asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func writeResultJSON(w io.Writer, res *generate.Result, genErr error) error {
	out := struct {
		*generate.Result
		Error string `json:"error,omitempty"`
	}{Result: res}
	if out.Result == nil {
		out.Result = &generate.Result{}
	}
	if genErr != nil {
		out.Error = genErr.Error()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printTrail(w io.Writer, rec *recovery.Result) {
	outcome := "recovered"
	if !rec.Success {
		outcome = "abandoned: " + rec.AbandonReason.String()
	}
	fmt.Fprintf(w, "recovery session %s %s after %d attempt(s), %d tokens\n",
		rec.SessionID, outcome, len(rec.Attempts), rec.Context.Metadata.TokensUsed)
	for _, at := range rec.Attempts {
		status := "ok"
		if !at.Success {
			status = "failed: " + at.Error
		}
		fmt.Fprintf(w, "  #%d %-18s %s\n", at.Number, at.Strategy, status)
	}
}
