package ollama

import (
	"bytes"
	"fmt"
	"text/template"
)

// RenderTemplate renders a prompt template with the provided data. Missing
// map keys are an error so a template/data mismatch never reaches a model.
func RenderTemplate(name, tmpl string, data any) (string, error) {
	tpl, err := template.New(name).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}

	return buf.String(), nil
}
