package pgvector

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"raglab/internal/domain"
)

// RenderClassDefinition renders a schema template file with JSON values and
// decodes the result into a validated class definition.
func RenderClassDefinition(templatePath, valuesJSON string) (ClassDefinition, error) {
	src, err := os.ReadFile(templatePath)
	if err != nil {
		return ClassDefinition{}, domain.NewError(domain.KindInvalidArgument, templatePath, "cannot read schema template", err)
	}
	var values map[string]any
	if strings.TrimSpace(valuesJSON) != "" {
		if err := json.Unmarshal([]byte(valuesJSON), &values); err != nil {
			return ClassDefinition{}, domain.NewError(domain.KindInvalidArgument, "values", "schema values must be a JSON object", err)
		}
	}
	tmpl, err := template.New(filepath.Base(templatePath)).
		Option("missingkey=error").
		Funcs(template.FuncMap{"json": toJSON}).
		Parse(string(src))
	if err != nil {
		return ClassDefinition{}, domain.NewError(domain.KindInvalidTemplateFormat, templatePath, "cannot parse schema template", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, values); err != nil {
		return ClassDefinition{}, domain.NewError(domain.KindInvalidTemplateFormat, templatePath, "cannot render schema template", err)
	}
	var def ClassDefinition
	dec := json.NewDecoder(&buf)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&def); err != nil {
		return ClassDefinition{}, domain.NewError(domain.KindInvalidTemplateFormat, templatePath, "rendered schema is not a class definition", err)
	}
	if err := def.Validate(); err != nil {
		return ClassDefinition{}, err
	}
	return def, nil
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}
