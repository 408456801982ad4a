package service

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/timetable-api/internal/dto"
)

//go:embed templates/generation_templates.yaml
var generationTemplatesYAML []byte

type templateFile struct {
	Templates []dto.ConfigTemplate `yaml:"templates"`
}

// loadConfigTemplates parses the embedded generation presets.
func loadConfigTemplates(raw []byte) ([]dto.ConfigTemplate, error) {
	var file templateFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse generation templates: %w", err)
	}
	seen := make(map[string]bool, len(file.Templates))
	for _, t := range file.Templates {
		if t.Key == "" {
			return nil, fmt.Errorf("generation template %q has no key", t.Name)
		}
		if seen[t.Key] {
			return nil, fmt.Errorf("duplicate generation template %q", t.Key)
		}
		seen[t.Key] = true
	}
	return file.Templates, nil
}
