package calendar

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlFile is the on-disk shape of a YAML-backed holiday calendar:
//
//	holidays:
//	  - date: 2026-01-01
//	    name: New Year's Day
type yamlFile struct {
	Holidays []struct {
		Date string `yaml:"date"`
		Name string `yaml:"name"`
	} `yaml:"holidays"`
}

// LoadYAMLCalendar reads a declarative holiday list from a YAML file.
func LoadYAMLCalendar(path string) (*StaticCalendar, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calendar file: %w", err)
	}

	var parsed yamlFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse calendar file: %w", err)
	}

	cal := NewStaticCalendar()
	for _, h := range parsed.Holidays {
		d, err := time.Parse("2006-01-02", h.Date)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday date %q: %w", h.Date, err)
		}
		cal.Add(d)
	}
	return cal, nil
}
