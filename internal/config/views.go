package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/models"
	"stockwatch/internal/ranking"
)

// View is a named filter and sort preset.
type View struct {
	Name     string `yaml:"name"`
	Ticker   string `yaml:"ticker"`
	Sector   string `yaml:"sector"`
	Leverage string `yaml:"leverage"`
	Sort     string `yaml:"sort"`
	Order    string `yaml:"order"`
}

type viewsFile struct {
	Views []View `yaml:"views"`
}

// LoadViews reads presets from path. A missing file yields no views.
func LoadViews(path string) ([]View, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var f viewsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	seen := make(map[string]bool, len(f.Views))
	out := make([]View, 0, len(f.Views))
	for _, v := range f.Views {
		v.Name = strings.TrimSpace(v.Name)
		key := strings.ToLower(v.Name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		v.Ticker = strings.ToUpper(strings.TrimSpace(v.Ticker))
		out = append(out, v)
	}
	return out, nil
}

// Validate checks the leverage and sort settings of the view.
func (v View) Validate() error {
	if _, ok := models.ParseLeverageFilter(v.Leverage); !ok {
		return apperrors.NewValidationError("views."+v.Name+".leverage", v.Leverage, "unknown leverage filter")
	}
	if v.Sort != "" {
		if _, ok := ranking.Standard().Lookup(v.Sort); !ok {
			return apperrors.NewValidationError("views."+v.Name+".sort", v.Sort, "unknown column")
		}
	}
	switch strings.ToLower(v.Order) {
	case "", "asc", "desc":
	default:
		return apperrors.NewValidationError("views."+v.Name+".order", v.Order, "must be asc or desc")
	}
	return nil
}

// Filters converts the view to dashboard filters.
func (v View) Filters() models.Filters {
	lev, ok := models.ParseLeverageFilter(v.Leverage)
	if !ok {
		lev = models.LeverageBoth
	}
	return models.Filters{Ticker: v.Ticker, Sector: v.Sector, Leverage: lev}
}

// SortState returns the view's sort, or false when it names none.
func (v View) SortState() (models.SortState, bool) {
	if v.Sort == "" {
		return models.SortState{}, false
	}
	dir := models.SortDesc
	if strings.EqualFold(v.Order, "asc") {
		dir = models.SortAsc
	}
	return models.SortState{Column: v.Sort, Direction: dir}, true
}
