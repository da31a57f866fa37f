// scene/project.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package scene

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/radioscape/radioscape/geo"
)

// ITMParams configures the Longley-Rice propagation model.
type ITMParams struct {
	Climate            int     `json:"climate"`             // ITU climate zone (1-7)
	GroundDielectric   float32 `json:"ground_dielectric"`   // relative permittivity
	GroundConductivity float32 `json:"ground_conductivity"` // S/m
	Polarization       int     `json:"polarization"`        // 0=horizontal, 1=vertical
	SituationPct       float32 `json:"situation_pct"`
	TimePct            float32 `json:"time_pct"`
	Refractivity       float32 `json:"refractivity"` // N-units
	LocationPct        float32 `json:"location_pct"`
	Mdvar              int     `json:"mdvar"`
}

func DefaultITMParams() ITMParams {
	return ITMParams{
		Climate:            5, // continental temperate
		GroundDielectric:   15,
		GroundConductivity: 0.005,
		Polarization:       1,
		SituationPct:       50,
		TimePct:            50,
		Refractivity:       301,
		LocationPct:        50,
		Mdvar:              12,
	}
}

// Project is a saved radio network: its area of interest, nodes, and
// analysis configuration.
type Project struct {
	Name    string     `json:"name"`
	Bounds  geo.Bounds `json:"bounds"`
	Nodes   []Node     `json:"nodes"`
	RF      RFConfig   `json:"rf"`
	ITM     ITMParams  `json:"itm"`
	Imagery string     `json:"imagery"` // "satellite", "street", or "none"

	// Path loss model for link budgets: "itm" (default), "fspl", or
	// "knife".
	Propagation string `json:"propagation,omitempty"`

	// Optional directory of local DSM GeoTIFF tiles.
	DSMDir string `json:"dsm_dir,omitempty"`
}

// LoadProject reads a project file, applying hardware defaults to
// every node.
func LoadProject(path string) (*Project, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	p := &Project{RF: DefaultRFConfig(), ITM: DefaultITMParams()}
	if err := json.Unmarshal(b, p); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if p.Bounds.MinLat >= p.Bounds.MaxLat || p.Bounds.MinLon >= p.Bounds.MaxLon {
		return nil, fmt.Errorf("%s: degenerate bounds", path)
	}
	for i := range p.Nodes {
		p.Nodes[i].ApplyDefaults()
	}
	return p, nil
}

// Save writes the project as indented JSON.
func (p *Project) Save(path string) error {
	b, err := json.MarshalIndent(p, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}
