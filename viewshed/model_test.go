// viewshed/model_test.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package viewshed

import (
	"math"
	"testing"

	"github.com/radioscape/radioscape/scene"
)

func TestParsePropagationModel(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want PropagationModel
	}{
		{"", ModelITM},
		{"itm", ModelITM},
		{"fspl", ModelFSPL},
		{"freespace", ModelFSPL},
		{"knife", ModelKnifeEdge},
		{"knife-edge", ModelKnifeEdge},
	} {
		got, err := ParsePropagationModel(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParsePropagationModel(%q) = %v, %v", tc.in, got, err)
		}
	}

	if _, err := ParsePropagationModel("okumura"); err == nil {
		t.Error("expected error for unknown model")
	}
}

func TestPathLossInvalidInput(t *testing.T) {
	params := scene.DefaultITMParams()
	for _, m := range []PropagationModel{ModelITM, ModelFSPL, ModelKnifeEdge} {
		if got := PathLoss(m, nil, 30, 5, 5, 906.875, params); got != 999 {
			t.Errorf("%s: nil profile loss = %v, want 999", m, got)
		}
		if got := PathLoss(m, flatProfile(10, 100), 0, 5, 5, 906.875, params); got != 999 {
			t.Errorf("%s: zero step loss = %v, want 999", m, got)
		}
	}
}

func TestPathLossFSPL(t *testing.T) {
	profile := flatProfile(101, 1500) // terrain height is irrelevant to FSPL
	got := PathLoss(ModelFSPL, profile, 30, 5, 5, 906.875, scene.DefaultITMParams())
	want := float32(freeSpaceLoss(100*30, 906.875))
	if math.Abs(float64(got-want)) > 1e-3 {
		t.Errorf("FSPL loss = %v, want %v", got, want)
	}
}

func TestPathLossKnifeEdge(t *testing.T) {
	params := scene.DefaultITMParams()

	// Flat ground: no obstruction penetrates the sight line, so the
	// loss reduces to free space.
	flat := flatProfile(201, 0)
	clear := PathLoss(ModelKnifeEdge, flat, 30, 5, 5, 906.875, params)
	fspl := float32(freeSpaceLoss(200*30, 906.875))
	if math.Abs(float64(clear-fspl)) > 0.5 {
		t.Errorf("clear path loss = %v, want about %v", clear, fspl)
	}

	// A 150 m ridge at the midpoint adds diffraction loss.
	ridge := flatProfile(201, 0)
	ridge[100] = 150
	obstructed := PathLoss(ModelKnifeEdge, ridge, 30, 5, 5, 906.875, params)
	if obstructed <= clear+6 {
		t.Errorf("obstructed loss %v not clearly above clear-path %v", obstructed, clear)
	}
}

func TestPathLossModelsDiverge(t *testing.T) {
	// Over rough terrain ITM should charge more than free space.
	profile := flatProfile(401, 100)
	for i := 1; i < 400; i += 2 {
		profile[i] = 160
	}
	params := scene.DefaultITMParams()
	itm := PathLoss(ModelITM, profile, 30, 5, 5, 906.875, params)
	fspl := PathLoss(ModelFSPL, profile, 30, 5, 5, 906.875, params)
	if itm <= fspl {
		t.Errorf("ITM loss %v not above FSPL %v on rough terrain", itm, fspl)
	}
}
