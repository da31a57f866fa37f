// scene/hardware.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package scene

// HardwareProfile is a preset for a common LoRa mesh radio.
type HardwareProfile struct {
	ID               string
	Name             string
	TxPowerDbm       float32
	AntennaGainDbi   float32
	CableLossDb      float32
	RxSensitivityDbm float32
	FrequencyMHz     float32
	BandwidthKHz     float32
	SpreadingFactor  int
	MaxRangeKm       float32
}

// HardwareProfiles lists the built-in radio presets.
var HardwareProfiles = []HardwareProfile{
	{"heltec_v3", "Heltec V3", 22, 2, 0.5, -132, 906.875, 250, 11, 5},
	{"tbeam_v1_1", "T-Beam V1.1", 22, 2.15, 0.5, -132, 906.875, 250, 11, 5},
	{"tbeam_1w", "T-Beam 1W", 30, 3, 0.5, -132, 906.875, 250, 11, 15},
	{"rak4631", "RAK4631", 22, 2.5, 0.5, -132, 906.875, 250, 11, 5},
	{"station_g2", "Station G2", 30, 3, 0.5, -136, 906.875, 250, 11, 20},
	{"nano_g2_ultra", "Nano G2 Ultra", 30, 2, 0.5, -136, 906.875, 250, 11, 15},
	{"base_station_high_gain", "Base Station HG", 30, 6, 0.5, -136, 906.875, 250, 11, 25},
	{"handheld_compact", "Handheld Compact", 22, 1, 0.5, -132, 906.875, 250, 11, 3},
}

// LookupHardwareProfile returns the profile with the given id, or nil.
func LookupHardwareProfile(id string) *HardwareProfile {
	for i := range HardwareProfiles {
		if HardwareProfiles[i].ID == id {
			return &HardwareProfiles[i]
		}
	}
	return nil
}

// Apply copies the profile's radio parameters onto a node.
func (p *HardwareProfile) Apply(n *Node) {
	n.TxPowerDbm = p.TxPowerDbm
	n.AntennaGainDbi = p.AntennaGainDbi
	n.CableLossDb = p.CableLossDb
	n.RxSensitivityDbm = p.RxSensitivityDbm
	n.FrequencyMHz = p.FrequencyMHz
	n.BandwidthKHz = p.BandwidthKHz
	n.SpreadingFactor = p.SpreadingFactor
	n.MaxRangeKm = p.MaxRangeKm
}
