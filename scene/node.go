// scene/node.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package scene holds the radio network being analyzed: the nodes,
// their hardware profiles, and the project-level RF configuration. The
// viewshed engine consumes this data but never mutates it.
package scene

// Node roles.
const (
	RoleBackbone = 0
	RoleRelay    = 1
	RoleLeaf     = 2
)

// Node is one radio in the network. Hardware fields left zero take the
// defaults from ApplyDefaults.
type Node struct {
	ID   int    `json:"id"`
	Name string `json:"name"`

	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	Alt            float64 `json:"alt"`
	AntennaHeightM float32 `json:"antenna_height_m"`
	MaxRangeKm     float32 `json:"max_range_km"`
	Role           int     `json:"role"`

	TxPowerDbm       float32 `json:"tx_power_dbm"`
	AntennaGainDbi   float32 `json:"antenna_gain_dbi"`
	RxSensitivityDbm float32 `json:"rx_sensitivity_dbm"`
	FrequencyMHz     float32 `json:"frequency_mhz"`
	CableLossDb      float32 `json:"cable_loss_db"`
	BandwidthKHz     float32 `json:"bandwidth_khz"`
	SpreadingFactor  int     `json:"spreading_factor"`
}

// Hardware defaults applied when a node's fields are unset.
const (
	DefaultAntennaHeightM   = 2.0
	DefaultTxPowerDbm       = 22.0
	DefaultFrequencyMHz     = 906.875
	DefaultRxSensitivityDbm = -132.0
)

// ApplyDefaults fills in unset or invalid hardware fields.
func (n *Node) ApplyDefaults() {
	if n.AntennaHeightM < 1 {
		n.AntennaHeightM = DefaultAntennaHeightM
	}
	if n.TxPowerDbm <= 0 {
		n.TxPowerDbm = DefaultTxPowerDbm
	}
	if n.FrequencyMHz <= 0 {
		n.FrequencyMHz = DefaultFrequencyMHz
	}
	if n.RxSensitivityDbm >= 0 {
		n.RxSensitivityDbm = DefaultRxSensitivityDbm
	}
}

// EIRP returns the node's effective radiated power in dBm.
func (n *Node) EIRP() float32 {
	return n.TxPowerDbm + n.AntennaGainDbi - n.CableLossDb
}

// RFConfig is the receiver-side and display configuration shared by
// the whole project.
type RFConfig struct {
	RxSensitivityDbm  float32 `json:"rx_sensitivity_dbm"`
	RxHeightAglM      float32 `json:"rx_height_agl_m"`
	RxAntennaGainDbi  float32 `json:"rx_antenna_gain_dbi"`
	RxCableLossDb     float32 `json:"rx_cable_loss_db"`
	DisplayMinDbm     float32 `json:"display_min_dbm"`
	DisplayMaxDbm     float32 `json:"display_max_dbm"`
}

// DefaultRFConfig returns the stock receiver configuration.
func DefaultRFConfig() RFConfig {
	return RFConfig{
		RxSensitivityDbm: -130,
		RxHeightAglM:     1,
		RxAntennaGainDbi: 2,
		RxCableLossDb:    2,
		DisplayMinDbm:    -130,
		DisplayMaxDbm:    -80,
	}
}
