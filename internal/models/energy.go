/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import "github.com/shopspring/decimal"

// ResourceUsage is a limit/used/remaining triple for one chain resource
type ResourceUsage struct {
	Limit     int64 `json:"limit"`
	Used      int64 `json:"used"`
	Remaining int64 `json:"remaining"`
}

// ResourceSnapshot is the energy and bandwidth of an account at one point in time
type ResourceSnapshot struct {
	Energy    ResourceUsage `json:"energy"`
	Bandwidth ResourceUsage `json:"bandwidth"`
}

// AsWalletResources flattens the snapshot into the stored wallet shape
func (r ResourceSnapshot) AsWalletResources() WalletResources {
	return WalletResources{
		EnergyLimit:        r.Energy.Limit,
		EnergyUsed:         r.Energy.Used,
		EnergyAvailable:    r.Energy.Remaining,
		BandwidthLimit:     r.Bandwidth.Limit,
		BandwidthUsed:      r.Bandwidth.Used,
		BandwidthAvailable: r.Bandwidth.Remaining,
	}
}

// EnergyRentalResult reports what an energy provisioning attempt achieved
type EnergyRentalResult struct {
	Mode            EnergyMode      `json:"mode"`
	Success         bool            `json:"success"`
	Required        int64           `json:"required"`
	EnergyBefore    int64           `json:"energy_before"`
	EnergyAfter     int64           `json:"energy_after"`
	EnergyGained    int64           `json:"energy_gained"`
	CostTRX         decimal.Decimal `json:"cost_trx"`
	PurchasedEnergy int64           `json:"purchased_energy,omitempty"`
	ProviderOrderId string          `json:"provider_order_id,omitempty"`
	Reason          string          `json:"reason,omitempty"`
}
