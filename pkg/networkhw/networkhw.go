// Package networkhw inventories the Mac's Ethernet and Wi-Fi interfaces.
package networkhw

import (
	"context"
	"strings"

	"github.com/fleetdm/munki-conditions/pkg/conditions"
	"github.com/fleetdm/munki-conditions/pkg/execcmd"
	"github.com/groob/plist"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const systemProfilerPath = "/usr/sbin/system_profiler"

// DefaultInterfaceTypes are the system_profiler service types reported.
var DefaultInterfaceTypes = []string{"ethernet", "airport", "wi-fi"}

type networkReport []struct {
	Items []networkItem `plist:"_items"`
}

type networkItem struct {
	Name      string `plist:"_name"`
	Interface string `plist:"interface"`
	Type      string `plist:"type"`
	Ethernet  struct {
		MACAddress string `plist:"MAC Address"`
	} `plist:"Ethernet"`
}

// Interface is one reported network interface.
type Interface struct {
	Interface string
	Name      string
	Type      string
	HWAddress string
}

func (i Interface) dict() map[string]interface{} {
	return map[string]interface{}{
		"interface":  i.Interface,
		"name":       i.Name,
		"type":       i.Type,
		"hw_address": i.HWAddress,
	}
}

// IsWiFi reports whether the interface is wireless.
func (i Interface) IsWiFi() bool {
	t := strings.ToLower(i.Type)
	return t == "airport" || t == "wi-fi"
}

// Result is what one run measured.
type Result struct {
	Interfaces []Interface
	HasWiFi    bool
}

// Conditions returns the facts Munki sees.
func (r Result) Conditions() map[string]interface{} {
	ifaces := make([]map[string]interface{}, 0, len(r.Interfaces))
	for _, i := range r.Interfaces {
		ifaces = append(ifaces, i.dict())
	}
	return map[string]interface{}{
		"ethernet_and_wifi_interfaces": ifaces,
		"has_wi_fi":                    r.HasWiFi,
	}
}

type Reporter struct {
	types  map[string]bool
	runner execcmd.Runner
	store  *conditions.Store
	logger zerolog.Logger
}

// New returns a Reporter for the given service types, matched
// case-insensitively. No types means DefaultInterfaceTypes.
func New(types []string, runner execcmd.Runner, store *conditions.Store, logger zerolog.Logger) *Reporter {
	if len(types) == 0 {
		types = DefaultInterfaceTypes
	}
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[strings.ToLower(t)] = true
	}
	return &Reporter{
		types:  set,
		runner: runner,
		store:  store,
		logger: logger.With().Str("reporter", "network-hw").Logger(),
	}
}

// Interfaces returns the interfaces of the configured types that have both a
// BSD name and a hardware address.
func (r *Reporter) Interfaces(ctx context.Context) []Interface {
	out, err := r.runner.Output(ctx, systemProfilerPath, "SPNetworkDataType", "-xml")
	if err != nil {
		r.logger.Info().Err(err).Msg("system_profiler network report")
		return nil
	}
	var report networkReport
	if err := plist.Unmarshal(out, &report); err != nil {
		r.logger.Info().Err(err).Msg("parse network report")
		return nil
	}
	if len(report) == 0 {
		return nil
	}

	var ifaces []Interface
	for _, item := range report[0].Items {
		if item.Type == "" || !r.types[strings.ToLower(item.Type)] {
			continue
		}
		i := Interface{
			Interface: item.Interface,
			Name:      item.Name,
			Type:      item.Type,
			HWAddress: item.Ethernet.MACAddress,
		}
		if i.Interface == "" || i.HWAddress == "" {
			r.logger.Debug().Str("name", item.Name).Msg("skipping interface without a name or address")
			continue
		}
		ifaces = append(ifaces, i)
	}
	return ifaces
}

// Measure inventories the interfaces.
func (r *Reporter) Measure(ctx context.Context) Result {
	res := Result{Interfaces: r.Interfaces(ctx)}
	for _, i := range res.Interfaces {
		if i.IsWiFi() {
			res.HasWiFi = true
			break
		}
	}
	r.logger.Info().Int("interfaces", len(res.Interfaces)).Bool("has_wi_fi", res.HasWiFi).Msg("network hardware")
	return res
}

// Run measures and writes the interface conditions.
func (r *Reporter) Run(ctx context.Context) (Result, error) {
	res := r.Measure(ctx)
	if err := r.store.Write(res.Conditions()); err != nil {
		return res, errors.Wrap(err, "write network hardware conditions")
	}
	return res, nil
}
