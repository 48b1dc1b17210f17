// Package printqueues adds or refreshes the CUPS print queues described in
// the print_queues metadata of the Mac's manifests.
package printqueues

import (
	"context"
	"os"
	"reflect"
	"strings"

	"github.com/WatchBeam/clock"
	"github.com/fleetdm/munki-conditions/pkg/conditions"
	"github.com/fleetdm/munki-conditions/pkg/execcmd"
	"github.com/fleetdm/munki-conditions/pkg/manifests"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	lpoptionsPath = "/usr/bin/lpoptions"
	lpadminPath   = "/usr/sbin/lpadmin"
)

// Queue is one print_queues entry. The raw dictionary is kept so the
// reported condition carries every key the manifest author set.
type Queue map[string]interface{}

func (q Queue) str(key string) string {
	s, _ := q[key].(string)
	return s
}

func (q Queue) Name() string      { return q.str("name") }
func (q Queue) PPDPath() string   { return q.str("ppd_path") }
func (q Queue) DeviceURI() string { return q.str("device_uri") }

// DisplayName is display_name, falling back to the queue name.
func (q Queue) DisplayName() string {
	if d := q.str("display_name"); d != "" {
		return d
	}
	return q.Name()
}

func (q Queue) KerberosAuthRequired() bool {
	return manifests.Truthy(q["kerberos_auth_required"])
}

func (q Queue) AdditionalCUPSOptions() []string {
	items, _ := q["additional_cups_opts"].([]interface{})
	var opts []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			opts = append(opts, s)
		}
	}
	return opts
}

func (q Queue) valid() bool {
	return q.Name() != "" && q.PPDPath() != "" && q.DeviceURI() != ""
}

// LpadminArgs returns the lpadmin arguments that create the queue, or only
// update its attributes when setAttrsOnly is true.
func (q Queue) LpadminArgs(setAttrsOnly bool) []string {
	args := []string{"-p", q.Name(), "-D", q.DisplayName(), "-E", "-P", q.PPDPath()}
	if !setAttrsOnly {
		args = append(args, "-v", q.DeviceURI())
	}
	args = append(args, "-o", "printer-is-shared=False")
	if q.KerberosAuthRequired() {
		args = append(args, "-o", "auth-info-required=negotiate")
	}
	for _, opt := range q.AdditionalCUPSOptions() {
		args = append(args, "-o", opt)
	}
	return args
}

// DeviceURIFromLpoptions returns the device-uri value from lpoptions output.
func DeviceURIFromLpoptions(out []byte) string {
	for _, attr := range strings.Fields(string(out)) {
		if !strings.Contains(attr, "device-uri") {
			continue
		}
		if i := strings.Index(attr, "="); i >= 0 {
			return attr[i+1:]
		}
	}
	return ""
}

type Reporter struct {
	runner execcmd.Runner
	tree   *manifests.Tree
	store  *conditions.Store
	clock  clock.Clock
	logger zerolog.Logger
}

func New(runner execcmd.Runner, tree *manifests.Tree, store *conditions.Store, c clock.Clock, logger zerolog.Logger) *Reporter {
	return &Reporter{
		runner: runner,
		tree:   tree,
		store:  store,
		clock:  c,
		logger: logger.With().Str("reporter", "print-queues").Logger(),
	}
}

// Requested returns the distinct print queues of the applicable manifests
// that name a queue, a device and an installed PPD.
func (r *Reporter) Requested() []Queue {
	var all []Queue
	for _, m := range r.tree.Applicable() {
		for _, raw := range r.tree.Metadata(m).PrintQueues {
			q := Queue(raw)
			if !containsQueue(all, q) {
				all = append(all, q)
			}
		}
	}

	var queues []Queue
	for _, q := range all {
		if !q.valid() {
			r.logger.Debug().Str("queue", q.Name()).Msg("print queue lacks name, ppd_path or device_uri")
			continue
		}
		if _, err := os.Stat(q.PPDPath()); err != nil {
			r.logger.Info().Str("queue", q.Name()).Str("ppd", q.PPDPath()).Msg("PPD not installed, skipping queue")
			continue
		}
		queues = append(queues, q)
	}
	return queues
}

// Present reports whether a queue with the same name already prints to the
// requested device URI.
func (r *Reporter) Present(ctx context.Context, q Queue) bool {
	// -p selects the destination without making it the default, as -d would.
	out, err := r.runner.Output(ctx, lpoptionsPath, "-p", q.Name())
	if err != nil {
		r.logger.Debug().Err(err).Str("queue", q.Name()).Msg("lpoptions")
		return false
	}
	measured := DeviceURIFromLpoptions(out)
	return measured != "" && strings.EqualFold(measured, q.DeviceURI())
}

// Apply adds or refreshes every requested queue and returns the queues
// annotated with the outcome.
func (r *Reporter) Apply(ctx context.Context) []Queue {
	requested := r.Requested()
	processed := make([]Queue, 0, len(requested))
	for _, q := range requested {
		out := make(Queue, len(q)+2)
		for k, v := range q {
			out[k] = v
		}

		if !r.Present(ctx, q) {
			err := r.runner.Run(ctx, lpadminPath, q.LpadminArgs(false)...)
			r.logResult(err, q, "added print queue")
			out["queue_added"] = err == nil
			out["queue_added_timestamp"] = r.clock.Now().UTC()
		} else {
			err := r.runner.Run(ctx, lpadminPath, q.LpadminArgs(true)...)
			r.logResult(err, q, "set print queue attributes")
			out["queue_attributes_set"] = err == nil
			out["queue_attributes_set_timestamp"] = r.clock.Now().UTC()
		}
		processed = append(processed, out)
	}
	return processed
}

func (r *Reporter) logResult(err error, q Queue, msg string) {
	if err != nil {
		r.logger.Error().Err(err).Str("queue", q.Name()).Msg("lpadmin")
		return
	}
	r.logger.Info().Str("queue", q.Name()).Str("uri", q.DeviceURI()).Msg(msg)
}

// Run applies the queues and writes managed_print_queues.
func (r *Reporter) Run(ctx context.Context) ([]Queue, error) {
	queues := r.Apply(ctx)
	dicts := make([]map[string]interface{}, 0, len(queues))
	for _, q := range queues {
		dicts = append(dicts, q)
	}
	if err := r.store.Write(map[string]interface{}{"managed_print_queues": dicts}); err != nil {
		return queues, errors.Wrap(err, "write print queue conditions")
	}
	return queues, nil
}

func containsQueue(queues []Queue, q Queue) bool {
	for _, have := range queues {
		if reflect.DeepEqual(have, q) {
			return true
		}
	}
	return false
}
