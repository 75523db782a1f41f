package httpapi

import (
	"net/http"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aperture-systems/aperture/internal/aggregator/alerts"
	"github.com/aperture-systems/aperture/internal/aggregator/buffer"
	"github.com/aperture-systems/aperture/internal/aggregator/metrics"
	"github.com/aperture-systems/aperture/internal/events"
	"github.com/aperture-systems/aperture/internal/wire"
)

func newTestServer() (*Server, http.Handler) {
	return New(buffer.New(100), nil, metrics.New(), alerts.New(), zerolog.Nop())
}

func cpuPayload(t *testing.T, stacks ...[]uint64) []byte {
	t.Helper()
	var evts []events.Event
	for i, s := range stacks {
		evts = append(evts, events.Event{
			Kind: events.KindCpuSample,
			Cpu:  &events.CpuSample{Common: events.Common{TimestampNs: uint64(i)}, UserStack: s},
		})
	}
	return wire.Encode(wire.NewMessage(1, evts))
}
