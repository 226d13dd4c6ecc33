package metrics

import (
	"io"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/the-lightning-land/theracd/control"
)

var _ = Describe("Recorder", func() {
	var r *Recorder

	BeforeEach(func() {
		r = New()
	})

	It("should count setups by outcome", func() {
		r.Observe(&control.Event{Kind: control.EventSetupAccepted})
		r.Observe(&control.Event{Kind: control.EventSetupAccepted})
		r.Observe(&control.Event{Kind: control.EventSetupRejected})
		r.Observe(&control.Event{Kind: control.EventSafetyBypassed})

		Expect(testutil.ToFloat64(r.setups.WithLabelValues("accepted"))).To(Equal(2.0))
		Expect(testutil.ToFloat64(r.setups.WithLabelValues("rejected"))).To(Equal(1.0))
		Expect(testutil.ToFloat64(r.setups.WithLabelValues("bypassed"))).To(Equal(1.0))
	})

	It("should count fires by result", func() {
		r.Observe(&control.Event{Kind: control.EventFired, Result: control.FireSuccess})
		r.Observe(&control.Event{Kind: control.EventAccident, Result: control.FireLethalOverdose})
		r.Observe(&control.Event{Kind: control.EventSafetyAbort, Result: control.FireSafetyAbort})

		Expect(testutil.ToFloat64(r.fires.WithLabelValues("SUCCESS"))).To(Equal(1.0))
		Expect(testutil.ToFloat64(r.fires.WithLabelValues("LETHAL_OVERDOSE"))).To(Equal(1.0))
		Expect(testutil.ToFloat64(r.fires.WithLabelValues("SAFETY_ABORT"))).To(Equal(1.0))
	})

	It("should count stops and sessions", func() {
		r.Observe(&control.Event{Kind: control.EventEmergencyStop})
		r.SessionStarted()
		r.SessionStarted()

		Expect(testutil.ToFloat64(r.emergencyStops)).To(Equal(1.0))
		Expect(testutil.ToFloat64(r.sessions)).To(Equal(2.0))
	})

	It("should expose the counters over http", func() {
		r.Observe(&control.Event{Kind: control.EventTurntableMoved})

		rec := httptest.NewRecorder()
		r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

		body, err := io.ReadAll(rec.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring(`theracd_mode_changes_total{result="moved"} 1`))
	})
})
