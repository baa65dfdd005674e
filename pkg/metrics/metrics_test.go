package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created with the pss namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "pss")
				So(manager.subsystem, ShouldEqual, "engine")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("court1"),
				WithHistogramBuckets([]float64{0.1, 1}),
				WithConstLabels(map[string]string{"venue": "hall-a"}),
				WithPrometheusRegistry(registry),
			)
			manager.datagramsReceived.Inc()

			Convey("Then the options should be applied", func() {
				So(manager.namespace, ShouldEqual, "test")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 1})
				So(testutil.ToFloat64(manager.datagramsReceived), ShouldEqual, 1)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording transport metrics", func() {
			before := testutil.ToFloat64(globalManager.datagramsReceived)
			RecordDatagram(12, 1700000000)
			RecordDecodeError()
			RecordSocketError()

			Convey("Then counters should move", func() {
				So(testutil.ToFloat64(globalManager.datagramsReceived), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.lastDatagramUnix), ShouldEqual, 1700000000)
			})
		})

		Convey("When recording pipeline metrics", func() {
			RecordClassified("recognized")
			RecordClassified("recognized")
			RecordProcessingLatency(0.2)
			UpdateOverrideActive(true)
			UpdateUnknownPatterns(3)

			Convey("Then labelled counters and gauges should reflect it", func() {
				So(testutil.ToFloat64(globalManager.eventsClassified.WithLabelValues("recognized")), ShouldBeGreaterThanOrEqualTo, 2)
				So(testutil.ToFloat64(globalManager.overrideActive), ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.unknownPatterns), ShouldEqual, 3)
			})

			UpdateOverrideActive(false)
			So(testutil.ToFloat64(globalManager.overrideActive), ShouldEqual, 0)
		})

		Convey("When recording queue, registry, and hub metrics", func() {
			So(func() {
				UpdateQueueCapacity(10)
				UpdateQueueDepth(4)
				RecordQueueDrop()
				RecordRegistryReload("ok")
				UpdateRegistryGeneration(2)
				RecordHubDrop("ws")
				UpdateHubSubscribers(2)
				RecordStoreError("insert_event")
				RecordHTTPRequest("stats", "GET", "200")
				RecordHTTPRequestDuration("stats", "GET", "200", 1.5)
				RecordErrorByEndpoint("stats", "GET", "server_error")
			}, ShouldNotPanic)
		})

		Convey("When gathering the custom registry", func() {
			n, err := Gather()

			Convey("Then families should be returned", func() {
				So(err, ShouldBeNil)
				So(n, ShouldBeGreaterThan, 0)
				So(GetRegistry(), ShouldEqual, customRegistry)
			})
		})
	})
}
