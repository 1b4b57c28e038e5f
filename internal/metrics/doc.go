// Package metrics provides the observability hooks for session lifecycle and
// performance governance.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no call site needs a nil check:
//
//	ctrl := session.NewController(engine, resolver, analyzer,
//	    session.WithRecorder(metrics.NewPrometheusRecorder(reg)))
//
// PrometheusRecorder registers its collectors on the given registry and
// HTTPHandler serves that registry for scraping.
package metrics
