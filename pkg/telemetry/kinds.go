package telemetry

// InstrumentationKind is the closed set of instrumentation event kinds the
// core itself is aware of. Concrete plugins may emit other Event.Type
// values (e.g. "layout" from the Layout Tracker, "move" from the pointer
// plugin) that are opaque to the
// core; these seven are the ones the core reasons about directly.
type InstrumentationKind string

const (
	KindJsError               InstrumentationKind = "JsError"
	KindXhrError              InstrumentationKind = "XhrError"
	KindShadowDomInconsistent InstrumentationKind = "ShadowDomInconsistent"
	KindClarityDuplicated     InstrumentationKind = "ClarityDuplicated"
	KindPerformanceStateError InstrumentationKind = "PerformanceStateError"
	KindNavigationTiming      InstrumentationKind = "NavigationTiming"
	KindResourceTiming        InstrumentationKind = "ResourceTiming"
)
