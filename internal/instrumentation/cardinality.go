package instrumentation

// Label helpers that keep attacker- or browser-controlled values out of
// metric labels. Anything can hit the loopback listener, so raw paths must
// never become label values.

// CallbackPathLabel maps a request path to a bounded label value.
//
//	CallbackPathLabel("/")             // "/"
//	CallbackPathLabel("/favicon.ico")  // "other"
func CallbackPathLabel(path string) string {
	if path == "/" {
		return "/"
	}
	return "other"
}

// ReasonLabel returns the failure reason label, or "none" for successes.
func ReasonLabel(reason string) string {
	if reason == "" {
		return "none"
	}
	return reason
}
