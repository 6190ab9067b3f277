package session

// GateDecision tells the UI layer what to render for a protected route.
type GateDecision string

const (
	// GateShowLoading: initial resolution still in flight; no route content.
	GateShowLoading GateDecision = "loading"
	// GateRedirectLogin: not authenticated; redirect preserving the
	// intended destination.
	GateRedirectLogin GateDecision = "redirect-login"
	// GateRequireVerification: authenticated but the session is not
	// verified; show the blocking verification overlay.
	GateRequireVerification GateDecision = "require-verification"
	// GateRender: render the requested route.
	GateRender GateDecision = "render"
)

// Decide is a pure function of the three session inputs.
//
//	isLoading | isAuthenticated | sessionVerified | decision
//	true      | —               | —               | loading
//	false     | false           | —               | redirect-login
//	false     | true            | false           | require-verification
//	false     | true            | true            | render
func Decide(isLoading, isAuthenticated, sessionVerified bool) GateDecision {
	switch {
	case isLoading:
		return GateShowLoading
	case !isAuthenticated:
		return GateRedirectLogin
	case !sessionVerified:
		return GateRequireVerification
	default:
		return GateRender
	}
}
