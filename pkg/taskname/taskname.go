package taskname

const (
	// Membership tasks
	MembershipExpirySweep = "membership:expiry:sweep"
)
