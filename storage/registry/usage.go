package registry

// Usage restricts which programs should accept a given driver.
//
// Drivers are linked at build time: a driver registers itself via init(),
// and is enabled in a binary by importing the driver package (often as a blank import).
type Usage uint8

const (
	// UsageCLI indicates the driver should be available in CLI programs (memhub).
	UsageCLI Usage = 1 << iota
	// UsageDaemon indicates the driver should be available in long-running daemons (memhubd).
	UsageDaemon

	UsageAll = UsageCLI | UsageDaemon
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }
