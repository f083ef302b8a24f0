package native

const runtimeVersion = "1.4.0"

// Version returns the runtime's version string.
func Version() string {
	return runtimeVersion
}
