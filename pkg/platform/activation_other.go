//go:build !darwin

package platform

// SetActivationPolicy is a no-op outside macOS, where tray apps have no dock
// icon to hide
func SetActivationPolicy() {}
