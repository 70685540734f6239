package order

import "regexp"

// DeviceType is the device class the checkout was submitted from.
type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
	DeviceUnknown DeviceType = "unknown"
)

var (
	mobileUA  = regexp.MustCompile(`(?i)mobile|iphone|ipod|android|blackberry|iemobile|opera mini`)
	tabletUA  = regexp.MustCompile(`(?i)ipad|tablet|kindle|playbook`)
	desktopUA = regexp.MustCompile(`(?i)windows|macintosh|linux`)
)

// DetectDevice classifies a User-Agent header. Order matters: Android phones
// also report "linux".
func DetectDevice(userAgent string) DeviceType {
	switch {
	case mobileUA.MatchString(userAgent):
		return DeviceMobile
	case tabletUA.MatchString(userAgent):
		return DeviceTablet
	case desktopUA.MatchString(userAgent):
		return DeviceDesktop
	default:
		return DeviceUnknown
	}
}
