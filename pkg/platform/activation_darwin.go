//go:build darwin

package platform

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework Cocoa
#import <Cocoa/Cocoa.h>

void hideDockIcon(void) {
    [NSApp setActivationPolicy:NSApplicationActivationPolicyAccessory];
}
*/
import "C"
import "log"

// SetActivationPolicy turns the app into a menu bar accessory without a Dock
// icon. It must run on the main thread after the app has started.
func SetActivationPolicy() {
	log.Println("[BOOT] Running as menu bar accessory")
	C.hideDockIcon()
}
