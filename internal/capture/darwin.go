//go:build darwin

package capture

/*
#cgo darwin CFLAGS: -x objective-c -fmodules -fobjc-arc
#cgo darwin LDFLAGS: -framework CoreGraphics -framework ApplicationServices -framework Cocoa
#include <ApplicationServices/ApplicationServices.h>
#include <Cocoa/Cocoa.h>
#include <CoreFoundation/CoreFoundation.h>
#include <stdint.h>

static Boolean axCheckTrusted(void) {
	const void *keys[] = { kAXTrustedCheckOptionPrompt };
	const void *values[] = { kCFBooleanTrue };
	CFDictionaryRef options = CFDictionaryCreate(kCFAllocatorDefault, keys, values, 1,
	                                             &kCFTypeDictionaryKeyCallBacks,
	                                             &kCFTypeDictionaryValueCallBacks);
	Boolean trusted = AXIsProcessTrustedWithOptions(options);
	CFRelease(options);
	return trusted;
}

extern CGEventRef goTapEvent(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *userInfo);

static CFRunLoopSourceRef startEventTap(uintptr_t handle, CGEventMask mask, CFMachPortRef *tapOut) {
	CFMachPortRef tap = CGEventTapCreate(kCGSessionEventTap,
	                                     kCGHeadInsertEventTap,
	                                     kCGEventTapOptionListenOnly,
	                                     mask,
	                                     goTapEvent,
	                                     (void *)handle);
	if (tap == NULL) {
		return NULL;
	}
	CGEventTapEnable(tap, true);
	CFRunLoopSourceRef source = CFMachPortCreateRunLoopSource(kCFAllocatorDefault, tap, 0);
	*tapOut = tap;
	return source;
}

static CFRunLoopRef currentRunLoop(void) {
	return CFRunLoopGetCurrent();
}

static CGEventMask cgEventMaskBit(CGEventType type) {
	return ((CGEventMask)1) << type;
}

static void addSourceToRunLoop(CFRunLoopRef loop, CFRunLoopSourceRef source) {
	CFRunLoopAddSource(loop, source, kCFRunLoopCommonModes);
}

static void runCurrentRunLoop(void) {
	CFRunLoopRun();
}

static void stopRunLoop(CFRunLoopRef loop) {
	CFRunLoopStop(loop);
}

static double cgEventGetX(CGEventRef event) {
	return CGEventGetLocation(event).x;
}

static double cgEventGetY(CGEventRef event) {
	return CGEventGetLocation(event).y;
}

static int64_t cgEventGetKeycode(CGEventRef event) {
	return CGEventGetIntegerValueField(event, kCGKeyboardEventKeycode);
}

static uint64_t cgEventGetFlags(CGEventRef event) {
	return (uint64_t)CGEventGetFlags(event);
}

static int64_t cgEventGetScrollDelta(CGEventRef event, int axis) {
	if (axis == 1) {
		return CGEventGetIntegerValueField(event, kCGScrollWheelEventDeltaAxis1);
	}
	return CGEventGetIntegerValueField(event, kCGScrollWheelEventDeltaAxis2);
}

static void cgEventGetChars(CGEventRef event, char *buf, int buflen) {
	UniChar chars[8];
	UniCharCount len = 0;
	buf[0] = 0;
	CGEventKeyboardGetUnicodeString(event, 8, &len, chars);
	if (len == 0) {
		return;
	}
	CFStringRef str = CFStringCreateWithCharacters(kCFAllocatorDefault, chars, len);
	if (str == NULL) {
		return;
	}
	CFStringGetCString(str, buf, buflen, kCFStringEncodingUTF8);
	CFRelease(str);
}

static CFStringRef copyFrontmostAppName(void) {
	NSRunningApplication *app = [[NSWorkspace sharedWorkspace] frontmostApplication];
	if (app == nil) {
		return NULL;
	}
	NSString *name = app.localizedName ?: @"";
	return (__bridge_retained CFStringRef)name;
}

static int32_t frontmostAppPID(void) {
	NSRunningApplication *app = [[NSWorkspace sharedWorkspace] frontmostApplication];
	if (app == nil) {
		return 0;
	}
	return (int32_t)app.processIdentifier;
}

static CFStringRef copyFocusedWindowTitle(void) {
	AXUIElementRef systemWide = AXUIElementCreateSystemWide();
	if (systemWide == NULL) {
		return NULL;
	}
	AXUIElementRef app = NULL;
	AXError err = AXUIElementCopyAttributeValue(systemWide, kAXFocusedApplicationAttribute, (CFTypeRef *)&app);
	if (err != kAXErrorSuccess || app == NULL) {
		if (app != NULL) {
			CFRelease(app);
		}
		CFRelease(systemWide);
		return NULL;
	}
	AXUIElementRef window = NULL;
	err = AXUIElementCopyAttributeValue(app, kAXFocusedWindowAttribute, (CFTypeRef *)&window);
	if (err != kAXErrorSuccess || window == NULL) {
		if (window != NULL) {
			CFRelease(window);
		}
		CFRelease(app);
		CFRelease(systemWide);
		return NULL;
	}
	CFStringRef title = NULL;
	AXUIElementCopyAttributeValue(window, kAXTitleAttribute, (CFTypeRef *)&title);
	CFRelease(window);
	CFRelease(app);
	CFRelease(systemWide);
	return title;
}

static CFStringRef copyFocusedSelectedText(void) {
	AXUIElementRef systemWide = AXUIElementCreateSystemWide();
	if (systemWide == NULL) {
		return NULL;
	}
	AXUIElementRef focused = NULL;
	AXError err = AXUIElementCopyAttributeValue(systemWide, kAXFocusedUIElementAttribute, (CFTypeRef *)&focused);
	if (err != kAXErrorSuccess || focused == NULL) {
		if (focused != NULL) {
			CFRelease(focused);
		}
		CFRelease(systemWide);
		return NULL;
	}
	CFStringRef text = NULL;
	AXUIElementCopyAttributeValue(focused, kAXSelectedTextAttribute, (CFTypeRef *)&text);
	CFRelease(focused);
	CFRelease(systemWide);
	return text;
}
*/
import "C"

import (
	"context"
	"errors"
	"runtime"
	"runtime/cgo"
	"sync"
	"unsafe"
)

// Run installs a listen-only CGEvent tap for key and mouse events and pumps
// the current thread's run loop until ctx is cancelled. It must not be called
// twice concurrently on the same Tap.
func (t *Tap) Run(ctx context.Context) error {
	if C.axCheckTrusted() == C.Boolean(0) {
		return ErrAccessibilityPermission
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// The tap and its run loop live on one OS thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	handle := cgo.NewHandle(t)
	defer handle.Delete()

	mask := C.cgEventMaskBit(C.kCGEventKeyDown) |
		C.cgEventMaskBit(C.kCGEventKeyUp) |
		C.cgEventMaskBit(C.kCGEventLeftMouseDown) |
		C.cgEventMaskBit(C.kCGEventRightMouseDown) |
		C.cgEventMaskBit(C.kCGEventOtherMouseDown) |
		C.cgEventMaskBit(C.kCGEventScrollWheel)

	var machPort C.CFMachPortRef
	source := C.startEventTap(C.uintptr_t(handle), mask, &machPort)
	if source == 0 {
		return errors.New("failed to create CGEvent tap")
	}
	defer C.CFRelease(C.CFTypeRef(source))
	defer C.CFRelease(C.CFTypeRef(machPort))

	loop := C.currentRunLoop()
	stopOnce := sync.Once{}
	stopLoop := func() {
		stopOnce.Do(func() {
			C.stopRunLoop(loop)
		})
	}
	C.addSourceToRunLoop(loop, source)

	watcherDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		stopLoop()
		close(watcherDone)
	}()

	C.runCurrentRunLoop()
	stopLoop()
	<-watcherDone
	return ctx.Err()
}

//export goTapEvent
func goTapEvent(_ C.CGEventTapProxy, eventType C.CGEventType, event C.CGEventRef, userInfo unsafe.Pointer) C.CGEventRef {
	handle := cgo.Handle(uintptr(userInfo))
	tap, ok := handle.Value().(*Tap)
	if !ok {
		return event
	}

	switch eventType {
	case C.kCGEventKeyDown, C.kCGEventKeyUp:
		code := int(C.cgEventGetKeycode(event))
		flags := uint64(C.cgEventGetFlags(event))
		var buf [32]C.char
		C.cgEventGetChars(event, &buf[0], C.int(len(buf)))
		char := C.GoString(&buf[0])
		if eventType == C.kCGEventKeyDown {
			tap.keys.HandleKeyDown(code, char, flags)
		} else {
			tap.keys.HandleKeyUp(code, char, flags)
		}

	case C.kCGEventLeftMouseDown:
		tap.mouse.HandleClick("left", float64(C.cgEventGetX(event)), float64(C.cgEventGetY(event)))
	case C.kCGEventRightMouseDown:
		tap.mouse.HandleClick("right", float64(C.cgEventGetX(event)), float64(C.cgEventGetY(event)))
	case C.kCGEventOtherMouseDown:
		tap.mouse.HandleClick("other", float64(C.cgEventGetX(event)), float64(C.cgEventGetY(event)))

	case C.kCGEventScrollWheel:
		tap.mouse.HandleScroll(
			float64(C.cgEventGetX(event)),
			float64(C.cgEventGetY(event)),
			float64(C.cgEventGetScrollDelta(event, 2)),
			float64(C.cgEventGetScrollDelta(event, 1)),
		)
	}

	return event
}

// FrontmostWindow reports the foreground application and, when accessibility
// allows it, the focused window title.
func FrontmostWindow() (app, title string, pid int32, err error) {
	app = cfStringToGo(C.copyFrontmostAppName())
	pid = int32(C.frontmostAppPID())
	if app == "" && pid == 0 {
		return "", "", 0, errors.New("no frontmost application")
	}
	title = cfStringToGo(C.copyFocusedWindowTitle())
	return app, title, pid, nil
}

// SelectedText reports the selected text of the focused UI element and the
// application it came from. An empty selection is not an error.
func SelectedText() (text, source string, err error) {
	text = cfStringToGo(C.copyFocusedSelectedText())
	source = cfStringToGo(C.copyFrontmostAppName())
	return text, source, nil
}

func cfStringToGo(str C.CFStringRef) string {
	if str == 0 {
		return ""
	}
	defer C.CFRelease(C.CFTypeRef(str))
	length := C.CFStringGetLength(str)
	if length == 0 {
		return ""
	}
	bufSize := C.CFIndex(1 + 4*length)
	buf := make([]byte, int(bufSize))
	if C.CFStringGetCString(str, (*C.char)(unsafe.Pointer(&buf[0])), bufSize, C.kCFStringEncodingUTF8) == C.Boolean(0) {
		return ""
	}
	return C.GoString((*C.char)(unsafe.Pointer(&buf[0])))
}
