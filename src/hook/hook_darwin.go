//go:build darwin && cgo

package hook

/*
#cgo darwin LDFLAGS: -framework CoreGraphics -framework ApplicationServices -framework CoreFoundation
#include <ApplicationServices/ApplicationServices.h>
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

extern CGEventRef goHandleMouseEvent(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *userInfo);

static CFMachPortRef createMouseTap(uintptr_t handle) {
	CGEventMask mask = CGEventMaskBit(kCGEventLeftMouseDown) |
	                   CGEventMaskBit(kCGEventRightMouseDown) |
	                   CGEventMaskBit(kCGEventOtherMouseDown);
	return CGEventTapCreate(kCGSessionEventTap,
	                        kCGHeadInsertEventTap,
	                        kCGEventTapOptionListenOnly,
	                        mask,
	                        goHandleMouseEvent,
	                        (void *)handle);
}

static CFRunLoopSourceRef attachTap(CFMachPortRef tap) {
	CFRunLoopSourceRef source = CFMachPortCreateRunLoopSource(kCFAllocatorDefault, tap, 0);
	CFRunLoopAddSource(CFRunLoopGetCurrent(), source, kCFRunLoopCommonModes);
	CGEventTapEnable(tap, true);
	return source;
}

static void detachTap(CFMachPortRef tap, CFRunLoopSourceRef source) {
	CGEventTapEnable(tap, false);
	CFRunLoopRemoveSource(CFRunLoopGetCurrent(), source, kCFRunLoopCommonModes);
	CFRelease(source);
	CFMachPortInvalidate(tap);
	CFRelease(tap);
}

static void enableTap(CFMachPortRef tap) {
	CGEventTapEnable(tap, true);
}

static CFRunLoopRef currentRunLoop(void) {
	return CFRunLoopGetCurrent();
}

static void runLoopSlice(double seconds) {
	CFRunLoopRunInMode(kCFRunLoopDefaultMode, seconds, false);
}

static void stopRunLoop(CFRunLoopRef loop) {
	CFRunLoopStop(loop);
}

static double eventX(CGEventRef event) {
	return CGEventGetLocation(event).x;
}

static double eventY(CGEventRef event) {
	return CGEventGetLocation(event).y;
}

static int64_t eventButtonNumber(CGEventRef event) {
	return CGEventGetIntegerValueField(event, kCGMouseEventButtonNumber);
}
*/
import "C"

import (
	"context"
	"fmt"
	"log"
	"math"
	"runtime"
	"runtime/cgo"
	"sync"
	"unsafe"
)

// darwinAdapter runs a listen-only Quartz event tap on a dedicated, locked
// OS thread. Coordinates are global display points with the origin at the
// top-left of the main display.
type darwinAdapter struct {
	q       *queue
	mu      sync.Mutex
	tap     C.CFMachPortRef
	loop    C.CFRunLoopRef
	stopped chan struct{}
}

func newPlatformAdapter(opts Options) Adapter {
	return &darwinAdapter{q: newQueue(opts)}
}

func (a *darwinAdapter) Install() error {
	if C.axCheckTrusted() == C.Boolean(0) {
		return ErrPermission
	}
	a.mu.Lock()
	if a.stopped != nil {
		a.mu.Unlock()
		return fmt.Errorf("%w: already installed", ErrInstall)
	}
	a.stopped = make(chan struct{})
	a.mu.Unlock()

	ready := make(chan error, 1)
	go a.run(ready)
	return <-ready
}

func (a *darwinAdapter) run(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(a.stopped)

	handle := cgo.NewHandle(a)
	defer handle.Delete()

	tap := C.createMouseTap(C.uintptr_t(handle))
	if tap == 0 {
		ready <- fmt.Errorf("%w: CGEventTapCreate returned NULL", ErrPermission)
		return
	}
	source := C.attachTap(tap)

	a.mu.Lock()
	a.tap = tap
	a.loop = C.currentRunLoop()
	a.mu.Unlock()

	log.Printf("hook: quartz event tap installed")
	ready <- nil

	for {
		select {
		case <-a.q.done:
			a.mu.Lock()
			a.tap = 0
			a.loop = 0
			a.mu.Unlock()
			C.detachTap(tap, source)
			log.Printf("hook: quartz event tap removed")
			return
		default:
		}
		C.runLoopSlice(0.25)
	}
}

func (a *darwinAdapter) Next(ctx context.Context) (Click, error) {
	return a.q.next(ctx)
}

func (a *darwinAdapter) Close() error {
	a.q.close()

	a.mu.Lock()
	loop := a.loop
	stopped := a.stopped
	a.mu.Unlock()

	if loop != 0 {
		C.stopRunLoop(loop)
	}
	if stopped != nil {
		<-stopped
	}
	return nil
}

// reenable is called when the system disables a tap whose callback was too
// slow; without it the tap would silently stop delivering events.
func (a *darwinAdapter) reenable() {
	a.mu.Lock()
	tap := a.tap
	a.mu.Unlock()
	if tap != 0 {
		C.enableTap(tap)
	}
}

//export goHandleMouseEvent
func goHandleMouseEvent(_ C.CGEventTapProxy, eventType C.CGEventType, event C.CGEventRef, userInfo unsafe.Pointer) C.CGEventRef {
	a, ok := cgo.Handle(uintptr(userInfo)).Value().(*darwinAdapter)
	if !ok {
		return event
	}

	switch eventType {
	case C.kCGEventTapDisabledByTimeout, C.kCGEventTapDisabledByUserInput:
		log.Printf("hook: event tap disabled by the system (type %d), re-enabling", int(eventType))
		a.reenable()
		return event
	}

	x := int(math.Floor(float64(C.eventX(event))))
	y := int(math.Floor(float64(C.eventY(event))))

	switch eventType {
	case C.kCGEventLeftMouseDown:
		a.q.push(x, y, ButtonLeft)
	case C.kCGEventRightMouseDown:
		a.q.push(x, y, ButtonRight)
	case C.kCGEventOtherMouseDown:
		if C.eventButtonNumber(event) == 2 {
			a.q.push(x, y, ButtonMiddle)
		}
	}
	return event
}
