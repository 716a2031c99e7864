//go:build windows

package hook

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/moutend/go-hook/pkg/types"
	"golang.org/x/sys/windows"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
)

const wmQuit = 0x0012

// msg mirrors the Win32 MSG structure.
type msg struct {
	hwnd    uintptr
	message uint32
	wParam  uintptr
	lParam  uintptr
	time    uint32
	pt      types.POINT
}

// activeQueue receives clicks from the hook procedure. One low-level hook
// per process, so one queue.
var activeQueue atomic.Pointer[queue]

// hookProc is created once; Windows keeps callbacks for the process lifetime.
var hookProc = windows.NewCallback(func(code, wParam, lParam uintptr) uintptr {
	if int32(code) >= 0 && lParam != 0 {
		if q := activeQueue.Load(); q != nil {
			if b, ok := buttonFromMessage(types.Message(wParam)); ok {
				info := (*types.MSLLHOOKSTRUCT)(unsafe.Pointer(lParam))
				q.push(int(info.X), int(info.Y), b)
			}
		}
	}
	r, _, _ := procCallNextHookEx.Call(0, code, wParam, lParam)
	return r
})

// windowsAdapter owns a WH_MOUSE_LL hook. The hook is serviced by the thread
// that installed it, so that thread is locked and runs the message loop.
// Coordinates are physical pixels only if the process is DPI aware, which
// runtimeinit.Bootstrap arranges.
type windowsAdapter struct {
	q         *queue
	mu        sync.Mutex
	installed bool
	threadID  uint32
	loopDone  chan struct{}
}

func newPlatformAdapter(opts Options) Adapter {
	return &windowsAdapter{q: newQueue(opts)}
}

func (a *windowsAdapter) Install() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.installed {
		return fmt.Errorf("%w: already installed", ErrInstall)
	}
	if !activeQueue.CompareAndSwap(nil, a.q) {
		return fmt.Errorf("%w: another mouse hook is active in this process", ErrInstall)
	}

	ready := make(chan error, 1)
	tid := make(chan uint32, 1)
	a.loopDone = make(chan struct{})
	go a.loop(ready, tid, a.loopDone)

	if err := <-ready; err != nil {
		activeQueue.CompareAndSwap(a.q, nil)
		return err
	}
	a.threadID = <-tid
	a.installed = true
	log.Printf("hook: low-level mouse hook installed")
	return nil
}

func (a *windowsAdapter) loop(ready chan<- error, tid chan<- uint32, done chan<- struct{}) {
	defer close(done)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var module windows.Handle
	if err := windows.GetModuleHandleEx(0, nil, &module); err != nil {
		ready <- fmt.Errorf("%w: GetModuleHandleEx: %v", ErrInstall, err)
		return
	}
	hhk, _, err := procSetWindowsHookExW.Call(uintptr(types.WH_MOUSE_LL), hookProc, uintptr(module), 0)
	if hhk == 0 {
		ready <- fmt.Errorf("%w: SetWindowsHookExW: %v", ErrInstall, err)
		return
	}
	defer procUnhookWindowsHookEx.Call(hhk)

	tid <- windows.GetCurrentThreadId()
	ready <- nil

	var m msg
	for {
		r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		// 0 is WM_QUIT, -1 an error; either way the loop is over.
		if int32(r) <= 0 {
			return
		}
	}
}

func (a *windowsAdapter) Next(ctx context.Context) (Click, error) {
	return a.q.next(ctx)
}

func (a *windowsAdapter) Close() error {
	a.mu.Lock()
	installed := a.installed
	a.installed = false
	tid := a.threadID
	done := a.loopDone
	a.mu.Unlock()

	a.q.close()
	if !installed {
		return nil
	}
	activeQueue.CompareAndSwap(a.q, nil)

	var err error
	if r, _, perr := procPostThreadMessageW.Call(uintptr(tid), wmQuit, 0, 0); r == 0 {
		err = fmt.Errorf("stop hook thread: %v", perr)
	} else {
		<-done
		log.Printf("hook: low-level mouse hook removed")
	}
	return err
}
