package hook

import (
	"fmt"
	"time"

	"github.com/moutend/go-hook/pkg/types"
)

// libuiohook event types as carried raw in gohook.Event.Kind. gohook calls
// the press "MouseDown" and the release "MouseHold".
const (
	uiohookHookEnabled   uint8 = 1
	uiohookMouseClicked  uint8 = 6
	uiohookMousePressed  uint8 = 7
	uiohookMouseReleased uint8 = 8
	uiohookMouseMoved    uint8 = 9
	uiohookMouseDragged  uint8 = 10
)

// libuiohook button numbers as reported in gohook.Event.Button.
const (
	uiohookButtonLeft   uint16 = 1
	uiohookButtonRight  uint16 = 2
	uiohookButtonMiddle uint16 = 3
)

// buttonFromUiohook maps a libuiohook event to a press. Releases, clicks
// and motion map to nothing.
func buttonFromUiohook(kind uint8, button uint16) (Button, bool) {
	if kind != uiohookMousePressed {
		return 0, false
	}
	switch button {
	case uiohookButtonLeft:
		return ButtonLeft, true
	case uiohookButtonRight:
		return ButtonRight, true
	case uiohookButtonMiddle:
		return ButtonMiddle, true
	}
	return 0, false
}

// Low-level mouse hook wParam values. go-hook only defines the keyboard ones.
const (
	wmMouseMove   types.Message = 0x0200
	wmLButtonDown types.Message = 0x0201
	wmLButtonUp   types.Message = 0x0202
	wmRButtonDown types.Message = 0x0204
	wmRButtonUp   types.Message = 0x0205
	wmMButtonDown types.Message = 0x0207
	wmMButtonUp   types.Message = 0x0208
	wmMouseWheel  types.Message = 0x020A
)

func buttonFromMessage(m types.Message) (Button, bool) {
	switch m {
	case wmLButtonDown:
		return ButtonLeft, true
	case wmRButtonDown:
		return ButtonRight, true
	case wmMButtonDown:
		return ButtonMiddle, true
	}
	return 0, false
}

// awaitEvent reads events until match reports true. The native layer only
// logs when it cannot start, so silence past timeout counts as failure.
func awaitEvent[E any](events <-chan E, match func(E) bool, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("%w: event channel closed before the hook started", ErrInstall)
			}
			if match(ev) {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("%w: no hook-enabled event within %s", ErrInstall, timeout)
		}
	}
}
