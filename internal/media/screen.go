package media

import "github.com/maitrungduc1410/WebRTC-Demo/internal/core"

// ScreenGrant represents a platform capture permission already obtained by
// an external collaborator. Open fails when the grant has been revoked; the
// source's dimensions and frame rate come from the active display.
type ScreenGrant interface {
	Open() (core.CaptureSource, error)
}
