package domain

import (
	"errors"
	"fmt"
)

// ErrSourceUnavailable covers device enumeration failure, a missing file and
// a missing capture grant. The previous source stays torn down; reverting is
// the caller's call.
var ErrSourceUnavailable = errors.New("media source unavailable")

type SourceKind int

const (
	SourceNone SourceKind = iota
	SourceCamera
	SourceScreen
	SourceFile
)

func (k SourceKind) String() string {
	switch k {
	case SourceNone:
		return "none"
	case SourceCamera:
		return "camera"
	case SourceScreen:
		return "screen"
	case SourceFile:
		return "file"
	}
	return "unknown"
}

type CameraFacing int

const (
	FacingFront CameraFacing = iota
	FacingBack
)

func (f CameraFacing) String() string {
	if f == FacingBack {
		return "back"
	}
	return "front"
}

// MediaSource is a closed tagged variant: exactly one capture source is
// active per local media session. Facing is meaningful only for
// SourceCamera, Path only for SourceFile.
type MediaSource struct {
	Kind   SourceKind
	Facing CameraFacing
	Path   string
}

func Camera(facing CameraFacing) MediaSource {
	return MediaSource{Kind: SourceCamera, Facing: facing}
}

func Screen() MediaSource { return MediaSource{Kind: SourceScreen} }

func File(path string) MediaSource {
	return MediaSource{Kind: SourceFile, Path: path}
}

func NoSource() MediaSource { return MediaSource{Kind: SourceNone} }

func (s MediaSource) String() string {
	switch s.Kind {
	case SourceCamera:
		return fmt.Sprintf("camera(%s)", s.Facing)
	case SourceFile:
		return fmt.Sprintf("file(%s)", s.Path)
	default:
		return s.Kind.String()
	}
}
