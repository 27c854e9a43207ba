package render

import "github.com/rs/zerolog/log"

// NoopRenderer satisfies Renderer without opening a window; used by tests
// and any headless run of the frame driver.
type NoopRenderer struct {
	cam Camera
	fps int
}

// NewNoopRenderer returns a Renderer with scale 1 and no FPS cap.
func NewNoopRenderer() *NoopRenderer {
	return &NoopRenderer{cam: Camera{Scale: 1}}
}

func (r *NoopRenderer) SetFPS(fps int) { r.fps = fps }
func (r *NoopRenderer) SetResolution(w, h int, scale float64) {}
func (r *NoopRenderer) ShowFPS(on bool) {}
func (r *NoopRenderer) MoveCam(dx, dy float64) { r.cam.X += dx; r.cam.Y += dy }
func (r *NoopRenderer) Camera() Camera         { return r.cam }
func (r *NoopRenderer) BeginFrame() {}
func (r *NoopRenderer) EndFrame() {}

func (r *NoopRenderer) SetCam(x, y float64, relative bool) {
	if relative {
		r.cam.X += x
		r.cam.Y += y
		return
	}
	r.cam.X, r.cam.Y = x, y
}

func (r *NoopRenderer) Snapshot(path string) error {
	log.Debug().Str("path", path).Msg("render: noop snapshot")
	return nil
}

// NoopTextRasterizer satisfies TextRasterizer without loading a font.
type NoopTextRasterizer struct{}

func (NoopTextRasterizer) Rasterize(text, font string, size int) (any, error) {
	return text, nil
}
