package api

import (
	"github.com/cloudcut/cloudcut-engine/internal/canvas"
	"github.com/cloudcut/cloudcut-engine/internal/effects"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type SeekRequest struct {
	Time float64 `json:"time"`
	// Global interprets Time as a virtual-timeline position instead of
	// media time within the active clip.
	Global bool `json:"global,omitempty"`
}

type PauseAtRequest struct {
	Time float64 `json:"time"`
}

type FilterOpBody struct {
	Kind      string  `json:"kind"`
	Magnitude float64 `json:"magnitude"`
}

type EffectsBody struct {
	Filters         []FilterOpBody `json:"filters,omitempty"`
	Vignette        bool           `json:"vignette"`
	TargetAspect    float64        `json:"target_aspect"`
	Sharpen         float64        `json:"sharpen"`
	Noise           float64        `json:"noise"`
	Stabilize       float64        `json:"stabilize"`
	Grain           float64        `json:"grain"`
	OverlayText     string         `json:"overlay_text,omitempty"`
	OverlayOpacity  float64        `json:"overlay_opacity"`
	ShowOverlay     bool           `json:"show_overlay"`
	FilterShorthand string         `json:"filter_shorthand,omitempty"`
}

func effectsBody(p effects.Params) EffectsBody {
	body := EffectsBody{
		Vignette:        p.Vignette,
		TargetAspect:    p.TargetAspect,
		Sharpen:         p.SharpenAmount,
		Noise:           p.NoiseAmount,
		Stabilize:       p.StabilizeAmount,
		Grain:           p.GrainAmount,
		OverlayText:     p.OverlayText,
		OverlayOpacity:  p.OverlayOpacity,
		ShowOverlay:     p.ShowOverlay,
		FilterShorthand: p.Filters.String(),
	}
	for _, op := range p.Filters {
		body.Filters = append(body.Filters, FilterOpBody{Kind: string(op.Kind), Magnitude: op.Magnitude})
	}
	return body
}

func (b EffectsBody) toParams() effects.Params {
	p := effects.Params{
		Vignette:        b.Vignette,
		TargetAspect:    b.TargetAspect,
		SharpenAmount:   b.Sharpen,
		NoiseAmount:     b.Noise,
		StabilizeAmount: b.Stabilize,
		GrainAmount:     b.Grain,
		OverlayText:     b.OverlayText,
		OverlayOpacity:  b.OverlayOpacity,
		ShowOverlay:     b.ShowOverlay,
	}
	for _, op := range b.Filters {
		p.Filters = append(p.Filters, canvas.FilterOp{Kind: canvas.FilterKind(op.Kind), Magnitude: op.Magnitude})
	}
	return p
}

type AspectRequest struct {
	TargetAspect float64 `json:"target_aspect"`
}

type CropModeRequest struct {
	Mode string `json:"mode"`
}

type TrimRequest struct {
	In   float64 `json:"in"`
	Out  float64 `json:"out"`
	Loop bool    `json:"loop"`
}

type TrimResponse struct {
	In     float64 `json:"in"`
	Out    float64 `json:"out"`
	Loop   bool    `json:"loop"`
	Active bool    `json:"active"`
}

type ClipAddRequest struct {
	SourceRef string  `json:"source_ref"`
	Label     string  `json:"label,omitempty"`
	Duration  float64 `json:"duration"`
}

type SplitRequest struct {
	Offset float64 `json:"offset"`
}

type ExportRequest struct {
	Title  string `json:"title,omitempty"`
	Folder string `json:"folder,omitempty"`
}

type SignUploadRequest struct {
	Folder   string `json:"folder,omitempty"`
	Format   string `json:"format,omitempty"`
	PublicID string `json:"public_id,omitempty"`
}

type RenameAssetRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}
