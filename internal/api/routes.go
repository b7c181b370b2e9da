package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cloudcut/cloudcut-engine/internal/assets"
	"github.com/cloudcut/cloudcut-engine/internal/config"
	"github.com/cloudcut/cloudcut-engine/internal/engine"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.AuthToken, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Post("/playback/toggle", toggleHandler(cfg))
		r.Post("/playback/seek", seekHandler(cfg))
		r.Post("/playback/pause-at", pauseAtHandler(cfg))
		r.Post("/playback/stop", stopHandler(cfg))

		r.Get("/effects", getEffectsHandler(cfg))
		r.Put("/effects", putEffectsHandler(cfg))
		r.Put("/effects/aspect", putAspectHandler(cfg))

		r.Put("/crop/mode", putCropModeHandler(cfg))
		r.Post("/crop/failure", cropFailureHandler(cfg))

		r.Get("/trim", getTrimHandler(cfg))
		r.Put("/trim", putTrimHandler(cfg))
		r.Delete("/trim", deleteTrimHandler(cfg))

		r.Get("/timeline/clips", listClipsHandler(cfg))
		r.Post("/timeline/clips", addClipHandler(cfg))
		r.Post("/timeline/clips/{id}/split", splitClipHandler(cfg))
		r.Post("/timeline/clips/{id}/select", selectClipHandler(cfg))
		r.Delete("/timeline/clips/{id}", deleteClipHandler(cfg))

		r.Post("/export", exportHandler(cfg))
		r.Get("/export", exportStatusHandler(cfg))
		r.Delete("/export", abortExportHandler(cfg))

		r.Get("/assets", listAssetsHandler(cfg))
		r.Post("/assets/sign", signUploadHandler(cfg))
		r.Post("/assets/rename", renameAssetHandler(cfg))
		r.Delete("/assets/{id}", deleteAssetHandler(cfg))
	})

	return r
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return false
	}
	return true
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: config.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Engine.Status())
	}
}

func toggleHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Engine.TogglePlayback()
		WriteJSON(w, http.StatusOK, cfg.Engine.Status())
	}
}

func seekHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SeekRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Global {
			if err := cfg.Engine.SeekGlobal(req.Time); err != nil {
				WriteError(w, http.StatusConflict, err.Error(), "SEEK_FAILED")
				return
			}
		} else {
			cfg.Engine.Scrub(req.Time)
		}
		WriteJSON(w, http.StatusOK, cfg.Engine.Status())
	}
}

func pauseAtHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PauseAtRequest
		if !decodeBody(w, r, &req) {
			return
		}
		cfg.Engine.PauseAt(req.Time)
		WriteJSON(w, http.StatusOK, cfg.Engine.Status())
	}
}

func stopHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Engine.Stop()
		WriteJSON(w, http.StatusOK, cfg.Engine.Status())
	}
}

func getEffectsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, effectsBody(cfg.Engine.Params()))
	}
}

func putEffectsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body EffectsBody
		if !decodeBody(w, r, &body) {
			return
		}
		cfg.Engine.SetParams(body.toParams())
		WriteJSON(w, http.StatusOK, effectsBody(cfg.Engine.Params()))
	}
}

func putAspectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AspectRequest
		if !decodeBody(w, r, &req) {
			return
		}
		cfg.Engine.SetTargetAspect(req.TargetAspect)
		WriteJSON(w, http.StatusOK, effectsBody(cfg.Engine.Params()))
	}
}

func putCropModeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CropModeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		mode := engine.CropMode(req.Mode)
		if mode != engine.CropModeLocal && mode != engine.CropModeSmart {
			WriteError(w, http.StatusBadRequest, "mode must be local or smart", "BAD_REQUEST")
			return
		}
		cfg.Engine.SetCropMode(mode)
		WriteJSON(w, http.StatusOK, cfg.Engine.CropState())
	}
}

func cropFailureHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Engine.ReportSmartCropFailure())
	}
}

func getTrimHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trim, loop, active := cfg.Engine.Trim()
		WriteJSON(w, http.StatusOK, TrimResponse{In: trim.In, Out: trim.Out, Loop: loop, Active: active})
	}
}

func putTrimHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TrimRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := cfg.Engine.SetTrim(req.In, req.Out, req.Loop); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_TRIM")
			return
		}
		trim, loop, active := cfg.Engine.Trim()
		WriteJSON(w, http.StatusOK, TrimResponse{In: trim.In, Out: trim.Out, Loop: loop, Active: active})
	}
}

func deleteTrimHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Engine.ClearTrim()
		WriteJSON(w, http.StatusOK, TrimResponse{})
	}
}

func listClipsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Engine.Clips())
	}
}

func addClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ClipAddRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.SourceRef == "" || req.Duration <= 0 {
			WriteError(w, http.StatusBadRequest, "source_ref and positive duration are required", "BAD_REQUEST")
			return
		}
		clip, err := cfg.Engine.AddClip(req.SourceRef, req.Label, req.Duration)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusCreated, clip)
	}
}

func splitClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SplitRequest
		if !decodeBody(w, r, &req) {
			return
		}
		second, err := cfg.Engine.SplitClip(chi.URLParam(r, "id"), req.Offset)
		if err != nil {
			WriteError(w, http.StatusConflict, err.Error(), "SPLIT_REJECTED")
			return
		}
		WriteJSON(w, http.StatusCreated, second)
	}
}

func selectClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Engine.SelectClip(chi.URLParam(r, "id")); err != nil {
			WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Engine.Status())
	}
}

func deleteClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Engine.DeleteClip(chi.URLParam(r, "id")); err != nil {
			WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Engine.Status())
	}
}

func exportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExportRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := cfg.Engine.Export(r.Context(), req.Title, req.Folder); err != nil {
			WriteError(w, http.StatusConflict, err.Error(), "EXPORT_FAILED")
			return
		}
		WriteJSON(w, http.StatusAccepted, cfg.Engine.ExportStatus())
	}
}

func exportStatusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Engine.ExportStatus())
	}
}

func abortExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Engine.AbortExport()
		WriteJSON(w, http.StatusOK, cfg.Engine.ExportStatus())
	}
}

func listAssetsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if l := r.URL.Query().Get("limit"); l != "" {
			limit, _ = strconv.Atoi(l)
		}
		page, err := cfg.Store.List(r.Context(),
			r.URL.Query().Get("prefix"), r.URL.Query().Get("cursor"), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list assets", "INTERNAL_ERROR")
			return
		}
		if page.Assets == nil {
			page.Assets = []assets.Asset{}
		}
		WriteJSON(w, http.StatusOK, page)
	}
}

func signUploadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignUploadRequest
		if !decodeBody(w, r, &req) {
			return
		}
		signed := cfg.Signer.Sign(assets.SignRequest{
			Folder:   req.Folder,
			Format:   req.Format,
			PublicID: req.PublicID,
		})
		WriteJSON(w, http.StatusOK, signed)
	}
}

func renameAssetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RenameAssetRequest
		if !decodeBody(w, r, &req) {
			return
		}
		asset, err := cfg.Store.Rename(r.Context(), req.From, req.To)
		if err != nil {
			switch {
			case errors.Is(err, assets.ErrNotFound):
				WriteError(w, http.StatusNotFound, "asset not found", "NOT_FOUND")
			case errors.Is(err, assets.ErrDuplicateID):
				WriteError(w, http.StatusConflict, "target name already exists", "CONFLICT")
			default:
				WriteError(w, http.StatusInternalServerError, "failed to rename asset", "INTERNAL_ERROR")
			}
			return
		}
		WriteJSON(w, http.StatusOK, asset)
	}
}

func deleteAssetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			if errors.Is(err, assets.ErrNotFound) {
				WriteError(w, http.StatusNotFound, "asset not found", "NOT_FOUND")
				return
			}
			WriteError(w, http.StatusInternalServerError, "failed to delete asset", "INTERNAL_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
