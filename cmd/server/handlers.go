package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"net/http"
	"strconv"

	"pixelmorph.ai/internal/persistence/indexdb"
	"pixelmorph.ai/internal/protocol"
	"pixelmorph.ai/internal/sim/drawing"
	"pixelmorph.ai/internal/sim/imageprep"
	"pixelmorph.ai/internal/sim/live"
	"pixelmorph.ai/internal/sim/supervisor"
	"pixelmorph.ai/internal/transport/preview"
)

const maxUploadBytes = 16 << 20

// maxFrameLead bounds how far ahead of the live frame a stroke may be
// stamped. PaintStroke moves the shared frame forward to the stamp.
const maxFrameLead = 300

type serverDeps struct {
	// ctx bounds workers started from HTTP requests.
	ctx         context.Context
	state       *live.State
	launcher    *supervisor.Launcher
	hub         *preview.Hub
	preview     *preview.Server
	index       *indexdb.SQLiteIndex
	metrics     http.Handler
	allowRemote bool
	logger      *log.Logger
}

func buildMux(d serverDeps) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	if d.metrics != nil {
		mux.Handle("/metrics", d.metrics)
	}
	mux.HandleFunc("/v1/ws", d.preview.WSHandler())
	mux.HandleFunc("/v1/preview.png", d.preview.PNGHandler())
	mux.HandleFunc("/v1/state", d.guard(http.MethodGet, d.handleState))
	mux.HandleFunc("/v1/restart", d.guard(http.MethodPost, d.handleRestart))
	mux.HandleFunc("/v1/strokes", d.guard(http.MethodPost, d.handleStroke))
	mux.HandleFunc("/v1/palette", d.guard(http.MethodPost, d.handlePalette))
	mux.HandleFunc("/v1/runs", d.guard(http.MethodGet, d.handleRuns))
	return mux
}

func (d serverDeps) guard(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !d.allowRemote && !preview.IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func (d serverDeps) handleState(rw http.ResponseWriter, r *http.Request) {
	gen, batch, _ := d.hub.Latest()
	resp := struct {
		Run             drawing.RunInfo `json:"run"`
		Generation      uint32          `json:"generation"`
		PreviewGen      uint32          `json:"preview_generation"`
		PreviewBatch    uint64          `json:"preview_batch"`
		Frame           uint32          `json:"frame"`
		ProtocolVersion string          `json:"protocol_version"`
	}{
		Run:             d.launcher.Current(),
		Generation:      d.launcher.Generation().Current(),
		PreviewGen:      gen,
		PreviewBatch:    batch,
		Frame:           d.state.Frame(),
		ProtocolVersion: protocol.Version,
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (d serverDeps) handleRestart(rw http.ResponseWriter, r *http.Request) {
	info, err := d.launcher.Restart(d.ctx)
	if err != nil {
		d.fail(rw, err)
		return
	}
	d.logf("run %s started gen=%d (restart)", info.RunID, info.Generation)
	writeJSON(rw, http.StatusOK, protocol.RestartResponse{RunID: info.RunID, Generation: info.Generation})
}

func (d serverDeps) handleStroke(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, protocol.NewError(protocol.ErrBadRequest, err.Error()))
		return
	}
	if err := protocol.Validate(protocol.SchemaStroke, body); err != nil {
		writeJSON(rw, http.StatusBadRequest, protocol.NewError(protocol.ErrBadRequest, err.Error()))
		return
	}
	var req protocol.StrokeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(rw, http.StatusBadRequest, protocol.NewError(protocol.ErrBadRequest, err.Error()))
		return
	}
	cur := d.state.Frame()
	frame := req.Frame
	if frame == 0 {
		frame = cur
	}
	if frame > cur && frame-cur > maxFrameLead {
		writeJSON(rw, http.StatusBadRequest, protocol.NewError(protocol.ErrBadRequest,
			fmt.Sprintf("frame %d is more than %d ahead of frame %d", frame, maxFrameLead, cur)))
		return
	}
	id := d.state.NextStrokeID()
	if err := d.state.PaintStroke(id, req.Positions, frame); err != nil {
		d.fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, protocol.StrokeResponse{StrokeID: id, Frame: frame})
}

// handlePalette swaps in a new source image and restarts the run so cached
// costs are rebuilt from it.
func (d serverDeps) handlePalette(rw http.ResponseWriter, r *http.Request) {
	img, _, err := image.Decode(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, protocol.NewError(protocol.ErrBadRequest, "decode image: "+err.Error()))
		return
	}
	colors, err := paletteFromRaw(imageprep.FromImage(img), d.hub.Sidelen())
	if err != nil {
		d.fail(rw, err)
		return
	}
	if err := d.state.SetColors(colors); err != nil {
		d.fail(rw, err)
		return
	}
	d.handleRestart(rw, r)
}

func (d serverDeps) handleRuns(rw http.ResponseWriter, r *http.Request) {
	if d.index == nil {
		writeJSON(rw, http.StatusServiceUnavailable, protocol.NewError(protocol.ErrInternal, "index disabled"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := d.index.Runs(r.Context(), limit)
	if err != nil {
		d.fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"runs": runs, "index": d.index.Stats()})
}

func (d serverDeps) fail(rw http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, live.ErrOutOfCanvas):
		writeJSON(rw, http.StatusBadRequest, protocol.NewError(protocol.ErrOutOfCanvas, err.Error()))
	case errors.Is(err, imageprep.ErrInvalidImage), errors.Is(err, drawing.ErrInvalidSettings):
		writeJSON(rw, http.StatusBadRequest, protocol.NewError(protocol.ErrBadRequest, err.Error()))
	case errors.Is(err, supervisor.ErrStopped):
		writeJSON(rw, http.StatusServiceUnavailable, protocol.NewError(protocol.ErrStopped, err.Error()))
	default:
		d.logf("request failed: %v", err)
		writeJSON(rw, http.StatusInternalServerError, protocol.NewError(protocol.ErrInternal, err.Error()))
	}
}

func (d serverDeps) logf(format string, args ...any) {
	if d.logger != nil {
		d.logger.Printf(format, args...)
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_, _ = rw.Write(buf.Bytes())
}
